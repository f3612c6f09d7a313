package models

import "time"

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderConfirmed   = "ORDER_CONFIRMED"
	EventTypeOrderCancelled   = "ORDER_CANCELLED"
	EventTypeOrderShipped     = "ORDER_SHIPPED"
	EventTypeOrderDelivered   = "ORDER_DELIVERED"
	EventTypePaymentSucceeded = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypePaymentRefunded  = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderItemData represents item data carried in events
type OrderItemData struct {
	ProductID      string  `json:"product_id"`
	VariantID      *string `json:"variant_id,omitempty"`
	ProducerID     string  `json:"producer_id"`
	ProductName    string  `json:"product_name"`
	Quantity       int     `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
}

// OrderCreatedEvent published when an order is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	PaymentMethod string          `json:"payment_method"`
	TotalCents    int64           `json:"total_cents"`
	Items         []OrderItemData `json:"items"`
}

// OrderConfirmedEvent published when payment is reconciled or a COD
// order is committed
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
}

// OrderCancelledEvent published on cancellation or refund
type OrderCancelledEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	Reason        string `json:"reason"`
}

// OrderShippedEvent published when a producer marks the order shipped
type OrderShippedEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	CustomerEmail  string `json:"customer_email"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// PaymentSucceededEvent published after a successful reconciliation
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	AmountCents   int64  `json:"amount_cents"`
	IntentID      string `json:"intent_id,omitempty"`
}

// PaymentFailedEvent published when the provider reports a failure
type PaymentFailedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	Reason        string `json:"reason"`
}

// PaymentRefundedEvent published when a charge is refunded
type PaymentRefundedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	AmountCents   int64  `json:"amount_cents"`
}
