package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogStore provides product and producer lookups for order creation.
type CatalogStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProducersByIDs(ctx context.Context, ids []string) ([]models.Producer, error)
	GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error)
}

// OrderStore persists orders and their status transitions.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	CountOrdersByCustomer(ctx context.Context, customerID string) (int, error)
	UpdateOrderStatusFrom(ctx context.Context, orderID, from, to string) (bool, error)
	SetOrderTracking(ctx context.Context, orderID, trackingNumber string) error
	SetOrderPaymentPaid(ctx context.Context, orderID string) error
}

// Ledger is the stock mutation surface used by order flows.
type Ledger interface {
	Reduce(ctx context.Context, productID string, variantID *string, quantity int) error
	Restore(ctx context.Context, productID string, variantID *string, quantity int) error
}

// CouponRedeemer validates and records coupon redemptions.
type CouponRedeemer interface {
	ValidateForOrder(ctx context.Context, code, userID string, subtotalCents int64, now time.Time) (*models.Coupon, int64, error)
	RecordUsage(ctx context.Context, couponID, userID, orderID string) error
}

// OrderPublisher publishes order lifecycle events.
type OrderPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error
}

// OrderService handles order creation, queries and status transitions
type OrderService struct {
	catalog   CatalogStore
	orders    OrderStore
	ledger    Ledger
	coupons   CouponRedeemer
	publisher OrderPublisher
	business  config.BusinessConfig
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	catalog CatalogStore,
	orders OrderStore,
	ledger Ledger,
	coupons CouponRedeemer,
	publisher OrderPublisher,
	business config.BusinessConfig,
) *OrderService {
	return &OrderService{
		catalog:   catalog,
		orders:    orders,
		ledger:    ledger,
		coupons:   coupons,
		publisher: publisher,
		business:  business,
		logger:    util.GetLogger(),
	}
}

// ShippingAddress is the address snapshot captured onto the order
type ShippingAddress struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod   string             `json:"payment_method" binding:"required"`
	ShippingAddress ShippingAddress    `json:"shipping_address" binding:"required"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	Language        string             `json:"language,omitempty"`
}

// OrderItemRequest represents one requested cart line
type OrderItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
}

// BankInstructions returned on bank-transfer orders
type BankInstructions struct {
	AccountDetails   string `json:"account_details"`
	PaymentReference string `json:"payment_reference"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	Order            *models.Order     `json:"order"`
	BankInstructions *BankInstructions `json:"bank_instructions,omitempty"`
}

// orderLine carries a resolved cart line during creation
type orderLine struct {
	req     OrderItemRequest
	product *models.Product
	variant *models.Variant
}

func validPaymentMethod(m string) bool {
	switch m {
	case models.PaymentMethodCard, models.PaymentMethodBankTransfer, models.PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// CreateOrder validates stock and prices against the live catalog,
// snapshots line items and applies the payment-method branch: cash on
// delivery commits stock synchronously and confirms the order; card and
// bank transfer leave it pending until the payment is reconciled.
func (s *OrderService) CreateOrder(ctx context.Context, customerID string, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if !validPaymentMethod(req.PaymentMethod) {
		util.OrdersFailedTotal.WithLabelValues("invalid_payment_method").Inc()
		return nil, models.NewValidationError("payment_method", "unknown payment method")
	}

	now := time.Now().UTC()
	lang := req.Language
	if lang == "" {
		lang = s.business.DefaultLanguage
	}

	lines, producers, err := s.resolveLines(ctx, req.Items, lang)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.unitPrice() * int64(line.req.Quantity)
	}

	var coupon *models.Coupon
	var discount int64
	if req.CouponCode != "" {
		coupon, discount, err = s.coupons.ValidateForOrder(ctx, req.CouponCode, customerID, subtotal, now)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("coupon_rejected").Inc()
			return nil, err
		}
	}

	shipping := s.business.ShippingFeeCents
	if subtotal >= s.business.FreeShippingOverCents {
		shipping = 0
	}

	order := &models.Order{
		ID:             uuid.New().String(),
		OrderNumber:    models.NewOrderNumber(now),
		CustomerID:     customerID,
		SubtotalCents:  subtotal,
		ShippingCents:  shipping,
		DiscountCents:  discount,
		TotalCents:     subtotal + shipping - discount,
		Status:         models.OrderStatusPending,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  models.PaymentStatusPending,
		ShipName:       req.ShippingAddress.Name,
		ShipEmail:      req.ShippingAddress.Email,
		ShipPhone:      req.ShippingAddress.Phone,
		ShipLine1:      req.ShippingAddress.Line1,
		ShipCity:       req.ShippingAddress.City,
		ShipPostalCode: req.ShippingAddress.PostalCode,
		ShipCountry:    req.ShippingAddress.Country,
		CreatedAt:      now,
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
	}

	for _, line := range lines {
		producer := producers[line.product.ProducerID]
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New().String(),
			ProductID:      line.product.ID,
			VariantID:      line.req.VariantID,
			ProducerID:     line.product.ProducerID,
			ProductName:    line.displayName(lang),
			Quantity:       line.req.Quantity,
			UnitPriceCents: line.unitPrice(),
			CommissionRate: producer.EffectiveCommissionRate(now),
		})
	}

	// Cash on delivery has no payment gate later, so stock is committed
	// here; card and bank transfer commit on reconciliation instead.
	if req.PaymentMethod == models.PaymentMethodCashOnDelivery {
		if err := s.commitStock(ctx, lines); err != nil {
			return nil, err
		}
		order.Status = models.OrderStatusConfirmed
		order.StockCommitted = true
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if order.StockCommitted {
			s.rollbackStock(ctx, lines, len(lines))
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if coupon != nil {
		if err := s.coupons.RecordUsage(ctx, coupon.ID, customerID, order.ID); err != nil {
			s.logger.Error("Failed to record coupon usage",
				zap.String("order_id", order.ID),
				zap.String("coupon", coupon.Code),
				zap.Error(err))
		}
	}

	util.OrdersCreatedTotal.WithLabelValues(req.PaymentMethod).Inc()
	if order.Status == models.OrderStatusConfirmed {
		util.OrdersConfirmedTotal.Inc()
	}
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_method", order.PaymentMethod),
		zap.Int64("total_cents", order.TotalCents))

	s.publishCreated(ctx, order)

	resp := &CreateOrderResponse{Order: order}
	if req.PaymentMethod == models.PaymentMethodBankTransfer {
		resp.BankInstructions = &BankInstructions{
			AccountDetails:   s.business.BankAccountDetails,
			PaymentReference: order.OrderNumber,
		}
	}
	return resp, nil
}

func (line *orderLine) unitPrice() int64 {
	if line.variant != nil {
		return line.variant.PriceCents
	}
	return line.product.BasePriceCents
}

func (line *orderLine) displayName(lang string) string {
	name := line.product.Name.Get(lang)
	if line.variant != nil {
		if vn := line.variant.Name.Get(lang); vn != "" {
			name = name + " - " + vn
		}
	}
	return name
}

func (line *orderLine) availableStock() int {
	if line.variant != nil {
		return line.variant.Stock
	}
	return line.product.BaseStock
}

// resolveLines loads and validates every requested product and variant,
// returning the lines plus the producers represented in the cart.
func (s *OrderService) resolveLines(ctx context.Context, items []OrderItemRequest, lang string) ([]orderLine, map[string]*models.Producer, error) {
	lines := make([]orderLine, 0, len(items))
	producerIDs := make([]string, 0, len(items))
	seen := map[string]bool{}

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, nil, models.NewValidationError("quantity", "must be at least 1")
		}

		product, err := s.catalog.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if !product.IsAvailable {
			return nil, nil, &models.InsufficientStockError{
				ProductName: product.Name.Get(lang),
				Requested:   item.Quantity,
			}
		}

		line := orderLine{req: item, product: product}
		if item.VariantID != nil && *item.VariantID != "" {
			if !product.HasVariants {
				return nil, nil, models.NewValidationError("variant_id", "product has no variants")
			}
			for i := range product.Variants {
				if product.Variants[i].ID == *item.VariantID {
					line.variant = &product.Variants[i]
					break
				}
			}
			if line.variant == nil {
				return nil, nil, models.ErrVariantNotFound
			}
			if !line.variant.IsAvailable {
				return nil, nil, &models.InsufficientStockError{
					ProductName: line.displayName(lang),
					Requested:   item.Quantity,
				}
			}
		} else if product.HasVariants {
			return nil, nil, models.NewValidationError("variant_id", "variant is required for this product")
		}

		if line.availableStock() < item.Quantity {
			return nil, nil, &models.InsufficientStockError{
				ProductName: line.displayName(lang),
				Requested:   item.Quantity,
			}
		}

		lines = append(lines, line)
		if !seen[product.ProducerID] {
			seen[product.ProducerID] = true
			producerIDs = append(producerIDs, product.ProducerID)
		}
	}

	producerList, err := s.catalog.GetProducersByIDs(ctx, producerIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(producerList) != len(producerIDs) {
		return nil, nil, models.ErrProducerNotFound
	}

	producers := make(map[string]*models.Producer, len(producerList))
	for i := range producerList {
		p := &producerList[i]
		if p.Suspended {
			return nil, nil, models.NewValidationError("items", "producer is suspended")
		}
		producers[p.ID] = p
	}
	return lines, producers, nil
}

// commitStock decrements every line's counter, compensating the ones
// already taken when a later line fails.
func (s *OrderService) commitStock(ctx context.Context, lines []orderLine) error {
	lang := s.business.DefaultLanguage
	for i, line := range lines {
		err := s.ledger.Reduce(ctx, line.product.ID, line.req.VariantID, line.req.Quantity)
		if err != nil {
			s.rollbackStock(ctx, lines, i)
			if errors.Is(err, store.ErrInsufficientStock) {
				return &models.InsufficientStockError{
					ProductName: line.displayName(lang),
					Requested:   line.req.Quantity,
				}
			}
			return fmt.Errorf("failed to commit stock for product %s: %w", line.product.ID, err)
		}
	}
	return nil
}

func (s *OrderService) rollbackStock(ctx context.Context, lines []orderLine, upTo int) {
	for i := 0; i < upTo; i++ {
		line := lines[i]
		if err := s.ledger.Restore(ctx, line.product.ID, line.req.VariantID, line.req.Quantity); err != nil {
			s.logger.Error("Failed to compensate stock commit",
				zap.String("product_id", line.product.ID),
				zap.Error(err))
		}
	}
}

func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			ProducerID:     item.ProducerID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CustomerEmail: order.ShipEmail,
		PaymentMethod: order.PaymentMethod,
		TotalCents:    order.TotalCents,
		Items:         items,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

// Caller identifies the authenticated principal for ownership checks
type Caller struct {
	UserID string
	Role   string
}

// Roles injected by the upstream gateway
const (
	RoleCustomer = "customer"
	RoleProducer = "producer"
	RoleAdmin    = "admin"
)

// GetOrder retrieves an order, enforcing ownership: the customer who
// placed it, a producer with an item in it, or an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID string, caller Caller) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, order, caller); err != nil {
		return nil, err
	}
	return order, nil
}

// ListCustomerOrders returns the caller's own orders
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]models.Order, error) {
	return s.orders.GetOrdersByCustomer(ctx, customerID)
}

func (s *OrderService) authorize(ctx context.Context, order *models.Order, caller Caller) error {
	switch caller.Role {
	case RoleAdmin:
		return nil
	case RoleProducer:
		producer, err := s.catalog.GetProducerByUserID(ctx, caller.UserID)
		if err != nil {
			return models.ErrForbidden
		}
		for _, item := range order.Items {
			if item.ProducerID == producer.ID {
				return nil
			}
		}
		return models.ErrForbidden
	default:
		if order.CustomerID == caller.UserID {
			return nil
		}
		return models.ErrForbidden
	}
}

// legal forward transitions for producer/admin fulfilment
var statusTransitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusPreparing, models.OrderStatusCancelled},
	models.OrderStatusPreparing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:   {models.OrderStatusDelivered},
}

func transitionAllowed(from, to string) bool {
	for _, t := range statusTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// UpdateStatusRequest advances an order through fulfilment
type UpdateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// UpdateStatus advances an order's fulfilment status. Cancelling an
// order whose stock was committed restores every line item; delivering
// a cash-on-delivery order marks its payment collected.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, req *UpdateStatusRequest, caller Caller) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if caller.Role != RoleAdmin && caller.Role != RoleProducer {
		return nil, models.ErrForbidden
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, order, caller); err != nil {
		return nil, err
	}

	if !transitionAllowed(order.Status, req.Status) {
		return nil, models.NewValidationError("status",
			fmt.Sprintf("cannot transition from %s to %s", order.Status, req.Status))
	}

	moved, err := s.orders.UpdateOrderStatusFrom(ctx, orderID, order.Status, req.Status)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, models.NewValidationError("status",
			"order status changed concurrently, reload and retry")
	}

	switch req.Status {
	case models.OrderStatusShipped:
		if req.TrackingNumber != "" {
			if err := s.orders.SetOrderTracking(ctx, orderID, req.TrackingNumber); err != nil {
				s.logger.Error("Failed to set tracking number", zap.Error(err))
			}
		}
		s.publishShipped(ctx, order, req.TrackingNumber)

	case models.OrderStatusDelivered:
		if order.PaymentMethod == models.PaymentMethodCashOnDelivery {
			if err := s.orders.SetOrderPaymentPaid(ctx, orderID); err != nil {
				s.logger.Error("Failed to mark COD payment collected", zap.Error(err))
			}
		}

	case models.OrderStatusCancelled:
		util.OrdersCancelledTotal.WithLabelValues("manual").Inc()
		if order.StockCommitted {
			for _, item := range order.Items {
				if err := s.ledger.Restore(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
					s.logger.Error("Failed to restore stock on cancellation",
						zap.String("product_id", item.ProductID),
						zap.Error(err))
				}
			}
		}
		s.publishCancelled(ctx, order, "cancelled by "+caller.Role)
	}

	return s.orders.GetOrderByID(ctx, orderID)
}

func (s *OrderService) publishShipped(ctx context.Context, order *models.Order, tracking string) {
	event := &models.OrderShippedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderShipped,
			Timestamp: time.Now(),
		},
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerEmail:  order.ShipEmail,
		TrackingNumber: tracking,
	}
	if err := s.publisher.PublishOrderShipped(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderShipped event", zap.Error(err))
	}
}

func (s *OrderService) publishCancelled(ctx context.Context, order *models.Order, reason string) {
	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.ShipEmail,
		Reason:        reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}
