package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-service/internal/models"
)

// CreateOrder inserts an order and its item snapshots in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, subtotal_cents, shipping_cents,
			discount_cents, total_cents, coupon_id, status, payment_method, payment_status,
			stock_committed, ship_name, ship_email, ship_phone, ship_line1, ship_city,
			ship_postal_code, ship_country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)`,
		order.ID, order.OrderNumber, order.CustomerID, order.SubtotalCents, order.ShippingCents,
		order.DiscountCents, order.TotalCents, order.CouponID, order.Status, order.PaymentMethod,
		order.PaymentStatus, order.StockCommitted, order.ShipName, order.ShipEmail, order.ShipPhone,
		order.ShipLine1, order.ShipCity, order.ShipPostalCode, order.ShipCountry, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, variant_id, producer_id,
				product_name, quantity, unit_price_cents, commission_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			item.ID, item.OrderID, item.ProductID, item.VariantID, item.ProducerID,
			item.ProductName, item.Quantity, item.UnitPriceCents, item.CommissionRate)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByCheckoutSession locates the order correlated to a provider
// checkout session.
func (s *Store) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE checkout_session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1", order.ID); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentIntent locates the order correlated to a provider
// payment intent.
func (s *Store) GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE payment_intent_id = $1", intentID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1", order.ID); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByCustomer retrieves orders for a customer, most recent first
func (s *Store) GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// CountOrdersByCustomer is used by the first-order-only coupon rule
func (s *Store) CountOrdersByCustomer(ctx context.Context, customerID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND status <> $2",
		customerID, models.OrderStatusCancelled)
	return count, err
}

// UpdateOrderStatusFrom advances order status and lifecycle timestamps
// only while the current status still matches from. Zero rows means a
// concurrent writer moved the order first.
func (s *Store) UpdateOrderStatusFrom(ctx context.Context, orderID, from, to string) (bool, error) {
	var extra string
	switch to {
	case models.OrderStatusShipped:
		extra = ", shipped_at = NOW()"
	case models.OrderStatusDelivered:
		extra = ", delivered_at = NOW()"
	}
	query := fmt.Sprintf(
		"UPDATE orders SET status = $1, updated_at = NOW()%s WHERE id = $2 AND status = $3", extra)
	res, err := s.db.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CancelIfUnpaid cancels an order only while it is still pending with
// no payment recorded. Zero rows means payment reconciliation won the
// race and the order must be left alone.
func (s *Store) CancelIfUnpaid(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND payment_status = $4`,
		models.OrderStatusCancelled, orderID,
		models.OrderStatusPending, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetOrderTracking records the carrier tracking number
func (s *Store) SetOrderTracking(ctx context.Context, orderID, trackingNumber string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET tracking_number = $1, updated_at = NOW() WHERE id = $2",
		trackingNumber, orderID)
	return err
}

// SetOrderPaymentPaid marks payment collected without confirming the
// order, used when COD orders are delivered.
func (s *Store) SetOrderPaymentPaid(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = $3",
		models.PaymentStatusPaid, orderID, models.PaymentStatusPending)
	return err
}

// SetOrderCheckoutSession persists the provider session id for later
// webhook correlation.
func (s *Store) SetOrderCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET checkout_session_id = $1, updated_at = NOW() WHERE id = $2",
		sessionID, orderID)
	return err
}

// ClaimOrderPaid applies the paid transition if and only if payment is
// still awaited. Returns false when the transition was already applied
// or the order was refunded meanwhile, so redelivered and out-of-order
// webhook events become no-ops.
func (s *Store) ClaimOrderPaid(ctx context.Context, orderID, intentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    status = $2,
		    payment_intent_id = COALESCE(NULLIF($3, ''), payment_intent_id),
		    stock_committed = TRUE,
		    updated_at = NOW()
		WHERE id = $4 AND payment_status IN ($5, $6)`,
		models.PaymentStatusPaid, models.OrderStatusConfirmed, intentID, orderID,
		models.PaymentStatusPending, models.PaymentStatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkOrderPaymentFailed records a failed collection attempt; the order
// stays pending so the customer can retry.
func (s *Store) MarkOrderPaymentFailed(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = $3`,
		models.PaymentStatusFailed, orderID, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimOrderRefunded applies the refund transition once. The returned
// stockCommitted tells the caller whether line-item stock must be
// restored. A still-pending order also matches, so a refund delivered
// before its paid event is not dropped.
func (s *Store) ClaimOrderRefunded(ctx context.Context, orderID string) (claimed, stockCommitted bool, err error) {
	err = s.db.QueryRowxContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND payment_status IN ($4, $5)
		RETURNING stock_committed`,
		models.PaymentStatusRefunded, models.OrderStatusCancelled,
		orderID, models.PaymentStatusPaid, models.PaymentStatusPending).Scan(&stockCommitted)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, stockCommitted, nil
}

// GetUnpaidOrdersOlderThan returns pending card/bank-transfer orders
// whose payment window has expired.
func (s *Store) GetUnpaidOrdersOlderThan(ctx context.Context, age time.Duration) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE status = $1 AND payment_status = $2
		  AND payment_method IN ($3, $4)
		  AND created_at < NOW() - $5::interval`,
		models.OrderStatusPending, models.PaymentStatusPending,
		models.PaymentMethodCard, models.PaymentMethodBankTransfer,
		fmt.Sprintf("%d seconds", int(age.Seconds())))
	return orders, err
}

// CreatePayment inserts a payment attempt record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, provider, status, checkout_session_id,
			payment_intent_id, amount_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		payment.ID, payment.OrderID, payment.Provider, payment.Status,
		payment.CheckoutSessionID, payment.PaymentIntentID, payment.AmountCents,
		payment.CreatedAt)
	return err
}

// GetPaymentByOrderID retrieves the latest payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates a payment attempt's provider state
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID, status, intentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    payment_intent_id = COALESCE(NULLIF($2, ''), payment_intent_id),
		    updated_at = NOW()
		WHERE id = $3`,
		status, intentID, paymentID)
	return err
}

// IsEventProcessed checks if a provider event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a provider event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
