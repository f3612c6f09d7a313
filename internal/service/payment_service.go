package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderGateway is the payment provider adapter consumed by the
// payment service.
type ProviderGateway interface {
	Configured() bool
	CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// PaymentStore is the persistence surface used by the payment service.
type PaymentStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	SetOrderCheckoutSession(ctx context.Context, orderID, sessionID string) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
}

// PaymentStatusResponse is returned by GetPaymentStatus.
type PaymentStatusResponse struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	AmountCents   int64  `json:"amount_cents"`
}

// PaymentService drives the hosted checkout flow for card orders.
type PaymentService struct {
	store      PaymentStore
	gateway    ProviderGateway
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, gateway ProviderGateway, reconciler *Reconciler) *PaymentService {
	return &PaymentService{
		store:      store,
		gateway:    gateway,
		reconciler: reconciler,
		logger:     util.GetLogger(),
	}
}

// CreateCheckoutSession opens a hosted checkout session for a pending
// card order and records the pending payment.
func (p *PaymentService) CreateCheckoutSession(ctx context.Context, orderID string, caller Caller) (*CheckoutSession, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateCheckoutSession")
	defer span.End()

	order, err := p.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.Role != RoleAdmin && order.CustomerID != caller.UserID {
		return nil, models.ErrForbidden
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, &models.PaymentStateError{Reason: "order is already paid"}
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, &models.PaymentStateError{Reason: "order is cancelled"}
	}
	if order.PaymentMethod != models.PaymentMethodCard {
		return nil, &models.PaymentStateError{
			Reason: fmt.Sprintf("payment method %s does not use checkout sessions", order.PaymentMethod),
		}
	}

	session, err := p.gateway.CreateCheckoutSession(ctx, order)
	if err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := p.store.SetOrderCheckoutSession(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("failed to attach checkout session: %w", err)
	}

	now := time.Now()
	payment := &models.Payment{
		ID:                uuid.New().String(),
		OrderID:           order.ID,
		Provider:          "stripe",
		Status:            models.PaymentStatusPending,
		CheckoutSessionID: &session.ID,
		AmountCents:       order.TotalCents,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := p.store.CreatePayment(ctx, payment); err != nil {
		p.logger.Error("Failed to record payment", zap.String("order_id", order.ID), zap.Error(err))
	}

	util.CheckoutSessionsTotal.WithLabelValues("ok").Inc()
	p.logger.Info("Checkout session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID))
	return session, nil
}

// GetPaymentStatus reports the payment state of an order. For pending
// card orders it verifies directly with the provider, so a lost webhook
// cannot strand a paid order.
func (p *PaymentService) GetPaymentStatus(ctx context.Context, orderID string, caller Caller) (*PaymentStatusResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPaymentStatus")
	defer span.End()

	order, err := p.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.Role != RoleAdmin && order.CustomerID != caller.UserID {
		return nil, models.ErrForbidden
	}

	if order.PaymentStatus == models.PaymentStatusPending &&
		order.CheckoutSessionID != nil && p.gateway.Configured() {
		order = p.verifyWithProvider(ctx, order)
	}

	return &PaymentStatusResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		AmountCents:   order.TotalCents,
	}, nil
}

// ConfirmBankTransfer marks a bank transfer order as paid after an
// admin has matched the incoming transfer. It rides the same one-shot
// claim as webhook reconciliation.
func (p *PaymentService) ConfirmBankTransfer(ctx context.Context, orderID string, caller Caller) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ConfirmBankTransfer")
	defer span.End()

	if caller.Role != RoleAdmin {
		return nil, models.ErrForbidden
	}

	order, err := p.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentMethodBankTransfer {
		return nil, &models.PaymentStateError{Reason: "order is not a bank transfer"}
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, &models.PaymentStateError{Reason: "order is cancelled"}
	}

	if err := p.reconciler.ApplyPaid(ctx, order, ""); err != nil {
		return nil, err
	}
	return p.store.GetOrderByID(ctx, orderID)
}

func (p *PaymentService) verifyWithProvider(ctx context.Context, order *models.Order) *models.Order {
	session, err := p.gateway.RetrieveSession(ctx, *order.CheckoutSessionID)
	if err != nil {
		p.logger.Warn("Failed to verify session with provider",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return order
	}
	if session.PaymentStatus != "paid" {
		return order
	}

	if err := p.reconciler.ApplyPaid(ctx, order, session.PaymentIntentID); err != nil {
		p.logger.Error("Failed to apply verified payment",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return order
	}
	refreshed, err := p.store.GetOrderByID(ctx, order.ID)
	if err != nil {
		return order
	}
	return refreshed
}
