package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileStore is the persistence surface for payment reconciliation.
// Every transition is a conditional update so redelivered events apply
// at most once.
type ReconcileStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ClaimOrderPaid(ctx context.Context, orderID, intentID string) (bool, error)
	MarkOrderPaymentFailed(ctx context.Context, orderID string) (bool, error)
	ClaimOrderRefunded(ctx context.Context, orderID string) (claimed, stockCommitted bool, err error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID, status, intentID string) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// EventCache is a short-lived dedup layer in front of the processed
// events table.
type EventCache interface {
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// SignatureVerifier authenticates raw webhook payloads.
type SignatureVerifier interface {
	VerifyWebhookSignature(payload []byte, header string, now time.Time) error
}

// PaymentPublisher publishes payment lifecycle events.
type PaymentPublisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error
}

// Provider event types
const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventIntentSucceeded   = "payment_intent.succeeded"
	eventIntentFailed      = "payment_intent.payment_failed"
	eventChargeRefunded    = "charge.refunded"
)

const eventSeenTTL = 48 * time.Hour

// ProviderEvent is the provider's webhook envelope
type ProviderEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object ProviderObject `json:"object"`
	} `json:"data"`
}

// ProviderObject is the session, intent or charge inside an event
type ProviderObject struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	PaymentStatus  string            `json:"payment_status"`
	AmountRefunded int64             `json:"amount_refunded"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

// Reconciler maps provider webhook events to order-state transitions.
// It is idempotent: replaying any event leaves state unchanged.
type Reconciler struct {
	store     ReconcileStore
	ledger    Ledger
	verifier  SignatureVerifier
	cache     EventCache
	publisher PaymentPublisher
	logger    *zap.Logger
}

// NewReconciler creates a new webhook reconciler
func NewReconciler(
	store ReconcileStore,
	ledger Ledger,
	verifier SignatureVerifier,
	cache EventCache,
	publisher PaymentPublisher,
) *Reconciler {
	return &Reconciler{
		store:     store,
		ledger:    ledger,
		verifier:  verifier,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleWebhook verifies, deduplicates and applies one provider event.
// A verification failure returns PaymentStateError and nothing is
// processed; a duplicate event is a successful no-op.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleWebhook")
	defer span.End()

	if err := r.verifier.VerifyWebhookSignature(payload, signatureHeader, time.Now()); err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "signature_failed").Inc()
		return err
	}

	var event ProviderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return &models.PaymentStateError{Reason: "malformed event payload"}
	}
	if event.ID == "" || event.Type == "" {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return &models.PaymentStateError{Reason: "event missing id or type"}
	}

	if r.cache != nil {
		fresh, err := r.cache.MarkEventSeen(ctx, event.ID, eventSeenTTL)
		if err != nil {
			r.logger.Warn("Event dedup cache unavailable", zap.Error(err))
		} else if !fresh {
			util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
			return nil
		}
	}

	processed, err := r.store.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
		r.logger.Info("Event already processed", zap.String("event_id", event.ID))
		return nil
	}

	switch event.Type {
	case eventCheckoutCompleted:
		err = r.handleCheckoutCompleted(ctx, &event.Data.Object)
	case eventIntentSucceeded:
		err = r.handleIntentSucceeded(ctx, &event.Data.Object)
	case eventIntentFailed:
		err = r.handleIntentFailed(ctx, &event.Data.Object)
	case eventChargeRefunded:
		err = r.handleChargeRefunded(ctx, &event.Data.Object)
	default:
		r.logger.Debug("Ignoring provider event", zap.String("type", event.Type))
		util.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		return nil
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return err
	}

	if err := r.store.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		r.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, obj *ProviderObject) error {
	order, err := r.resolveOrder(ctx, obj, r.store.GetOrderByCheckoutSession)
	if err != nil {
		return err
	}
	return r.ApplyPaid(ctx, order, obj.PaymentIntent)
}

func (r *Reconciler) handleIntentSucceeded(ctx context.Context, obj *ProviderObject) error {
	order, err := r.resolveOrder(ctx, obj, r.store.GetOrderByPaymentIntent)
	if err != nil {
		return err
	}
	return r.ApplyPaid(ctx, order, obj.ID)
}

func (r *Reconciler) handleIntentFailed(ctx context.Context, obj *ProviderObject) error {
	order, err := r.resolveOrder(ctx, obj, r.store.GetOrderByPaymentIntent)
	if err != nil {
		return err
	}

	applied, err := r.store.MarkOrderPaymentFailed(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if !applied {
		return nil
	}

	util.PaymentsReconciledTotal.WithLabelValues(models.PaymentStatusFailed).Inc()
	r.updatePaymentRow(ctx, order.ID, models.PaymentStatusFailed, obj.ID)
	r.logger.Warn("Payment failed, order stays pending for retry",
		zap.String("order_id", order.ID),
		zap.String("reason", obj.FailureMessage))

	r.publishEvent(ctx, func() error {
		return r.publisher.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
			BaseEvent:     newBaseEvent(models.EventTypePaymentFailed),
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.ShipEmail,
			Reason:        obj.FailureMessage,
		})
	})
	return nil
}

func (r *Reconciler) handleChargeRefunded(ctx context.Context, obj *ProviderObject) error {
	// A refund can arrive before the paid event that persists the
	// intent id, so the metadata order id takes precedence.
	var order *models.Order
	if orderID := obj.Metadata["order_id"]; orderID != "" {
		if o, err := r.store.GetOrderByID(ctx, orderID); err == nil {
			order = o
		}
	}
	if order == nil {
		var err error
		if obj.PaymentIntent != "" {
			order, err = r.store.GetOrderByPaymentIntent(ctx, obj.PaymentIntent)
		} else {
			order, err = r.resolveOrder(ctx, obj, r.store.GetOrderByPaymentIntent)
		}
		if err != nil {
			return err
		}
	}

	claimed, stockCommitted, err := r.store.ClaimOrderRefunded(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to apply refund: %w", err)
	}
	if !claimed {
		return nil
	}

	if stockCommitted {
		for _, item := range order.Items {
			if err := r.ledger.Restore(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				r.logger.Error("Failed to restore stock on refund",
					zap.String("order_id", order.ID),
					zap.String("product_id", item.ProductID),
					zap.Error(err))
			}
		}
	}

	util.PaymentsReconciledTotal.WithLabelValues(models.PaymentStatusRefunded).Inc()
	util.OrdersCancelledTotal.WithLabelValues("refund").Inc()
	r.updatePaymentRow(ctx, order.ID, models.PaymentStatusRefunded, obj.PaymentIntent)
	r.logger.Info("Order refunded and cancelled",
		zap.String("order_id", order.ID),
		zap.Int64("amount_refunded", obj.AmountRefunded))

	r.publishEvent(ctx, func() error {
		return r.publisher.PublishPaymentRefunded(ctx, &models.PaymentRefundedEvent{
			BaseEvent:     newBaseEvent(models.EventTypePaymentRefunded),
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.ShipEmail,
			AmountCents:   obj.AmountRefunded,
		})
	})
	r.publishEvent(ctx, func() error {
		return r.publisher.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.ShipEmail,
			Reason:        "charge refunded",
		})
	})
	return nil
}

// ApplyPaid transitions an order to paid/confirmed and commits stock
// exactly once. Calling it again (or replaying the triggering event) is
// a no-op.
func (r *Reconciler) ApplyPaid(ctx context.Context, order *models.Order, intentID string) error {
	claimed, err := r.store.ClaimOrderPaid(ctx, order.ID, intentID)
	if err != nil {
		return fmt.Errorf("failed to apply paid transition: %w", err)
	}
	if !claimed {
		r.logger.Info("Paid transition already applied", zap.String("order_id", order.ID))
		return nil
	}

	// Stock was not committed at creation for deferred payment methods;
	// it is committed here, under the one-shot claim above.
	if !order.StockCommitted {
		for _, item := range order.Items {
			if err := r.ledger.Reduce(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				// Paid but nothing left to commit: the oversell window
				// between creation and payment closed on us. Surface it
				// loudly; the money has been taken and support must
				// resolve the order by hand.
				util.StockReductionsFailed.WithLabelValues("post_payment").Inc()
				r.logger.Error("Stock commit failed after successful payment",
					zap.String("order_id", order.ID),
					zap.String("product_id", item.ProductID),
					zap.Error(err))
			}
		}
	}

	util.OrdersConfirmedTotal.Inc()
	util.PaymentsReconciledTotal.WithLabelValues(models.PaymentStatusPaid).Inc()
	r.updatePaymentRow(ctx, order.ID, models.PaymentStatusPaid, intentID)
	r.logger.Info("Order confirmed via payment reconciliation",
		zap.String("order_id", order.ID),
		zap.String("intent_id", intentID))

	r.publishEvent(ctx, func() error {
		return r.publisher.PublishPaymentSucceeded(ctx, &models.PaymentSucceededEvent{
			BaseEvent:     newBaseEvent(models.EventTypePaymentSucceeded),
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.ShipEmail,
			AmountCents:   order.TotalCents,
			IntentID:      intentID,
		})
	})
	r.publishEvent(ctx, func() error {
		return r.publisher.PublishOrderConfirmed(ctx, &models.OrderConfirmedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderConfirmed),
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.ShipEmail,
		})
	})
	return nil
}

// resolveOrder prefers the order_id carried in event metadata and falls
// back to the provider object id.
func (r *Reconciler) resolveOrder(
	ctx context.Context,
	obj *ProviderObject,
	byProviderID func(context.Context, string) (*models.Order, error),
) (*models.Order, error) {
	if orderID := obj.Metadata["order_id"]; orderID != "" {
		order, err := r.store.GetOrderByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
	}
	if obj.ID == "" {
		return nil, models.ErrOrderNotFound
	}
	return byProviderID(ctx, obj.ID)
}

func (r *Reconciler) updatePaymentRow(ctx context.Context, orderID, status, intentID string) {
	payment, err := r.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return
	}
	if err := r.store.UpdatePaymentStatus(ctx, payment.ID, status, intentID); err != nil {
		r.logger.Error("Failed to update payment row",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

func (r *Reconciler) publishEvent(ctx context.Context, publish func() error) {
	if err := publish(); err != nil {
		r.logger.Error("Failed to publish event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
