package worker

import (
	"context"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NotificationWorker consumes order and payment events and turns them
// into emails. Handler errors are swallowed after logging so a bad
// event never wedges the consumer group.
type NotificationWorker struct {
	consumer  *broker.Consumer
	notifier  *service.Notifier
	producers ProducerLookup
	logger    *zap.Logger
}

// ProducerLookup resolves producer contact details for notifications.
type ProducerLookup interface {
	GetProducersByIDs(ctx context.Context, ids []string) ([]models.Producer, error)
}

// NewNotificationWorker creates a notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier *service.Notifier, producers ProducerLookup) *NotificationWorker {
	return &NotificationWorker{
		consumer:  consumer,
		notifier:  notifier,
		producers: producers,
		logger:    util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()

	handler.OnOrderCreated(func(ctx context.Context, event *models.OrderCreatedEvent) error {
		w.notifier.OrderCreated(event)
		w.notifyProducers(ctx, event)
		return nil
	})
	handler.OnOrderConfirmed(func(ctx context.Context, event *models.OrderConfirmedEvent) error {
		w.notifier.OrderConfirmed(event)
		return nil
	})
	handler.OnOrderCancelled(func(ctx context.Context, event *models.OrderCancelledEvent) error {
		w.notifier.OrderCancelled(event)
		return nil
	})
	handler.OnOrderShipped(func(ctx context.Context, event *models.OrderShippedEvent) error {
		w.notifier.OrderShipped(event)
		return nil
	})
	handler.OnPaymentFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		w.notifier.PaymentFailed(event)
		return nil
	})
	handler.OnPaymentRefunded(func(ctx context.Context, event *models.PaymentRefundedEvent) error {
		w.notifier.PaymentRefunded(event)
		return nil
	})

	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

// notifyProducers groups a new order's items per producer and mails
// each producer their share.
func (w *NotificationWorker) notifyProducers(ctx context.Context, event *models.OrderCreatedEvent) {
	byProducer := make(map[string][]models.OrderItemData)
	for _, item := range event.Items {
		byProducer[item.ProducerID] = append(byProducer[item.ProducerID], item)
	}

	ids := make([]string, 0, len(byProducer))
	for id := range byProducer {
		ids = append(ids, id)
	}
	producers, err := w.producers.GetProducersByIDs(ctx, ids)
	if err != nil {
		w.logger.Error("Failed to load producers for notification",
			zap.String("order_id", event.OrderID), zap.Error(err))
		return
	}
	for _, producer := range producers {
		w.notifier.NewOrderForProducer(producer.ContactEmail, event.OrderNumber, byProducer[producer.ID])
	}
}

// ExpiryStore is the persistence surface for the pending payment
// sweeper.
type ExpiryStore interface {
	GetUnpaidOrdersOlderThan(ctx context.Context, age time.Duration) ([]models.Order, error)
	CancelIfUnpaid(ctx context.Context, orderID string) (bool, error)
}

// ExpiryPublisher publishes cancellations from the sweeper.
type ExpiryPublisher interface {
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// ExpiryWorker cancels card and bank transfer orders whose payment
// never arrived. Stock was never committed for these orders, so there
// is nothing to release.
type ExpiryWorker struct {
	store     ExpiryStore
	publisher ExpiryPublisher
	timeout   time.Duration
	cron      *cron.Cron
	logger    *zap.Logger
}

// NewExpiryWorker creates an expiry worker
func NewExpiryWorker(store ExpiryStore, publisher ExpiryPublisher, business config.BusinessConfig) *ExpiryWorker {
	return &ExpiryWorker{
		store:     store,
		publisher: publisher,
		timeout:   time.Duration(business.PaymentTimeoutMinutes) * time.Minute,
		cron:      cron.New(),
		logger:    util.GetLogger(),
	}
}

// Start schedules the sweep every five minutes until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc("*/5 * * * *", func() {
		w.sweep(ctx)
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("Payment expiry worker started",
		zap.Duration("timeout", w.timeout))

	<-ctx.Done()
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	return nil
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	orders, err := w.store.GetUnpaidOrdersOlderThan(ctx, w.timeout)
	if err != nil {
		w.logger.Error("Failed to list expired unpaid orders", zap.Error(err))
		return
	}
	for _, order := range orders {
		cancelled, err := w.store.CancelIfUnpaid(ctx, order.ID)
		if err != nil {
			w.logger.Error("Failed to cancel expired order",
				zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		if !cancelled {
			// A payment arrived between the listing and the cancel.
			w.logger.Info("Skipping expired order, payment reconciled meanwhile",
				zap.String("order_id", order.ID))
			continue
		}
		util.OrdersCancelledTotal.WithLabelValues("payment_timeout").Inc()
		w.logger.Info("Cancelled unpaid order",
			zap.String("order_id", order.ID),
			zap.String("order_number", order.OrderNumber))

		event := &models.OrderCancelledEvent{
			BaseEvent: models.BaseEvent{
				EventID:   order.ID + "-expired",
				EventType: models.EventTypeOrderCancelled,
				Timestamp: time.Now(),
			},
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.ShipEmail,
			Reason:        "payment not received in time",
		}
		if err := w.publisher.PublishOrderCancelled(ctx, event); err != nil {
			w.logger.Error("Failed to publish cancellation",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}
