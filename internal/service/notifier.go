package service

import (
	"fmt"
	"strings"

	"marketplace-service/config"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Notifier sends transactional emails. Every send is best effort: a
// delivery failure is logged and counted but never fails the
// triggering operation. With SMTP unconfigured all sends are no-ops.
type Notifier struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
	logger *zap.Logger
}

// NewNotifier creates a notifier; dialer is nil when SMTP is not
// configured.
func NewNotifier(cfg config.SMTPConfig) *Notifier {
	n := &Notifier{cfg: cfg, logger: util.GetLogger()}
	if cfg.Configured() {
		n.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	}
	return n
}

// OrderCreated confirms a new order to the customer.
func (n *Notifier) OrderCreated(event *models.OrderCreatedEvent) {
	var lines []string
	for _, item := range event.Items {
		lines = append(lines, fmt.Sprintf("  %dx %s - %s",
			item.Quantity, item.ProductName, formatCents(item.UnitPriceCents*int64(item.Quantity))))
	}
	body := fmt.Sprintf("Your order %s has been received.\n\n%s\n\nTotal: %s\nPayment method: %s\n",
		event.OrderNumber, strings.Join(lines, "\n"),
		formatCents(event.TotalCents), event.PaymentMethod)
	n.send("order_created", event.CustomerEmail,
		fmt.Sprintf("Order %s received", event.OrderNumber), body)
}

// NewOrderForProducer tells a producer about items sold.
func (n *Notifier) NewOrderForProducer(email, orderNumber string, items []models.OrderItemData) {
	var lines []string
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("  %dx %s", item.Quantity, item.ProductName))
	}
	body := fmt.Sprintf("You have new items to prepare for order %s:\n\n%s\n",
		orderNumber, strings.Join(lines, "\n"))
	n.send("producer_order", email,
		fmt.Sprintf("New order %s", orderNumber), body)
}

// OrderConfirmed tells the customer their payment went through.
func (n *Notifier) OrderConfirmed(event *models.OrderConfirmedEvent) {
	body := fmt.Sprintf("Payment for order %s was received. Your order is now being prepared.\n",
		event.OrderNumber)
	n.send("order_confirmed", event.CustomerEmail,
		fmt.Sprintf("Order %s confirmed", event.OrderNumber), body)
}

// OrderCancelled tells the customer their order was cancelled.
func (n *Notifier) OrderCancelled(event *models.OrderCancelledEvent) {
	body := fmt.Sprintf("Order %s has been cancelled.\nReason: %s\n",
		event.OrderNumber, event.Reason)
	n.send("order_cancelled", event.CustomerEmail,
		fmt.Sprintf("Order %s cancelled", event.OrderNumber), body)
}

// OrderShipped sends the shipping notice with tracking when present.
func (n *Notifier) OrderShipped(event *models.OrderShippedEvent) {
	body := fmt.Sprintf("Order %s is on its way.\n", event.OrderNumber)
	if event.TrackingNumber != "" {
		body += fmt.Sprintf("Tracking number: %s\n", event.TrackingNumber)
	}
	n.send("order_shipped", event.CustomerEmail,
		fmt.Sprintf("Order %s shipped", event.OrderNumber), body)
}

// PaymentFailed tells the customer their payment did not go through.
func (n *Notifier) PaymentFailed(event *models.PaymentFailedEvent) {
	body := fmt.Sprintf("Payment for order %s failed. You can retry the payment from your orders page.\n",
		event.OrderNumber)
	n.send("payment_failed", event.CustomerEmail,
		fmt.Sprintf("Payment failed for order %s", event.OrderNumber), body)
}

// PaymentRefunded confirms a refund to the customer.
func (n *Notifier) PaymentRefunded(event *models.PaymentRefundedEvent) {
	body := fmt.Sprintf("A refund of %s for order %s has been issued. It may take a few days to appear on your statement.\n",
		formatCents(event.AmountCents), event.OrderNumber)
	n.send("payment_refunded", event.CustomerEmail,
		fmt.Sprintf("Refund for order %s", event.OrderNumber), body)
}

func (n *Notifier) send(kind, to, subject, body string) {
	if n.dialer == nil || to == "" {
		util.NotificationsSentTotal.WithLabelValues(kind, "skipped").Inc()
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		util.NotificationsSentTotal.WithLabelValues(kind, "error").Inc()
		n.logger.Error("Failed to send notification email",
			zap.String("kind", kind),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues(kind, "ok").Inc()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d EUR", cents/100, cents%100)
}
