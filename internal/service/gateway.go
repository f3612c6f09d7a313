package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"
)

// CheckoutSession is the provider session correlated to an order
type CheckoutSession struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	PaymentStatus   string `json:"payment_status"`
	PaymentIntentID string `json:"payment_intent"`
}

// Gateway talks to the payment provider's REST API. The provider SDK is
// deliberately not used; the contract is three endpoints and a signed
// webhook stream.
type Gateway struct {
	cfg        config.PaymentConfig
	httpClient *http.Client
}

// NewGateway creates a new provider gateway
func NewGateway(cfg config.PaymentConfig) *Gateway {
	return &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the card path can be used
func (g *Gateway) Configured() bool {
	return g.cfg.Configured()
}

// CreateCheckoutSession creates a provider checkout session from the
// order's line-item snapshot, never from the live catalog.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	if !g.cfg.Configured() {
		return nil, &models.PaymentStateError{Reason: "payment provider not configured"}
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", g.cfg.SuccessURL)
	form.Set("cancel_url", g.cfg.CancelURL)
	form.Set("customer_email", order.ShipEmail)
	form.Set("client_reference_id", order.OrderNumber)
	form.Set("metadata[order_id]", order.ID)
	form.Set("payment_intent_data[metadata][order_id]", order.ID)

	for i, item := range order.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
		form.Set(prefix+"[price_data][currency]", g.cfg.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitPriceCents, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.ProductName)
	}
	next := len(order.Items)
	if order.ShippingCents > 0 {
		prefix := fmt.Sprintf("line_items[%d]", next)
		form.Set(prefix+"[quantity]", "1")
		form.Set(prefix+"[price_data][currency]", g.cfg.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(order.ShippingCents, 10))
		form.Set(prefix+"[price_data][product_data][name]", "Shipping")
		next++
	}
	if order.DiscountCents > 0 {
		// provider checkout rejects negative line items; the discount is
		// passed as a one-off coupon on the session
		form.Set("discounts[0][coupon_data][amount_off]", strconv.FormatInt(order.DiscountCents, 10))
		form.Set("discounts[0][coupon_data][currency]", g.cfg.Currency)
		form.Set("discounts[0][coupon_data][duration]", "once")
	}

	var session CheckoutSession
	if err := g.call(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("provider returned incomplete checkout session")
	}
	return &session, nil
}

// RetrieveSession polls the provider for the current session state,
// used as a fallback when webhook delivery is delayed.
func (g *Gateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if !g.cfg.Configured() {
		return nil, &models.PaymentStateError{Reason: "payment provider not configured"}
	}
	if sessionID == "" {
		return nil, models.NewValidationError("session_id", "missing")
	}

	var session CheckoutSession
	if err := g.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (g *Gateway) call(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if jerr := json.Unmarshal(raw, &apiErr); jerr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("provider error (status %d): %s", res.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("provider error (status %d): %s", res.StatusCode, string(raw))
	}

	return json.NewDecoder(res.Body).Decode(out)
}

// signatureTolerance bounds webhook timestamp skew
const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the provider's signature header
// ("t=<unix>,v1=<hex hmac>") against the shared webhook secret.
func (g *Gateway) VerifyWebhookSignature(payload []byte, header string, now time.Time) error {
	if g.cfg.WebhookSecret == "" {
		return &models.PaymentStateError{Reason: "webhook secret not configured"}
	}
	if header == "" {
		return &models.PaymentStateError{Reason: "missing signature header"}
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return &models.PaymentStateError{Reason: "malformed signature header"}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &models.PaymentStateError{Reason: "malformed signature timestamp"}
	}
	if skew := now.Sub(time.Unix(ts, 0)); skew > signatureTolerance || skew < -signatureTolerance {
		return &models.PaymentStateError{Reason: "signature timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return &models.PaymentStateError{Reason: "signature mismatch"}
}

// SignWebhookPayload produces a valid signature header for a payload,
// used by tests and local tooling.
func SignWebhookPayload(secret string, payload []byte, now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
