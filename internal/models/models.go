package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalizedText maps a language code to a translated string. Stored as JSONB.
type LocalizedText map[string]string

func (t LocalizedText) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

func (t *LocalizedText) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = LocalizedText{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("cannot scan %T into LocalizedText", src)
	}
}

// Get resolves a translation with fallback to English, then any entry.
func (t LocalizedText) Get(lang string) string {
	if s, ok := t[lang]; ok && s != "" {
		return s
	}
	if s, ok := t["en"]; ok && s != "" {
		return s
	}
	for _, s := range t {
		if s != "" {
			return s
		}
	}
	return ""
}

// Product represents a catalog product owned by a producer
type Product struct {
	ID             string        `db:"id" json:"id"`
	ProducerID     string        `db:"producer_id" json:"producer_id"`
	Name           LocalizedText `db:"name" json:"name"`
	Description    LocalizedText `db:"description" json:"description"`
	Category       string        `db:"category" json:"category"`
	BasePriceCents int64         `db:"base_price_cents" json:"base_price_cents"`
	BaseStock      int           `db:"base_stock" json:"base_stock"`
	HasVariants    bool          `db:"has_variants" json:"has_variants"`
	IsAvailable    bool          `db:"is_available" json:"is_available"`
	RatingAvg      float64       `db:"rating_avg" json:"rating_avg"`
	RatingCount    int           `db:"rating_count" json:"rating_count"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`

	Variants []Variant `db:"-" json:"variants,omitempty"`
}

// Variant represents a purchasable variation of a product
type Variant struct {
	ID             string        `db:"id" json:"id"`
	ProductID      string        `db:"product_id" json:"product_id"`
	Name           LocalizedText `db:"name" json:"name"`
	PriceCents     int64         `db:"price_cents" json:"price_cents"`
	CompareAtCents *int64        `db:"compare_at_cents" json:"compare_at_cents,omitempty"`
	Stock          int           `db:"stock" json:"stock"`
	Weight         float64       `db:"weight" json:"weight"`
	WeightUnit     string        `db:"weight_unit" json:"weight_unit"`
	IsDefault      bool          `db:"is_default" json:"is_default"`
	IsAvailable    bool          `db:"is_available" json:"is_available"`
}

// TotalStock is the displayed stock: sum of variant stocks when variants
// are used, base stock otherwise.
func (p *Product) TotalStock() int {
	if !p.HasVariants {
		return p.BaseStock
	}
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// Producer represents a seller on the marketplace
type Producer struct {
	ID                     string        `db:"id" json:"id"`
	UserID                 string        `db:"user_id" json:"user_id"`
	BusinessName           string        `db:"business_name" json:"business_name"`
	Description            LocalizedText `db:"description" json:"description"`
	ContactEmail           string        `db:"contact_email" json:"contact_email"`
	Approved               bool          `db:"approved" json:"approved"`
	Suspended              bool          `db:"suspended" json:"suspended"`
	CommissionRate         float64       `db:"commission_rate" json:"commission_rate"`
	SpecialCommissionRate  *float64      `db:"special_commission_rate" json:"special_commission_rate,omitempty"`
	SpecialCommissionUntil *time.Time    `db:"special_commission_until" json:"special_commission_until,omitempty"`
	ReferralCode           string        `db:"referral_code" json:"referral_code"`
	ReferredBy             *string       `db:"referred_by" json:"referred_by,omitempty"`
	ReferralCount          int           `db:"referral_count" json:"referral_count"`
	ReferralBonusApplied   bool          `db:"referral_bonus_applied" json:"referral_bonus_applied"`
	RatingAvg              float64       `db:"rating_avg" json:"rating_avg"`
	RatingCount            int           `db:"rating_count" json:"rating_count"`
	CreatedAt              time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updated_at"`
}

// EffectiveCommissionRate resolves the rate in force at the given time:
// the special rate while its window is open, the base rate otherwise.
func (p *Producer) EffectiveCommissionRate(now time.Time) float64 {
	if p.SpecialCommissionRate != nil && p.SpecialCommissionUntil != nil && now.Before(*p.SpecialCommissionUntil) {
		return *p.SpecialCommissionRate
	}
	return p.CommissionRate
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Payment methods
const (
	PaymentMethodCard           = "card"
	PaymentMethodBankTransfer   = "bank_transfer"
	PaymentMethodCashOnDelivery = "cash_on_delivery"
)

// Order represents a customer order. Monetary fields are integer cents
// and immutable after creation: total = subtotal + shipping - discount.
type Order struct {
	ID                string     `db:"id" json:"id"`
	OrderNumber       string     `db:"order_number" json:"order_number"`
	CustomerID        string     `db:"customer_id" json:"customer_id"`
	SubtotalCents     int64      `db:"subtotal_cents" json:"subtotal_cents"`
	ShippingCents     int64      `db:"shipping_cents" json:"shipping_cents"`
	DiscountCents     int64      `db:"discount_cents" json:"discount_cents"`
	TotalCents        int64      `db:"total_cents" json:"total_cents"`
	CouponID          *string    `db:"coupon_id" json:"coupon_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	PaymentMethod     string     `db:"payment_method" json:"payment_method"`
	PaymentStatus     string     `db:"payment_status" json:"payment_status"`
	StockCommitted    bool       `db:"stock_committed" json:"stock_committed"`
	ShipName          string     `db:"ship_name" json:"ship_name"`
	ShipEmail         string     `db:"ship_email" json:"ship_email"`
	ShipPhone         string     `db:"ship_phone" json:"ship_phone"`
	ShipLine1         string     `db:"ship_line1" json:"ship_line1"`
	ShipCity          string     `db:"ship_city" json:"ship_city"`
	ShipPostalCode    string     `db:"ship_postal_code" json:"ship_postal_code"`
	ShipCountry       string     `db:"ship_country" json:"ship_country"`
	CheckoutSessionID *string    `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	PaymentIntentID   *string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	TrackingNumber    *string    `db:"tracking_number" json:"tracking_number,omitempty"`
	ShippedAt         *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is an immutable snapshot of one product at purchase time.
// Price, name and commission rate never change after the order exists.
type OrderItem struct {
	ID             string  `db:"id" json:"id"`
	OrderID        string  `db:"order_id" json:"order_id"`
	ProductID      string  `db:"product_id" json:"product_id"`
	VariantID      *string `db:"variant_id" json:"variant_id,omitempty"`
	ProducerID     string  `db:"producer_id" json:"producer_id"`
	ProductName    string  `db:"product_name" json:"product_name"`
	Quantity       int     `db:"quantity" json:"quantity"`
	UnitPriceCents int64   `db:"unit_price_cents" json:"unit_price_cents"`
	CommissionRate float64 `db:"commission_rate" json:"commission_rate"`
}

// NewOrderNumber generates a human-readable order number from the
// current date plus a random suffix.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Coupon discount types
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// Coupon represents a discount code. DiscountValue is a percentage
// for percentage coupons and whole currency units (not cents) for
// fixed coupons; CalculateDiscount converts to cents.
type Coupon struct {
	ID               string    `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	DiscountType     string    `db:"discount_type" json:"discount_type"`
	DiscountValue    float64   `db:"discount_value" json:"discount_value"`
	MinOrderCents    int64     `db:"min_order_cents" json:"min_order_cents"`
	MaxDiscountCents *int64    `db:"max_discount_cents" json:"max_discount_cents,omitempty"`
	FirstOrderOnly   bool      `db:"first_order_only" json:"first_order_only"`
	ValidFrom        time.Time `db:"valid_from" json:"valid_from"`
	ValidUntil       time.Time `db:"valid_until" json:"valid_until"`
	MaxUses          *int      `db:"max_uses" json:"max_uses,omitempty"`
	MaxUsesPerUser   int       `db:"max_uses_per_user" json:"max_uses_per_user"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// CalculateDiscount computes the discount for a subtotal, clamped to
// [0, subtotal] and to MaxDiscountCents when set.
func (c *Coupon) CalculateDiscount(subtotalCents int64) int64 {
	var discount int64
	switch c.DiscountType {
	case DiscountTypePercentage:
		discount = int64(float64(subtotalCents) * c.DiscountValue / 100)
	case DiscountTypeFixed:
		discount = int64(c.DiscountValue * 100)
	default:
		return 0
	}
	if c.MaxDiscountCents != nil && discount > *c.MaxDiscountCents {
		discount = *c.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// CouponUsage is an append-only redemption log entry
type CouponUsage struct {
	ID       string    `db:"id" json:"id"`
	CouponID string    `db:"coupon_id" json:"coupon_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	OrderID  string    `db:"order_id" json:"order_id"`
	UsedAt   time.Time `db:"used_at" json:"used_at"`
}

// Review represents a verified-purchase product review
type Review struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	ProducerID string    `db:"producer_id" json:"producer_id"`
	OrderID    string    `db:"order_id" json:"order_id"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Payment represents a payment attempt against an order
type Payment struct {
	ID                string    `db:"id" json:"id"`
	OrderID           string    `db:"order_id" json:"order_id"`
	Provider          string    `db:"provider" json:"provider"`
	Status            string    `db:"status" json:"status"`
	CheckoutSessionID *string   `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	PaymentIntentID   *string   `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	AmountCents       int64     `db:"amount_cents" json:"amount_cents"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for webhook idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// ProducerStats aggregates revenue for a producer over paid orders
type ProducerStats struct {
	ProducerID      string `json:"producer_id"`
	OrderCount      int    `json:"order_count"`
	ItemCount       int    `json:"item_count"`
	GrossCents      int64  `json:"gross_cents"`
	CommissionCents int64  `json:"commission_cents"`
	NetPayoutCents  int64  `json:"net_payout_cents"`
}
