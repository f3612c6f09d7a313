package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalizedTextGet(t *testing.T) {
	text := LocalizedText{"en": "Honey", "fr": "Miel"}

	assert.Equal(t, "Miel", text.Get("fr"))
	assert.Equal(t, "Honey", text.Get("de"))

	onlyFrench := LocalizedText{"fr": "Miel"}
	assert.Equal(t, "Miel", onlyFrench.Get("de"))

	assert.Equal(t, "", LocalizedText{}.Get("en"))
}

func TestTotalStock(t *testing.T) {
	simple := &Product{BaseStock: 7}
	assert.Equal(t, 7, simple.TotalStock())

	withVariants := &Product{
		HasVariants: true,
		BaseStock:   99, // ignored when variants exist
		Variants: []Variant{
			{Stock: 3},
			{Stock: 5},
		},
	}
	assert.Equal(t, 8, withVariants.TotalStock())
}

func TestEffectiveCommissionRate(t *testing.T) {
	now := time.Now()
	special := 10.0
	until := now.Add(24 * time.Hour)

	p := &Producer{
		CommissionRate:         15,
		SpecialCommissionRate:  &special,
		SpecialCommissionUntil: &until,
	}
	assert.Equal(t, 10.0, p.EffectiveCommissionRate(now))
	assert.Equal(t, 15.0, p.EffectiveCommissionRate(until.Add(time.Second)))

	plain := &Producer{CommissionRate: 15}
	assert.Equal(t, 15.0, plain.EffectiveCommissionRate(now))
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	number := NewOrderNumber(now)

	assert.True(t, strings.HasPrefix(number, "ORD-20260314-"))
	assert.Len(t, number, len("ORD-20260314-")+8)
	assert.Equal(t, strings.ToUpper(number), number)

	assert.NotEqual(t, number, NewOrderNumber(now))
}

func TestCalculateDiscountPercentage(t *testing.T) {
	coupon := &Coupon{DiscountType: DiscountTypePercentage, DiscountValue: 10}
	assert.Equal(t, int64(500), coupon.CalculateDiscount(5000))
}

func TestCalculateDiscountFixed(t *testing.T) {
	coupon := &Coupon{DiscountType: DiscountTypeFixed, DiscountValue: 5}
	assert.Equal(t, int64(500), coupon.CalculateDiscount(5000))
}

func TestCalculateDiscountNeverExceedsSubtotal(t *testing.T) {
	coupon := &Coupon{DiscountType: DiscountTypeFixed, DiscountValue: 100}
	assert.Equal(t, int64(2000), coupon.CalculateDiscount(2000))
}

func TestCalculateDiscountAppliesCap(t *testing.T) {
	cap := int64(300)
	coupon := &Coupon{
		DiscountType:     DiscountTypePercentage,
		DiscountValue:    50,
		MaxDiscountCents: &cap,
	}
	assert.Equal(t, int64(300), coupon.CalculateDiscount(10000))
}

func TestCalculateDiscountNeverNegative(t *testing.T) {
	coupon := &Coupon{DiscountType: DiscountTypeFixed, DiscountValue: 10}
	assert.Equal(t, int64(0), coupon.CalculateDiscount(0))
}
