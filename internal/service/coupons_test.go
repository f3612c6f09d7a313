package service

import (
	"context"
	"testing"
	"time"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func activeCoupon() *models.Coupon {
	return &models.Coupon{
		ID:             "c1",
		Code:           "WELCOME10",
		DiscountType:   models.DiscountTypePercentage,
		DiscountValue:  10,
		MinOrderCents:  1000,
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidUntil:     time.Now().Add(time.Hour),
		MaxUsesPerUser: 1,
		IsActive:       true,
	}
}

func TestValidateForOrderHappyPath(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(activeCoupon(), nil)
	store.On("CountCouponUsagesByUser", mock.Anything, "c1", "u1").Return(0, nil)

	coupon, discount, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 5000, time.Now())

	assert.NoError(t, err)
	assert.Equal(t, "WELCOME10", coupon.Code)
	assert.Equal(t, int64(500), discount)
}

func TestValidateForOrderExpired(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	coupon := activeCoupon()
	coupon.ValidUntil = time.Now().Add(-time.Minute)
	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(coupon, nil)

	_, _, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 5000, time.Now())

	var couponErr *models.CouponError
	assert.ErrorAs(t, err, &couponErr)
}

func TestValidateForOrderInactive(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	coupon := activeCoupon()
	coupon.IsActive = false
	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(coupon, nil)

	_, _, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 5000, time.Now())

	var couponErr *models.CouponError
	assert.ErrorAs(t, err, &couponErr)
}

func TestValidateForOrderBelowMinimum(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(activeCoupon(), nil)

	_, _, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 500, time.Now())

	var couponErr *models.CouponError
	assert.ErrorAs(t, err, &couponErr)
}

func TestValidateForOrderGlobalUsageCap(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	maxUses := 100
	coupon := activeCoupon()
	coupon.MaxUses = &maxUses
	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(coupon, nil)
	store.On("CountCouponUsages", mock.Anything, "c1").Return(100, nil)

	_, _, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 5000, time.Now())

	var couponErr *models.CouponError
	assert.ErrorAs(t, err, &couponErr)
}

func TestValidateForOrderPerUserCap(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(activeCoupon(), nil)
	store.On("CountCouponUsagesByUser", mock.Anything, "c1", "u1").Return(1, nil)

	_, _, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 5000, time.Now())

	var couponErr *models.CouponError
	assert.ErrorAs(t, err, &couponErr)
}

func TestValidateForOrderFirstOrderOnly(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	coupon := activeCoupon()
	coupon.FirstOrderOnly = true
	store.On("GetCouponByCode", mock.Anything, "WELCOME10").Return(coupon, nil)
	store.On("CountCouponUsagesByUser", mock.Anything, "c1", "u1").Return(0, nil)
	store.On("CountOrdersByCustomer", mock.Anything, "u1").Return(3, nil)

	_, _, err := svc.ValidateForOrder(context.Background(), "WELCOME10", "u1", 5000, time.Now())

	var couponErr *models.CouponError
	assert.ErrorAs(t, err, &couponErr)
}

func TestValidateForOrderUnknownCode(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	store.On("GetCouponByCode", mock.Anything, "NOPE").Return(nil, models.ErrCouponNotFound)

	_, _, err := svc.ValidateForOrder(context.Background(), "NOPE", "u1", 5000, time.Now())
	assert.ErrorIs(t, err, models.ErrCouponNotFound)
}

func TestCreateCouponAdminOnly(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	_, err := svc.Create(context.Background(), &CreateCouponRequest{}, Caller{UserID: "u1", Role: RoleCustomer})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCreateCouponNormalizesCode(t *testing.T) {
	store := new(mockCouponStore)
	svc := NewCouponService(store)

	store.On("CreateCoupon", mock.Anything, mock.MatchedBy(func(c *models.Coupon) bool {
		return c.Code == "SUMMER25" && c.MaxUsesPerUser == 1
	})).Return(nil)

	coupon, err := svc.Create(context.Background(), &CreateCouponRequest{
		Code:          " summer25 ",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 25,
		ValidFrom:     time.Now().Format(time.RFC3339),
		ValidUntil:    time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, Caller{UserID: "a1", Role: RoleAdmin})

	assert.NoError(t, err)
	assert.Equal(t, "SUMMER25", coupon.Code)
}
