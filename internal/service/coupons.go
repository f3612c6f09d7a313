package service

import (
	"context"
	"strings"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CouponStore is the persistence surface for coupon validation and
// redemption.
type CouponStore interface {
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CountCouponUsages(ctx context.Context, couponID string) (int, error)
	CountCouponUsagesByUser(ctx context.Context, couponID, userID string) (int, error)
	InsertCouponUsage(ctx context.Context, usage *models.CouponUsage) error
	CountOrdersByCustomer(ctx context.Context, customerID string) (int, error)
}

// CreateCouponRequest is the admin coupon creation payload.
type CreateCouponRequest struct {
	Code             string  `json:"code" binding:"required"`
	DiscountType     string  `json:"discount_type" binding:"required"`
	DiscountValue    float64 `json:"discount_value" binding:"required,gt=0"`
	MinOrderCents    int64   `json:"min_order_cents"`
	MaxDiscountCents *int64  `json:"max_discount_cents"`
	FirstOrderOnly   bool    `json:"first_order_only"`
	ValidFrom        string  `json:"valid_from" binding:"required"`
	ValidUntil       string  `json:"valid_until" binding:"required"`
	MaxUses          *int    `json:"max_uses"`
	MaxUsesPerUser   int     `json:"max_uses_per_user"`
}

// CouponService validates and redeems discount coupons.
type CouponService struct {
	store  CouponStore
	logger *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(store CouponStore) *CouponService {
	return &CouponService{store: store, logger: util.GetLogger()}
}

// Create registers a new coupon. Admin only, enforced at the API layer.
func (c *CouponService) Create(ctx context.Context, req *CreateCouponRequest, caller Caller) (*models.Coupon, error) {
	if caller.Role != RoleAdmin {
		return nil, models.ErrForbidden
	}
	if req.DiscountType != models.DiscountTypePercentage && req.DiscountType != models.DiscountTypeFixed {
		return nil, models.NewValidationError("discount_type", "must be percentage or fixed")
	}
	if req.DiscountType == models.DiscountTypePercentage && req.DiscountValue > 100 {
		return nil, models.NewValidationError("discount_value", "percentage cannot exceed 100")
	}
	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		return nil, models.NewValidationError("valid_from", "must be RFC3339")
	}
	validUntil, err := time.Parse(time.RFC3339, req.ValidUntil)
	if err != nil {
		return nil, models.NewValidationError("valid_until", "must be RFC3339")
	}
	if !validUntil.After(validFrom) {
		return nil, models.NewValidationError("valid_until", "must be after valid_from")
	}

	maxPerUser := req.MaxUsesPerUser
	if maxPerUser <= 0 {
		maxPerUser = 1
	}
	coupon := &models.Coupon{
		ID:               uuid.New().String(),
		Code:             strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		MinOrderCents:    req.MinOrderCents,
		MaxDiscountCents: req.MaxDiscountCents,
		FirstOrderOnly:   req.FirstOrderOnly,
		ValidFrom:        validFrom,
		ValidUntil:       validUntil,
		MaxUses:          req.MaxUses,
		MaxUsesPerUser:   maxPerUser,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
	if err := c.store.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}
	c.logger.Info("Coupon created", zap.String("code", coupon.Code))
	return coupon, nil
}

// ValidateForOrder checks every redemption rule for a coupon against a
// user and subtotal and returns the coupon with the discount it would
// grant. It does not consume a use.
func (c *CouponService) ValidateForOrder(ctx context.Context, code, userID string, subtotalCents int64, now time.Time) (*models.Coupon, int64, error) {
	coupon, err := c.store.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}

	if !coupon.IsActive {
		return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "coupon is inactive"}
	}
	if now.Before(coupon.ValidFrom) {
		return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "coupon is not yet valid"}
	}
	if now.After(coupon.ValidUntil) {
		return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "coupon has expired"}
	}
	if subtotalCents < coupon.MinOrderCents {
		return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "order subtotal below coupon minimum"}
	}

	if coupon.MaxUses != nil {
		total, err := c.store.CountCouponUsages(ctx, coupon.ID)
		if err != nil {
			return nil, 0, err
		}
		if total >= *coupon.MaxUses {
			return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "coupon usage limit reached"}
		}
	}

	userUses, err := c.store.CountCouponUsagesByUser(ctx, coupon.ID, userID)
	if err != nil {
		return nil, 0, err
	}
	if userUses >= coupon.MaxUsesPerUser {
		return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "coupon already used"}
	}

	if coupon.FirstOrderOnly {
		orderCount, err := c.store.CountOrdersByCustomer(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		if orderCount > 0 {
			return nil, 0, &models.CouponError{Code: coupon.Code, Reason: "coupon is for first orders only"}
		}
	}

	return coupon, coupon.CalculateDiscount(subtotalCents), nil
}

// RecordUsage logs a redemption against an order.
func (c *CouponService) RecordUsage(ctx context.Context, couponID, userID, orderID string) error {
	return c.store.InsertCouponUsage(ctx, &models.CouponUsage{
		ID:       uuid.New().String(),
		CouponID: couponID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   time.Now(),
	})
}
