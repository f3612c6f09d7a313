package store

import (
	"context"
	"database/sql"
	"strings"

	"marketplace-service/internal/models"
)

// CreateCoupon inserts a coupon
func (s *Store) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_order_cents,
			max_discount_cents, first_order_only, valid_from, valid_until, max_uses,
			max_uses_per_user, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		coupon.ID, strings.ToUpper(coupon.Code), coupon.DiscountType, coupon.DiscountValue,
		coupon.MinOrderCents, coupon.MaxDiscountCents, coupon.FirstOrderOnly,
		coupon.ValidFrom, coupon.ValidUntil, coupon.MaxUses, coupon.MaxUsesPerUser,
		coupon.IsActive, coupon.CreatedAt)
	return err
}

// GetCouponByCode retrieves a coupon by its (case-insensitive) code
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon,
		"SELECT * FROM coupons WHERE code = $1", strings.ToUpper(code))
	if err == sql.ErrNoRows {
		return nil, models.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// CountCouponUsages counts total redemptions of a coupon
func (s *Store) CountCouponUsages(ctx context.Context, couponID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1", couponID)
	return count, err
}

// CountCouponUsagesByUser counts one user's redemptions of a coupon
func (s *Store) CountCouponUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2",
		couponID, userID)
	return count, err
}

// InsertCouponUsage appends a redemption log entry
func (s *Store) InsertCouponUsage(ctx context.Context, usage *models.CouponUsage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4, $5)`,
		usage.ID, usage.CouponID, usage.UserID, usage.OrderID, usage.UsedAt)
	return err
}
