package store

import (
	"context"
	"database/sql"
	"time"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateProducer inserts a new, unapproved producer
func (s *Store) CreateProducer(ctx context.Context, producer *models.Producer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO producers (id, user_id, business_name, description, contact_email,
			approved, suspended, commission_rate, referral_code, referred_by,
			referral_count, referral_bonus_applied, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6, $7, $8, 0, FALSE, $9, $9)`,
		producer.ID, producer.UserID, producer.BusinessName, producer.Description,
		producer.ContactEmail, producer.CommissionRate, producer.ReferralCode,
		producer.ReferredBy, producer.CreatedAt)
	return err
}

// GetProducerByID retrieves a producer
func (s *Store) GetProducerByID(ctx context.Context, id string) (*models.Producer, error) {
	var producer models.Producer
	err := s.db.GetContext(ctx, &producer, "SELECT * FROM producers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrProducerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &producer, nil
}

// GetProducerByUserID retrieves the producer owned by a user
func (s *Store) GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error) {
	var producer models.Producer
	err := s.db.GetContext(ctx, &producer, "SELECT * FROM producers WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, models.ErrProducerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &producer, nil
}

// GetProducersByIDs retrieves multiple producers at once
func (s *Store) GetProducersByIDs(ctx context.Context, ids []string) ([]models.Producer, error) {
	if len(ids) == 0 {
		return []models.Producer{}, nil
	}
	query, args, err := sqlx.In("SELECT * FROM producers WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var producers []models.Producer
	err = s.db.SelectContext(ctx, &producers, query, args...)
	return producers, err
}

// GetProducerByReferralCode resolves a referral code to its owner
func (s *Store) GetProducerByReferralCode(ctx context.Context, code string) (*models.Producer, error) {
	var producer models.Producer
	err := s.db.GetContext(ctx, &producer, "SELECT * FROM producers WHERE referral_code = $1", code)
	if err == sql.ErrNoRows {
		return nil, models.ErrProducerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &producer, nil
}

// SetProducerApproval flips the approval flag
func (s *Store) SetProducerApproval(ctx context.Context, id string, approved bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE producers SET approved = $1, updated_at = NOW() WHERE id = $2",
		approved, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrProducerNotFound
	}
	return nil
}

// SetProducerSuspended flips the suspension flag
func (s *Store) SetProducerSuspended(ctx context.Context, id string, suspended bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE producers SET suspended = $1, updated_at = NOW() WHERE id = $2",
		suspended, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrProducerNotFound
	}
	return nil
}

// ClaimReferralBonus flips referral_bonus_applied exactly once for a
// referred producer. Returns false when the bonus was already applied
// or the producer has no referrer.
func (s *Store) ClaimReferralBonus(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE producers
		SET referral_bonus_applied = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT referral_bonus_applied AND referred_by IS NOT NULL`,
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GrantSpecialRate sets a time-bounded special commission rate. An
// existing active window is extended, never shortened.
func (s *Store) GrantSpecialRate(ctx context.Context, id string, rate float64, until time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE producers
		SET special_commission_rate = $1,
		    special_commission_until = GREATEST(COALESCE(special_commission_until, to_timestamp(0)), $2),
		    updated_at = NOW()
		WHERE id = $3`,
		rate, until, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrProducerNotFound
	}
	return nil
}

// IncrementReferralCount bumps the referrer's counter
func (s *Store) IncrementReferralCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE producers SET referral_count = referral_count + 1, updated_at = NOW() WHERE id = $1", id)
	return err
}

// PaidItemRow is one order-item snapshot from a paid order
type PaidItemRow struct {
	OrderID        string  `db:"order_id"`
	Quantity       int     `db:"quantity"`
	UnitPriceCents int64   `db:"unit_price_cents"`
	CommissionRate float64 `db:"commission_rate"`
}

// GetPaidItemsByProducer returns line-item snapshots for all paid
// orders containing the producer's products.
func (s *Store) GetPaidItemsByProducer(ctx context.Context, producerID string) ([]PaidItemRow, error) {
	var rows []PaidItemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT oi.order_id, oi.quantity, oi.unit_price_cents, oi.commission_rate
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.producer_id = $1 AND o.payment_status = $2`,
		producerID, models.PaymentStatusPaid)
	return rows, err
}
