package store

import (
	"context"
	"database/sql"

	"marketplace-service/internal/models"
)

// InsertReview inserts a review; the unique (user_id, product_id)
// constraint rejects duplicates.
func (s *Store) InsertReview(ctx context.Context, review *models.Review) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, user_id, product_id, producer_id, order_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		review.ID, review.UserID, review.ProductID, review.ProducerID,
		review.OrderID, review.Rating, review.Comment, review.CreatedAt)
	return err
}

// GetReviewByID retrieves a review
func (s *Store) GetReviewByID(ctx context.Context, id string) (*models.Review, error) {
	var review models.Review
	err := s.db.GetContext(ctx, &review, "SELECT * FROM reviews WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrReviewNotFound
	}
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// HasReview reports whether the user already reviewed the product
func (s *Store) HasReview(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM reviews WHERE user_id = $1 AND product_id = $2)",
		userID, productID)
	return exists, err
}

// DeleteReview removes a review
func (s *Store) DeleteReview(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrReviewNotFound
	}
	return nil
}

// ListProductReviews retrieves reviews for a product, newest first
func (s *Store) ListProductReviews(ctx context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT * FROM reviews WHERE product_id = $1 ORDER BY created_at DESC", productID)
	return reviews, err
}

// RefreshProductRating recomputes and persists the product rollup
func (s *Store) RefreshProductRating(ctx context.Context, productID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products p
		SET rating_avg = COALESCE(r.avg, 0),
		    rating_count = COALESCE(r.cnt, 0),
		    updated_at = NOW()
		FROM (SELECT AVG(rating)::float8 AS avg, COUNT(*) AS cnt
		      FROM reviews WHERE product_id = $1) r
		WHERE p.id = $1`,
		productID)
	return err
}

// RefreshProducerRating recomputes and persists the producer rollup
func (s *Store) RefreshProducerRating(ctx context.Context, producerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE producers p
		SET rating_avg = COALESCE(r.avg, 0),
		    rating_count = COALESCE(r.cnt, 0),
		    updated_at = NOW()
		FROM (SELECT AVG(rating)::float8 AS avg, COUNT(*) AS cnt
		      FROM reviews WHERE producer_id = $1) r
		WHERE p.id = $1`,
		producerID)
	return err
}
