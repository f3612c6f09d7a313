package service

import (
	"context"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewStore is the persistence surface for verified-purchase reviews.
type ReviewStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	InsertReview(ctx context.Context, review *models.Review) error
	GetReviewByID(ctx context.Context, id string) (*models.Review, error)
	HasReview(ctx context.Context, userID, productID string) (bool, error)
	DeleteReview(ctx context.Context, id string) error
	ListProductReviews(ctx context.Context, productID string) ([]models.Review, error)
	RefreshProductRating(ctx context.Context, productID string) error
	RefreshProducerRating(ctx context.Context, producerID string) error
}

// CreateReviewRequest is the review creation payload.
type CreateReviewRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Comment   string `json:"comment"`
}

// ReviewService enforces the verified-purchase rules: only the buyer
// of a delivered order may review a product it contained, once.
type ReviewService struct {
	store  ReviewStore
	logger *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(store ReviewStore) *ReviewService {
	return &ReviewService{store: store, logger: util.GetLogger()}
}

// Create validates and records a review, then refreshes the product
// and producer rating rollups.
func (r *ReviewService) Create(ctx context.Context, req *CreateReviewRequest, caller Caller) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.Create")
	defer span.End()

	if req.Rating < 1 || req.Rating > 5 {
		return nil, models.NewValidationError("rating", "must be between 1 and 5")
	}

	order, err := r.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != caller.UserID {
		return nil, models.ErrForbidden
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, models.NewValidationError("order_id", "order has not been delivered")
	}

	var producerID string
	for _, item := range order.Items {
		if item.ProductID == req.ProductID {
			producerID = item.ProducerID
			break
		}
	}
	if producerID == "" {
		return nil, models.NewValidationError("product_id", "product is not part of this order")
	}

	exists, err := r.store.HasReview(ctx, caller.UserID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewValidationError("product_id", "product already reviewed")
	}

	review := &models.Review{
		ID:         uuid.New().String(),
		UserID:     caller.UserID,
		ProductID:  req.ProductID,
		ProducerID: producerID,
		OrderID:    req.OrderID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  time.Now(),
	}
	if err := r.store.InsertReview(ctx, review); err != nil {
		return nil, err
	}

	r.refreshRollups(ctx, review.ProductID, review.ProducerID)
	r.logger.Info("Review created",
		zap.String("product_id", review.ProductID),
		zap.Int("rating", review.Rating))
	return review, nil
}

// Delete removes a review. Owners and admins only.
func (r *ReviewService) Delete(ctx context.Context, reviewID string, caller Caller) error {
	review, err := r.store.GetReviewByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if caller.Role != RoleAdmin && review.UserID != caller.UserID {
		return models.ErrForbidden
	}
	if err := r.store.DeleteReview(ctx, reviewID); err != nil {
		return err
	}
	r.refreshRollups(ctx, review.ProductID, review.ProducerID)
	return nil
}

// ListForProduct returns a product's reviews, newest first.
func (r *ReviewService) ListForProduct(ctx context.Context, productID string) ([]models.Review, error) {
	return r.store.ListProductReviews(ctx, productID)
}

func (r *ReviewService) refreshRollups(ctx context.Context, productID, producerID string) {
	if err := r.store.RefreshProductRating(ctx, productID); err != nil {
		r.logger.Error("Failed to refresh product rating", zap.String("product_id", productID), zap.Error(err))
	}
	if err := r.store.RefreshProducerRating(ctx, producerID); err != nil {
		r.logger.Error("Failed to refresh producer rating", zap.String("producer_id", producerID), zap.Error(err))
	}
}
