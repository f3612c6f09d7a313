package service

import (
	"context"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductStore is the persistence surface for catalog management.
type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error)
	GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error)
}

// StockInitializer seeds the cache counters for new products.
type StockInitializer interface {
	SyncProduct(ctx context.Context, product *models.Product) error
}

// VariantRequest is one variant in a product creation payload.
type VariantRequest struct {
	Name           models.LocalizedText `json:"name" binding:"required"`
	PriceCents     int64                `json:"price_cents" binding:"required,gt=0"`
	CompareAtCents *int64               `json:"compare_at_cents"`
	Stock          int                  `json:"stock"`
	Weight         float64              `json:"weight"`
	WeightUnit     string               `json:"weight_unit"`
	IsDefault      bool                 `json:"is_default"`
}

// CreateProductRequest is the product creation payload.
type CreateProductRequest struct {
	Name           models.LocalizedText `json:"name" binding:"required"`
	Description    models.LocalizedText `json:"description"`
	Category       string               `json:"category" binding:"required"`
	BasePriceCents int64                `json:"base_price_cents"`
	BaseStock      int                  `json:"base_stock"`
	Variants       []VariantRequest     `json:"variants"`
}

// CatalogService manages products on behalf of approved producers.
type CatalogService struct {
	store  ProductStore
	stock  StockInitializer
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store ProductStore, stock StockInitializer) *CatalogService {
	return &CatalogService{store: store, stock: stock, logger: util.GetLogger()}
}

// CreateProduct registers a product for the calling producer. Only
// approved, non-suspended producers can list products.
func (c *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest, caller Caller) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if caller.Role != RoleProducer && caller.Role != RoleAdmin {
		return nil, models.ErrForbidden
	}
	producer, err := c.store.GetProducerByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !producer.Approved || producer.Suspended {
		return nil, models.ErrForbidden
	}

	hasVariants := len(req.Variants) > 0
	if !hasVariants && req.BasePriceCents <= 0 {
		return nil, models.NewValidationError("base_price_cents", "must be positive")
	}
	if !hasVariants && req.BaseStock < 0 {
		return nil, models.NewValidationError("base_stock", "cannot be negative")
	}
	if hasVariants {
		available, defaults := 0, 0
		for _, v := range req.Variants {
			if v.Stock > 0 {
				available++
				if v.IsDefault {
					defaults++
				}
			}
		}
		if available > 0 && defaults != 1 {
			return nil, models.NewValidationError("variants",
				"exactly one available variant must be marked default")
		}
	}

	now := time.Now()
	product := &models.Product{
		ID:             uuid.New().String(),
		ProducerID:     producer.ID,
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		BasePriceCents: req.BasePriceCents,
		BaseStock:      req.BaseStock,
		HasVariants:    hasVariants,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, v := range req.Variants {
		if v.Stock < 0 {
			return nil, models.NewValidationError("variants", "stock cannot be negative")
		}
		product.Variants = append(product.Variants, models.Variant{
			ID:             uuid.New().String(),
			ProductID:      product.ID,
			Name:           v.Name,
			PriceCents:     v.PriceCents,
			CompareAtCents: v.CompareAtCents,
			Stock:          v.Stock,
			Weight:         v.Weight,
			WeightUnit:     v.WeightUnit,
			IsDefault:      v.IsDefault,
			IsAvailable:    v.Stock > 0,
		})
	}
	product.IsAvailable = product.TotalStock() > 0

	if err := c.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	if c.stock != nil {
		if err := c.stock.SyncProduct(ctx, product); err != nil {
			c.logger.Warn("Failed to seed stock cache for product",
				zap.String("product_id", product.ID), zap.Error(err))
		}
	}

	c.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("producer_id", producer.ID))
	return product, nil
}

// GetProduct retrieves one product with its variants.
func (c *CatalogService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	return c.store.GetProductByID(ctx, productID)
}

// ListProducts pages through available products.
func (c *CatalogService) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return c.store.ListProducts(ctx, limit, offset)
}
