package service

import (
	"context"
	"errors"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// StockStore is the authoritative ledger: conditional updates in the
// database.
type StockStore interface {
	ReduceBaseStock(ctx context.Context, productID string, quantity int) error
	IncreaseBaseStock(ctx context.Context, productID string, quantity int) error
	ReduceVariantStock(ctx context.Context, variantID string, quantity int) error
	IncreaseVariantStock(ctx context.Context, variantID string, quantity int) error
	ListStockRows(ctx context.Context) ([]store.StockRow, error)
}

// StockCache is the Redis fast path over the ledger counters.
type StockCache interface {
	ReduceStock(ctx context.Context, productID string, variantID *string, quantity int) (ok, known bool, err error)
	RestoreStock(ctx context.Context, productID string, variantID *string, quantity int) error
	InitStock(ctx context.Context, productID string, variantID *string, stock int) error
}

// StockLedger mediates all stock mutations. The database conditional
// update is the source of truth; Redis rejects obvious oversells
// cheaply and is resynced on any disagreement.
type StockLedger struct {
	store  StockStore
	cache  StockCache
	logger *zap.Logger
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(store StockStore, cache StockCache) *StockLedger {
	return &StockLedger{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Reduce decrements a counter with a floor check. Returns
// store.ErrInsufficientStock when the requested quantity exceeds the
// available stock.
func (sl *StockLedger) Reduce(ctx context.Context, productID string, variantID *string, quantity int) error {
	start := time.Now()
	defer func() {
		util.StockReduceLatency.Observe(time.Since(start).Seconds())
	}()

	cacheHit := false
	if sl.cache != nil {
		ok, known, err := sl.cache.ReduceStock(ctx, productID, variantID, quantity)
		switch {
		case err != nil:
			sl.logger.Warn("Redis stock check failed, using database only",
				zap.String("product_id", productID),
				zap.Error(err))
		case known && !ok:
			util.StockReductionsFailed.WithLabelValues("insufficient_stock").Inc()
			return store.ErrInsufficientStock
		case known:
			cacheHit = true
		}
	}

	var err error
	if variantID != nil && *variantID != "" {
		err = sl.store.ReduceVariantStock(ctx, *variantID, quantity)
	} else {
		err = sl.store.ReduceBaseStock(ctx, productID, quantity)
	}
	if err != nil {
		if cacheHit {
			if rerr := sl.cache.RestoreStock(ctx, productID, variantID, quantity); rerr != nil {
				sl.logger.Error("Failed to roll back Redis stock",
					zap.String("product_id", productID),
					zap.Error(rerr))
			}
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			util.StockReductionsFailed.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.StockReductionsFailed.WithLabelValues("db_error").Inc()
		}
		return err
	}

	return nil
}

// Restore adds stock back, used by the refund and cancellation paths.
func (sl *StockLedger) Restore(ctx context.Context, productID string, variantID *string, quantity int) error {
	var err error
	if variantID != nil && *variantID != "" {
		err = sl.store.IncreaseVariantStock(ctx, *variantID, quantity)
	} else {
		err = sl.store.IncreaseBaseStock(ctx, productID, quantity)
	}
	if err != nil {
		return err
	}

	if sl.cache != nil {
		if cerr := sl.cache.RestoreStock(ctx, productID, variantID, quantity); cerr != nil {
			sl.logger.Warn("Failed to restore Redis stock",
				zap.String("product_id", productID),
				zap.Error(cerr))
		}
	}
	return nil
}

// SyncProduct seeds the cache counters for one product and its
// variants, used right after product creation.
func (sl *StockLedger) SyncProduct(ctx context.Context, product *models.Product) error {
	if sl.cache == nil {
		return nil
	}
	if !product.HasVariants {
		return sl.cache.InitStock(ctx, product.ID, nil, product.BaseStock)
	}
	for i := range product.Variants {
		v := &product.Variants[i]
		if err := sl.cache.InitStock(ctx, product.ID, &v.ID, v.Stock); err != nil {
			return err
		}
	}
	return nil
}

// SyncToRedis loads every ledger counter from the database snapshot.
func (sl *StockLedger) SyncToRedis(ctx context.Context) error {
	if sl.cache == nil {
		return nil
	}

	rows, err := sl.store.ListStockRows(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := sl.cache.InitStock(ctx, row.ProductID, row.VariantID, row.Stock); err != nil {
			sl.logger.Error("Failed to init Redis stock counter",
				zap.String("product_id", row.ProductID),
				zap.Error(err))
		}
	}

	sl.logger.Info("Stock ledger synced to Redis", zap.Int("counters", len(rows)))
	return nil
}
