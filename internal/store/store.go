package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrInsufficientStock is returned when a conditional stock decrement
// matches no row, i.e. the floor check failed.
var ErrInsufficientStock = errors.New("insufficient stock")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product with its variants
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if product.HasVariants {
		if err := s.db.SelectContext(ctx, &product.Variants,
			"SELECT * FROM product_variants WHERE product_id = $1 ORDER BY is_default DESC, id", id); err != nil {
			return nil, err
		}
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs, without variants
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetVariantByID retrieves a single variant
func (s *Store) GetVariantByID(ctx context.Context, id string) (*models.Variant, error) {
	var variant models.Variant
	err := s.db.GetContext(ctx, &variant, "SELECT * FROM product_variants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// ListProducts retrieves available products, most recent first
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE is_available ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
	return products, err
}

// CreateProduct inserts a product and its variants
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, producer_id, name, description, category,
			base_price_cents, base_stock, has_variants, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		product.ID, product.ProducerID, product.Name, product.Description, product.Category,
		product.BasePriceCents, product.BaseStock, product.HasVariants, product.IsAvailable,
		product.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	for i := range product.Variants {
		v := &product.Variants[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_variants (id, product_id, name, price_cents, compare_at_cents,
				stock, weight, weight_unit, is_default, is_available)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			v.ID, product.ID, v.Name, v.PriceCents, v.CompareAtCents,
			v.Stock, v.Weight, v.WeightUnit, v.IsDefault, v.IsAvailable)
		if err != nil {
			return fmt.Errorf("failed to insert variant: %w", err)
		}
	}

	return tx.Commit()
}

// StockRow is one ledger counter, base or variant level
type StockRow struct {
	ProductID string  `db:"product_id"`
	VariantID *string `db:"variant_id"`
	Stock     int     `db:"stock"`
}

// ListStockRows returns every stock counter for syncing into Redis
func (s *Store) ListStockRows(ctx context.Context) ([]StockRow, error) {
	var rows []StockRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id AS product_id, NULL AS variant_id, base_stock AS stock
		FROM products WHERE NOT has_variants
		UNION ALL
		SELECT product_id, id AS variant_id, stock
		FROM product_variants`)
	return rows, err
}

// ReduceBaseStock atomically decrements base stock with a floor check.
// Availability flips off when the counter reaches zero.
func (s *Store) ReduceBaseStock(ctx context.Context, productID string, quantity int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET base_stock = base_stock - $1,
		    is_available = (base_stock - $1) > 0,
		    updated_at = NOW()
		WHERE id = $2 AND NOT has_variants AND base_stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to reduce stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// IncreaseBaseStock adds stock back and restores availability
func (s *Store) IncreaseBaseStock(ctx context.Context, productID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET base_stock = base_stock + $1,
		    is_available = TRUE,
		    updated_at = NOW()
		WHERE id = $2 AND NOT has_variants`,
		quantity, productID)
	return err
}

// ReduceVariantStock atomically decrements variant stock with a floor
// check and re-derives product availability from its variants.
func (s *Store) ReduceVariantStock(ctx context.Context, variantID string, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock - $1,
		    is_available = (stock - $1) > 0
		WHERE id = $2 AND stock >= $1`,
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("failed to reduce variant stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientStock
	}

	if err := refreshProductAvailability(ctx, tx, variantID); err != nil {
		return err
	}
	return tx.Commit()
}

// IncreaseVariantStock adds variant stock back and re-derives
// availability flags.
func (s *Store) IncreaseVariantStock(ctx context.Context, variantID string, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock + $1,
		    is_available = TRUE
		WHERE id = $2`,
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("failed to increase variant stock: %w", err)
	}

	if err := refreshProductAvailability(ctx, tx, variantID); err != nil {
		return err
	}
	return tx.Commit()
}

// refreshProductAvailability derives the product flag: available while
// any variant is available.
func refreshProductAvailability(ctx context.Context, tx *sqlx.Tx, variantID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products p
		SET is_available = EXISTS (
		        SELECT 1 FROM product_variants v
		        WHERE v.product_id = p.id AND v.is_available),
		    updated_at = NOW()
		WHERE p.id = (SELECT product_id FROM product_variants WHERE id = $1)`,
		variantID)
	return err
}
