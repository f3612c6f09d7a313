package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reduce_stock.lua
var reduceStockScript string

//go:embed scripts/restore_stock.lua
var restoreStockScript string

type Client struct {
	rdb           *redis.Client
	reduceScript  *redis.Script
	restoreScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reduceScript:  redis.NewScript(reduceStockScript),
		restoreScript: redis.NewScript(restoreStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID string, variantID *string) string {
	if variantID != nil && *variantID != "" {
		return fmt.Sprintf("stock:%s:%s", productID, *variantID)
	}
	return fmt.Sprintf("stock:%s", productID)
}

// ReduceStock atomically decrements a stock counter with a floor check.
// known=false means the counter is not loaded and the caller must
// consult the database instead.
func (c *Client) ReduceStock(ctx context.Context, productID string, variantID *string, quantity int) (ok, known bool, err error) {
	result, err := c.reduceScript.Run(ctx, c.rdb, []string{stockKey(productID, variantID)}, quantity).Result()
	if err != nil {
		return false, false, fmt.Errorf("reduce stock script failed: %w", err)
	}

	code, isInt := result.(int64)
	if !isInt {
		return false, false, fmt.Errorf("unexpected script result type")
	}

	switch code {
	case 1:
		return true, true, nil
	case 0:
		return false, true, nil
	default:
		return false, false, nil
	}
}

// RestoreStock atomically increments a loaded stock counter
func (c *Client) RestoreStock(ctx context.Context, productID string, variantID *string, quantity int) error {
	_, err := c.restoreScript.Run(ctx, c.rdb, []string{stockKey(productID, variantID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("restore stock script failed: %w", err)
	}
	return nil
}

// InitStock loads a counter from the database snapshot
func (c *Client) InitStock(ctx context.Context, productID string, variantID *string, stock int) error {
	return c.rdb.Set(ctx, stockKey(productID, variantID), stock, 0).Err()
}

// GetStock reads a loaded counter
func (c *Client) GetStock(ctx context.Context, productID string, variantID *string) (int, error) {
	return c.rdb.Get(ctx, stockKey(productID, variantID)).Int()
}

// MarkEventSeen records a provider event id with a TTL. Returns false
// when the event was already seen within the window.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("webhook:event:%s", eventID), "1", ttl).Result()
}

// AcquireLock acquires a best-effort distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
