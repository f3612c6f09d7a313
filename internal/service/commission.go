package service

import (
	"context"
	"math"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
)

// CommissionForItem computes the platform commission for one order
// item from its snapshotted unit price and commission rate. The rate
// is a percentage; the result is rounded to the nearest cent.
func CommissionForItem(unitPriceCents int64, quantity int, ratePercent float64) int64 {
	gross := float64(unitPriceCents) * float64(quantity)
	return int64(math.Round(gross * ratePercent / 100))
}

// StatsStore is the read surface for producer earnings.
type StatsStore interface {
	GetProducerByID(ctx context.Context, id string) (*models.Producer, error)
	GetPaidItemsByProducer(ctx context.Context, producerID string) ([]store.PaidItemRow, error)
}

// CommissionService aggregates earnings over paid orders. Each item
// settles at the rate captured when its order was created, so a
// producer's rate changes never reprice past sales.
type CommissionService struct {
	store StatsStore
}

// NewCommissionService creates a new commission service
func NewCommissionService(store StatsStore) *CommissionService {
	return &CommissionService{store: store}
}

// ProducerStats returns lifetime sales, commission and net earnings
// for a producer across all paid orders.
func (c *CommissionService) ProducerStats(ctx context.Context, producerID string) (*models.ProducerStats, error) {
	if _, err := c.store.GetProducerByID(ctx, producerID); err != nil {
		return nil, err
	}

	rows, err := c.store.GetPaidItemsByProducer(ctx, producerID)
	if err != nil {
		return nil, err
	}

	stats := &models.ProducerStats{ProducerID: producerID}
	orders := make(map[string]struct{})
	for _, row := range rows {
		gross := row.UnitPriceCents * int64(row.Quantity)
		commission := CommissionForItem(row.UnitPriceCents, row.Quantity, row.CommissionRate)
		stats.GrossCents += gross
		stats.CommissionCents += commission
		stats.ItemCount += row.Quantity
		orders[row.OrderID] = struct{}{}
	}
	stats.NetPayoutCents = stats.GrossCents - stats.CommissionCents
	stats.OrderCount = len(orders)
	return stats, nil
}
