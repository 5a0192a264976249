// Package store provides durable keyed storage for order records.
package store

import (
	"context"

	"github.com/ecomm-platform/order-lifecycle/internal/domain"
)

// OrderStore is the persistence contract the coordinator depends on.
// Get returns (nil, nil) when no order exists for the id. Put is a
// total-overwrite upsert; the store stamps CreatedAt on first insert and
// UpdatedAt on every write. List returns orders in store insertion order.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	Put(ctx context.Context, order *domain.Order) error
	List(ctx context.Context) ([]domain.Order, error)
}
