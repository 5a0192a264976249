package store

import (
	"context"
	"sync"
	"time"

	"github.com/ecomm-platform/order-lifecycle/internal/domain"
)

// MemoryStore is an in-process OrderStore with the same contract as the
// Postgres implementation. It backs unit tests and broker-less local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	ids    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*domain.Order)}
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return cloneOrder(order), nil
}

func (s *MemoryStore) Put(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.orders[order.OrderID]; ok {
		order.CreatedAt = existing.CreatedAt
	} else {
		order.CreatedAt = now
		s.ids = append(s.ids, order.OrderID)
	}
	order.UpdatedAt = now

	s.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ids))
	for _, id := range s.ids {
		orders = append(orders, *cloneOrder(s.orders[id]))
	}
	return orders, nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	clone := *order
	clone.Items = make([]domain.OrderItem, len(order.Items))
	copy(clone.Items, order.Items)
	return &clone
}
