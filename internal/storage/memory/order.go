// Package memory provides in-process stores for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/bistro/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository keeps orders in a map guarded by a mutex.
type OrderRepository struct {
	mu       sync.Mutex
	byID     map[string]*order.Order
	byClient map[string]string
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:     make(map[string]*order.Order),
		byClient: make(map[string]string),
	}
}

// Create stores a copy of o.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byClient[o.ClientOrderID]; ok {
		return order.ErrDuplicateClientOrderID
	}
	r.byID[o.ID] = o.Clone()
	r.byClient[o.ClientOrderID] = o.ID
	return nil
}

// GetByID returns a copy of the order with the given id.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

// GetByClientOrderID returns a copy of the order with the given client order id.
func (r *OrderRepository) GetByClientOrderID(_ context.Context, clientOrderID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byClient[clientOrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

// AtomicUpdate applies patch under the store lock if the order matches expect.
func (r *OrderRepository) AtomicUpdate(_ context.Context, id string, expect order.Expectation, patch order.Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	if !expect.Matches(o) {
		return false, nil
	}
	patch.Apply(o)
	return true, nil
}
