package memory

import (
	"context"
	"sync"

	"github.com/xenking/bistro/internal/domain/order"
)

var _ order.Sequence = (*Sequence)(nil)

// Sequence is a per-key counter that lives as long as the process.
type Sequence struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewSequence returns an empty Sequence.
func NewSequence() *Sequence {
	return &Sequence{values: make(map[string]int64)}
}

// Next increments and returns the counter for key.
func (s *Sequence) Next(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key]++
	return s.values[key], nil
}
