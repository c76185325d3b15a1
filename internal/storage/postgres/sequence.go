package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/order"
)

const nextSequenceSQL = `INSERT INTO order_counters (scope, value) VALUES ($1, 1)
	ON CONFLICT (scope) DO UPDATE SET value = order_counters.value + 1
	RETURNING value`

var _ order.Sequence = (*Sequence)(nil)

// Sequence is a persisted per-key counter. Each call is a single atomic
// upsert, so numbers are unique across concurrent callers and restarts.
type Sequence struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewSequence returns a Sequence whose keys are namespaced by prefix.
func NewSequence(pool *pgxpool.Pool, prefix string) *Sequence {
	return &Sequence{pool: pool, prefix: prefix}
}

// Next increments and returns the counter for key.
func (s *Sequence) Next(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, nextSequenceSQL, s.prefix+key).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "next value of %q", key)
	}
	return n, nil
}
