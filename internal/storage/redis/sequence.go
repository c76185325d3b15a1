// Package redis implements the order number counter on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/bistro/internal/domain/order"
)

// DefaultTTL keeps a business day's counter around long enough to cover the
// day plus late timezone shifts.
const DefaultTTL = 48 * time.Hour

var _ order.Sequence = (*Sequence)(nil)

// Sequence is a per-key counter backed by INCR. Keys expire after ttl, so
// counters of past business dates clean themselves up.
type Sequence struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSequence returns a Sequence storing keys as prefix+key.
func NewSequence(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Sequence {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sequence{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Next increments and returns the counter for key.
func (s *Sequence) Next(ctx context.Context, key string) (int64, error) {
	k := s.prefix + key

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "incr %q", k)
	}
	return incr.Val(), nil
}

// NewClient connects to addr and verifies the connection with PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return rdb, nil
}
