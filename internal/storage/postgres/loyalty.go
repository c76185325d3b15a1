package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/reward"
)

const (
	getLoyaltySQL = `SELECT order_count, used_drink_coupon FROM loyalty WHERE customer_id = $1`

	saveLoyaltySQL = `INSERT INTO loyalty (customer_id, order_count, used_drink_coupon, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (customer_id) DO UPDATE SET
			order_count = EXCLUDED.order_count,
			used_drink_coupon = EXCLUDED.used_drink_coupon,
			updated_at = EXCLUDED.updated_at`
)

var _ reward.Repository = (*LoyaltyRepository)(nil)

// LoyaltyRepository stores loyalty progress per registered customer.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

// NewLoyaltyRepository returns a LoyaltyRepository that uses the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// GetLoyaltyState returns the customer's progress. Unknown customers start
// from the zero state.
func (r *LoyaltyRepository) GetLoyaltyState(ctx context.Context, customerID string) (reward.LoyaltyState, error) {
	var (
		s     reward.LoyaltyState
		count int32
	)
	err := r.pool.QueryRow(ctx, getLoyaltySQL, customerID).Scan(&count, &s.UsedDrinkCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reward.LoyaltyState{}, nil
		}
		return s, errors.Wrapf(err, "get loyalty state of %q", customerID)
	}
	s.OrderCount = int(count)
	return s, nil
}

// SaveLoyaltyState replaces the customer's progress.
func (r *LoyaltyRepository) SaveLoyaltyState(ctx context.Context, customerID string, s reward.LoyaltyState) error {
	if _, err := r.pool.Exec(ctx, saveLoyaltySQL, customerID, int32(s.OrderCount), s.UsedDrinkCoupon); err != nil {
		return errors.Wrapf(err, "save loyalty state of %q", customerID)
	}
	return nil
}
