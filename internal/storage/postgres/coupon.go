package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, active, description,
		valid_from, valid_until, max_uses, uses
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1 WHERE UPPER(code) = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, description, active,
		valid_from, valid_until, max_uses)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			description = EXCLUDED.description, active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no such code exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &rule, nil
}

// IncrementUses atomically increments the usage counter for the given coupon code.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, incrementCouponUsesSQL, code); err != nil {
		return errors.Wrapf(err, "increment uses for coupon %q", code)
	}
	return nil
}

// Upsert inserts or replaces a coupon rule. The usage counter is kept.
func (r *CouponRepository) Upsert(ctx context.Context, rule coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		rule.Code, string(rule.DiscountType), rule.Value, rule.Description, rule.Active,
		rule.ValidFrom, rule.ValidUntil, int32(rule.MaxUses),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", rule.Code)
	}
	return nil
}

// UpsertBatch upserts rules in a single round trip.
func (r *CouponRepository) UpsertBatch(ctx context.Context, rules []coupon.Rule) error {
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertCouponSQL,
			rule.Code, string(rule.DiscountType), rule.Value, rule.Description, rule.Active,
			rule.ValidFrom, rule.ValidUntil, int32(rule.MaxUses),
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d coupons", len(rules))
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
		validFrom    *time.Time
		validUntil   *time.Time
		maxUses      int32
		uses         int32
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &rule.Active, &rule.Description,
		&validFrom, &validUntil, &maxUses, &uses,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	rule.MaxUses = int(maxUses)
	rule.Uses = int(uses)
	return rule, err
}
