package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Resolver resolves customer-entered codes into rules that can be priced.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Rule, error)
	Redeem(ctx context.Context, code string) error
}

var _ Resolver = (*RepoValidator)(nil)

// RepoValidator implements Resolver on top of a Repository, checking the
// active flag, validity window and usage limit.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Resolve looks up the rule for code and checks it can be used right now.
func (v *RepoValidator) Resolve(ctx context.Context, code string) (*Rule, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !rule.Active {
		return nil, ErrInvalidCoupon
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	return rule, nil
}

// Redeem records one use of code.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, Normalize(code)); err != nil {
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}
