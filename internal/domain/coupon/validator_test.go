package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule          *Rule
	err           error
	incrementErr  error
	incrementCode string
	lookedUp      string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lookedUp = code
	return m.rule, m.err
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	m.incrementCode = code
	return m.incrementErr
}

func TestRepoValidator_Resolve(t *testing.T) {
	fixedNow := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name    string
		repo    *mockCouponRepo
		code    string
		wantErr error
	}{
		{
			name: "active code resolves",
			repo: &mockCouponRepo{rule: &Rule{Code: "SAVE10", DiscountType: DiscountPercent, Value: decimal.NewFromInt(10), Active: true}},
			code: "SAVE10",
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			code:    "BOGUS",
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "blank code",
			repo:    &mockCouponRepo{},
			code:    "   ",
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "inactive code",
			repo:    &mockCouponRepo{rule: &Rule{Code: "OFF", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5)}},
			code:    "OFF",
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "expired coupon",
			repo:    &mockCouponRepo{rule: &Rule{Code: "OLD", DiscountType: DiscountPercent, Value: decimal.NewFromInt(10), Active: true, ValidUntil: &pastTime}},
			code:    "OLD",
			wantErr: ErrCouponExpired,
		},
		{
			name:    "not yet valid",
			repo:    &mockCouponRepo{rule: &Rule{Code: "SOON", DiscountType: DiscountPercent, Value: decimal.NewFromInt(10), Active: true, ValidFrom: &futureTime}},
			code:    "SOON",
			wantErr: ErrCouponExpired,
		},
		{
			name: "within window",
			repo: &mockCouponRepo{rule: &Rule{Code: "WINDOW", DiscountType: DiscountPercent, Value: decimal.NewFromInt(10), Active: true, ValidFrom: &pastTime, ValidUntil: &futureTime}},
			code: "WINDOW",
		},
		{
			name:    "usage limit reached",
			repo:    &mockCouponRepo{rule: &Rule{Code: "LIMITED", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), Active: true, MaxUses: 3, Uses: 3}},
			code:    "LIMITED",
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "unlimited uses",
			repo: &mockCouponRepo{rule: &Rule{Code: "ALWAYS", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), Active: true, Uses: 9999}},
			code: "ALWAYS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Resolve(context.Background(), tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.repo.rule, got)
		})
	}
}

func TestRepoValidator_ExpiredIsInvalid(t *testing.T) {
	assert.ErrorIs(t, ErrCouponExpired, ErrInvalidCoupon)
	assert.ErrorIs(t, ErrCouponUsageLimitReached, ErrInvalidCoupon)
}

func TestRepoValidator_ResolveNormalizesCode(t *testing.T) {
	repo := &mockCouponRepo{rule: &Rule{Code: "SAVE10", DiscountType: DiscountPercent, Value: decimal.NewFromInt(10), Active: true}}
	v := NewRepoValidator(repo)

	_, err := v.Resolve(context.Background(), "  save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.lookedUp)
}

func TestRepoValidator_LookupError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("connection reset")})

	_, err := v.Resolve(context.Background(), "ANY")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestRepoValidator_Redeem(t *testing.T) {
	repo := &mockCouponRepo{}
	v := NewRepoValidator(repo)

	require.NoError(t, v.Redeem(context.Background(), "inc"))
	assert.Equal(t, "INC", repo.incrementCode)

	repo.incrementErr = errors.New("db error")
	err := v.Redeem(context.Background(), "inc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment coupon uses")
}
