package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		state      LoyaltyState
		categories []string
		want       *Eligibility
	}{
		{
			name:       "new customer gets nothing",
			state:      LoyaltyState{OrderCount: 0},
			categories: []string{"drinks", "side"},
		},
		{
			name:       "fifth order gets free drink on first drink line",
			state:      LoyaltyState{OrderCount: 5},
			categories: []string{"mains", "drinks", "drinks"},
			want:       &Eligibility{Kind: KindFreeDrink, LineIndex: 1},
		},
		{
			name:       "ninth order still gets free drink",
			state:      LoyaltyState{OrderCount: 9},
			categories: []string{"Drinks"},
			want:       &Eligibility{Kind: KindFreeDrink, LineIndex: 0},
		},
		{
			name:       "drink coupon already used",
			state:      LoyaltyState{OrderCount: 7, UsedDrinkCoupon: true},
			categories: []string{"drinks"},
		},
		{
			name:       "no drink line",
			state:      LoyaltyState{OrderCount: 6},
			categories: []string{"mains", "side"},
		},
		{
			name:       "tenth order gets free side",
			state:      LoyaltyState{OrderCount: 10, UsedDrinkCoupon: true},
			categories: []string{"drinks", "mains", "side"},
			want:       &Eligibility{Kind: KindFreeSide, LineIndex: 2},
		},
		{
			name:       "starters count as side",
			state:      LoyaltyState{OrderCount: 12},
			categories: []string{"starters", "side"},
			want:       &Eligibility{Kind: KindFreeSide, LineIndex: 0},
		},
		{
			name:       "tenth order without side gets no drink either",
			state:      LoyaltyState{OrderCount: 10},
			categories: []string{"drinks"},
		},
		{
			name:  "empty cart",
			state: LoyaltyState{OrderCount: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.state, tt.categories)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_ZeroesExactlyOneLine(t *testing.T) {
	lines := []int{100, 200, 300}

	got, err := Apply(lines, Eligibility{Kind: KindFreeDrink, LineIndex: 1}, func(int) int { return 0 })
	require.NoError(t, err)
	assert.Equal(t, []int{100, 0, 300}, got)
	assert.Equal(t, []int{100, 200, 300}, lines, "input must not change")
}

func TestApply_OutOfRange(t *testing.T) {
	_, err := Apply([]int{1}, Eligibility{Kind: KindFreeSide, LineIndex: 3}, func(int) int { return 0 })
	require.ErrorIs(t, err, ErrNoEligibleLine)

	_, err = Apply([]int{1}, Eligibility{Kind: KindFreeSide, LineIndex: -1}, func(int) int { return 0 })
	require.ErrorIs(t, err, ErrNoEligibleLine)
}

func TestAdvance(t *testing.T) {
	assert.Equal(t, LoyaltyState{OrderCount: 1}, Advance(LoyaltyState{}, KindNone))
	assert.Equal(t,
		LoyaltyState{OrderCount: 6, UsedDrinkCoupon: true},
		Advance(LoyaltyState{OrderCount: 5}, KindFreeDrink))
	assert.Equal(t,
		LoyaltyState{},
		Advance(LoyaltyState{OrderCount: 11, UsedDrinkCoupon: true}, KindFreeSide))
}
