// Package reward implements the loyalty program: a free drink between the
// fifth and tenth order and a free side from the tenth order on.
package reward

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/product"
)

// Loyalty thresholds.
const (
	FreeDrinkFrom = 5
	FreeSideFrom  = 10
)

// ErrNoEligibleLine is returned when an eligibility does not point at a line.
var ErrNoEligibleLine = errors.New("reward does not match any order line")

// Kind identifies a reward.
type Kind string

const (
	KindNone      Kind = ""
	KindFreeDrink Kind = "free_drink"
	KindFreeSide  Kind = "free_side"
)

// LoyaltyState is the per-customer loyalty progress.
type LoyaltyState struct {
	OrderCount      int  `json:"orderCount"`
	UsedDrinkCoupon bool `json:"usedDrinkCoupon"`
}

// Eligibility names the reward a cart qualifies for and the line it applies to.
type Eligibility struct {
	Kind      Kind `json:"kind"`
	LineIndex int  `json:"lineIndex"`
}

// Repository persists loyalty state of registered customers.
type Repository interface {
	GetLoyaltyState(ctx context.Context, customerID string) (LoyaltyState, error)
	SaveLoyaltyState(ctx context.Context, customerID string, state LoyaltyState) error
}

// Evaluate returns the reward the cart qualifies for, or nil.
//
// categories holds the menu category of each cart line in cart order. The
// first line of a qualifying category is chosen. Evaluate is advisory and
// never changes prices.
func Evaluate(state LoyaltyState, categories []string) *Eligibility {
	switch {
	case state.OrderCount >= FreeSideFrom:
		if i := firstLine(categories, product.CategorySide, product.CategoryStarters); i >= 0 {
			return &Eligibility{Kind: KindFreeSide, LineIndex: i}
		}
	case state.OrderCount >= FreeDrinkFrom && !state.UsedDrinkCoupon:
		if i := firstLine(categories, product.CategoryDrinks); i >= 0 {
			return &Eligibility{Kind: KindFreeDrink, LineIndex: i}
		}
	}
	return nil
}

func firstLine(categories []string, want ...string) int {
	for i, c := range categories {
		for _, w := range want {
			if strings.EqualFold(c, w) {
				return i
			}
		}
	}
	return -1
}

// Apply returns a copy of lines where only the eligible line has been made
// free by the free function. The input slice is not modified.
func Apply[L any](lines []L, e Eligibility, free func(L) L) ([]L, error) {
	if e.LineIndex < 0 || e.LineIndex >= len(lines) {
		return nil, errors.Wrap(ErrNoEligibleLine, fmt.Sprintf("line %d of %d", e.LineIndex, len(lines)))
	}
	out := make([]L, len(lines))
	copy(out, lines)
	out[e.LineIndex] = free(out[e.LineIndex])
	return out, nil
}

// Advance returns the loyalty state after an order that redeemed kind.
//
// A free side restarts the cycle; every other order counts toward it.
func Advance(state LoyaltyState, kind Kind) LoyaltyState {
	switch kind {
	case KindFreeSide:
		return LoyaltyState{}
	case KindFreeDrink:
		state.UsedDrinkCoupon = true
	}
	state.OrderCount++
	return state
}
