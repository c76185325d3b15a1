// Package coupon implements promotional discount codes.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/money"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent takes a percentage of the subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountFixed takes a fixed amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = fmt.Errorf("%w: coupon expired", ErrInvalidCoupon)
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = fmt.Errorf("%w: coupon usage limit reached", ErrInvalidCoupon)
)

// Rule defines a coupon's discount and eligibility constraints.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	Active       bool
	Description  string
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	MaxUses      int
	Uses         int
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	// FindByCode returns the rule for code regardless of its active flag, or
	// ErrInvalidCoupon when no such code exists.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
}

// Normalize returns the canonical form of a customer-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount returns the amount rule takes off subtotal.
//
// The result never exceeds subtotal, so a discounted total never goes negative.
func Discount(rule *Rule, subtotal money.Money) (money.Money, error) {
	if rule == nil || !rule.Active {
		return money.Zero, ErrInvalidCoupon
	}
	if rule.Value.IsNegative() {
		return money.Zero, errors.Wrapf(ErrInvalidCoupon, "negative value on %q", rule.Code)
	}

	var raw money.Money
	switch rule.DiscountType {
	case DiscountPercent:
		v, err := subtotal.Percent(rule.Value)
		if err != nil {
			return money.Zero, errors.Wrap(err, "percent discount")
		}
		raw = v
	case DiscountFixed:
		v, err := money.FromDecimal(rule.Value)
		if err != nil {
			return money.Zero, errors.Wrap(err, "fixed discount")
		}
		raw = v
	default:
		return money.Zero, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	return money.Min(raw, subtotal), nil
}
