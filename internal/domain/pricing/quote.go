// Package pricing turns a cart into a priced breakdown: line totals,
// loyalty reward, coupon discount and delivery fee.
//
// Everything here is pure. Product snapshots, the coupon rule and loyalty
// state are resolved by the caller beforehand, so the same Input always
// yields the same Breakdown.
package pricing

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/reward"
)

// DeliveryOption is how the customer receives the order.
type DeliveryOption string

const (
	Pickup   DeliveryOption = "pickup"
	Delivery DeliveryOption = "delivery"
	EatIn    DeliveryOption = "eat_in"
)

// ParseDeliveryOption parses a client-provided delivery option.
func ParseDeliveryOption(s string) (DeliveryOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pickup":
		return Pickup, nil
	case "delivery":
		return Delivery, nil
	case "eat_in", "eatin", "eat-in":
		return EatIn, nil
	default:
		return "", errors.Wrapf(ErrInvalidDeliveryOption, "%q", s)
	}
}

// Valid reports whether o is a known delivery option.
func (o DeliveryOption) Valid() bool {
	return o == Pickup || o == Delivery || o == EatIn
}

// CartLine pairs a line request with the snapshot of its product.
type CartLine struct {
	Product product.Snapshot
	Request LineRequest
}

// Input is everything needed to price a cart.
type Input struct {
	Lines          []CartLine
	DeliveryOption DeliveryOption
	// CouponCode is the code the customer entered, if any. Coupon is the
	// rule it resolved to, or nil when it resolved to nothing.
	CouponCode string
	Coupon     *coupon.Rule
	// Loyalty is nil for guests.
	Loyalty     *reward.LoyaltyState
	ApplyReward bool
}

// Breakdown is a priced cart.
type Breakdown struct {
	Lines          []Line
	DeliveryOption DeliveryOption
	Subtotal       money.Money
	Discount       money.Money
	DeliveryFee    money.Money
	Total          money.Money
	CouponCode     string
	// Reward is the reward the cart qualifies for. RewardApplied reports
	// whether it was redeemed on this breakdown.
	Reward        *reward.Eligibility
	RewardApplied bool
}

// RedeemedReward returns the reward kind redeemed on b, if any.
func (b *Breakdown) RedeemedReward() reward.Kind {
	if b.RewardApplied && b.Reward != nil {
		return b.Reward.Kind
	}
	return reward.KindNone
}

// Config holds pricing constants.
type Config struct {
	DeliveryFee money.Money
}

// Service prices carts.
type Service struct {
	deliveryFee money.Money
}

// NewService creates a pricing Service.
func NewService(cfg Config) *Service {
	return &Service{deliveryFee: cfg.DeliveryFee}
}

// DeliveryFee returns the fee charged for delivery orders.
func (s *Service) DeliveryFee() money.Money { return s.deliveryFee }

// Quote prices the cart described by in.
func (s *Service) Quote(in Input) (*Breakdown, error) {
	if len(in.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if !in.DeliveryOption.Valid() {
		return nil, errors.Wrapf(ErrInvalidDeliveryOption, "%q", in.DeliveryOption)
	}

	lines := make([]Line, len(in.Lines))
	categories := make([]string, len(in.Lines))
	for i, cl := range in.Lines {
		l, err := PriceLine(cl.Product, cl.Request)
		if err != nil {
			return nil, err
		}
		lines[i] = l
		categories[i] = l.Category
	}

	b := &Breakdown{DeliveryOption: in.DeliveryOption}

	// Loyalty reward.
	if in.Loyalty != nil {
		b.Reward = reward.Evaluate(*in.Loyalty, categories)
	}
	if b.Reward != nil && in.ApplyReward {
		free, err := reward.Apply(lines, *b.Reward, freeLine(b.Reward.Kind))
		if err != nil {
			return nil, errors.Wrap(err, "apply reward")
		}
		lines = free
		b.RewardApplied = true
	}
	b.Lines = lines

	totals := make([]money.Money, len(lines))
	for i, l := range lines {
		totals[i] = l.Total
	}
	subtotal, err := money.Sum(totals...)
	if err != nil {
		return nil, errors.Wrap(err, "subtotal")
	}
	b.Subtotal = subtotal

	// Coupon.
	if in.CouponCode != "" || in.Coupon != nil {
		d, err := coupon.Discount(in.Coupon, b.Subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "apply coupon")
		}
		b.Discount = d
		b.CouponCode = in.Coupon.Code
	}

	if in.DeliveryOption == Delivery {
		b.DeliveryFee = s.deliveryFee
	}

	net, err := b.Subtotal.Sub(b.Discount)
	if err != nil {
		return nil, errors.Wrap(err, "total")
	}
	if b.Total, err = net.Add(b.DeliveryFee); err != nil {
		return nil, errors.Wrap(err, "total")
	}
	return b, nil
}

func freeLine(kind reward.Kind) func(Line) Line {
	return func(l Line) Line {
		l.Total = money.Zero
		l.Reward = kind
		return l
	}
}
