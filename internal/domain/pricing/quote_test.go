package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/reward"
)

func newTestService() *Service {
	return NewService(Config{DeliveryFee: money.MustParse("15.00")})
}

func TestQuote_EmptyCart(t *testing.T) {
	_, err := newTestService().Quote(Input{DeliveryOption: Pickup})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestQuote_InvalidDeliveryOption(t *testing.T) {
	_, err := newTestService().Quote(Input{
		Lines:          []CartLine{{Product: flatProduct("cola", "drinks", "9.00"), Request: LineRequest{Quantity: 1}}},
		DeliveryOption: "drone",
	})
	require.ErrorIs(t, err, ErrInvalidDeliveryOption)
}

func TestQuote_WeightedScenario(t *testing.T) {
	b, err := newTestService().Quote(Input{
		Lines: []CartLine{{
			Product: meatProduct(),
			Request: LineRequest{WeightGrams: 250, Additions: []AdditionRequest{{Name: "Pastrami", Grams: 50}}},
		}},
		DeliveryOption: Pickup,
	})
	require.NoError(t, err)

	assert.Equal(t, "71.50", b.Subtotal.String())
	assert.Equal(t, "0.00", b.Discount.String())
	assert.Equal(t, "0.00", b.DeliveryFee.String())
	assert.Equal(t, "71.50", b.Total.String())
}

func TestQuote_DeliveryFee(t *testing.T) {
	cart := []CartLine{{Product: flatProduct("burger", "mains", "48.00"), Request: LineRequest{Quantity: 1}}}

	tests := []struct {
		option DeliveryOption
		fee    string
		total  string
	}{
		{option: Pickup, fee: "0.00", total: "48.00"},
		{option: EatIn, fee: "0.00", total: "48.00"},
		{option: Delivery, fee: "15.00", total: "63.00"},
	}

	for _, tt := range tests {
		t.Run(string(tt.option), func(t *testing.T) {
			b, err := newTestService().Quote(Input{Lines: cart, DeliveryOption: tt.option})
			require.NoError(t, err)
			assert.Equal(t, tt.fee, b.DeliveryFee.String())
			assert.Equal(t, tt.total, b.Total.String())
		})
	}
}

func TestQuote_Coupon(t *testing.T) {
	cart := []CartLine{
		{Product: flatProduct("burger", "mains", "48.00"), Request: LineRequest{Quantity: 1}},
		{Product: flatProduct("fries", "side", "12.00"), Request: LineRequest{Quantity: 1}},
	}

	t.Run("percent", func(t *testing.T) {
		b, err := newTestService().Quote(Input{
			Lines:          cart,
			DeliveryOption: Delivery,
			CouponCode:     "TEN",
			Coupon:         &coupon.Rule{Code: "TEN", DiscountType: coupon.DiscountPercent, Value: decimal.NewFromInt(10), Active: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "60.00", b.Subtotal.String())
		assert.Equal(t, "6.00", b.Discount.String())
		assert.Equal(t, "69.00", b.Total.String())
		assert.Equal(t, "TEN", b.CouponCode)
	})

	t.Run("fixed larger than subtotal", func(t *testing.T) {
		b, err := newTestService().Quote(Input{
			Lines:          cart,
			DeliveryOption: Delivery,
			CouponCode:     "HUGE",
			Coupon:         &coupon.Rule{Code: "HUGE", DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(500), Active: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "60.00", b.Discount.String())
		assert.Equal(t, "15.00", b.Total.String(), "delivery fee is not discounted")
	})

	t.Run("code that resolved to nothing", func(t *testing.T) {
		_, err := newTestService().Quote(Input{Lines: cart, DeliveryOption: Pickup, CouponCode: "BOGUS"})
		require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	})

	t.Run("inactive rule", func(t *testing.T) {
		_, err := newTestService().Quote(Input{
			Lines:          cart,
			DeliveryOption: Pickup,
			CouponCode:     "OFF",
			Coupon:         &coupon.Rule{Code: "OFF", DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(5)},
		})
		require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	})
}

func TestQuote_Reward(t *testing.T) {
	cart := []CartLine{
		{Product: flatProduct("burger", "mains", "48.00"), Request: LineRequest{Quantity: 1}},
		{Product: flatProduct("cola", "drinks", "9.00"), Request: LineRequest{Quantity: 2}},
		{Product: flatProduct("lemonade", "drinks", "11.00"), Request: LineRequest{Quantity: 1}},
	}

	t.Run("evaluated but not applied", func(t *testing.T) {
		b, err := newTestService().Quote(Input{
			Lines:          cart,
			DeliveryOption: Pickup,
			Loyalty:        &reward.LoyaltyState{OrderCount: 6},
		})
		require.NoError(t, err)
		require.NotNil(t, b.Reward)
		assert.Equal(t, reward.KindFreeDrink, b.Reward.Kind)
		assert.False(t, b.RewardApplied)
		assert.Equal(t, reward.KindNone, b.RedeemedReward())
		assert.Equal(t, "77.00", b.Total.String())
	})

	t.Run("applied to first drink line only", func(t *testing.T) {
		b, err := newTestService().Quote(Input{
			Lines:          cart,
			DeliveryOption: Pickup,
			Loyalty:        &reward.LoyaltyState{OrderCount: 6},
			ApplyReward:    true,
		})
		require.NoError(t, err)
		assert.True(t, b.RewardApplied)
		assert.Equal(t, reward.KindFreeDrink, b.RedeemedReward())

		free := 0
		for _, l := range b.Lines {
			if l.Total.IsZero() {
				free++
			}
		}
		assert.Equal(t, 1, free)
		assert.Equal(t, reward.KindFreeDrink, b.Lines[1].Reward)
		assert.Equal(t, "18.00", b.Lines[1].ListTotal.String())
		assert.Equal(t, "11.00", b.Lines[2].Total.String())
		assert.Equal(t, "59.00", b.Subtotal.String())
	})

	t.Run("stacks with coupon", func(t *testing.T) {
		b, err := newTestService().Quote(Input{
			Lines:          cart,
			DeliveryOption: Pickup,
			Loyalty:        &reward.LoyaltyState{OrderCount: 6},
			ApplyReward:    true,
			CouponCode:     "TEN",
			Coupon:         &coupon.Rule{Code: "TEN", DiscountType: coupon.DiscountPercent, Value: decimal.NewFromInt(10), Active: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "59.00", b.Subtotal.String())
		assert.Equal(t, "5.90", b.Discount.String())
		assert.Equal(t, "53.10", b.Total.String())
	})

	t.Run("guest gets no reward", func(t *testing.T) {
		b, err := newTestService().Quote(Input{Lines: cart, DeliveryOption: Pickup, ApplyReward: true})
		require.NoError(t, err)
		assert.Nil(t, b.Reward)
		assert.False(t, b.RewardApplied)
	})
}

func TestQuote_Deterministic(t *testing.T) {
	in := Input{
		Lines: []CartLine{
			{Product: meatProduct(), Request: LineRequest{WeightGrams: 333, Additions: []AdditionRequest{{Name: "Pastrami", Grams: 77}, {Name: "Chimichurri"}}}},
			{Product: flatProduct("cola", "drinks", "9.00"), Request: LineRequest{Quantity: 3}},
		},
		DeliveryOption: Delivery,
		Loyalty:        &reward.LoyaltyState{OrderCount: 5},
		ApplyReward:    true,
		CouponCode:     "SEVEN",
		Coupon:         &coupon.Rule{Code: "SEVEN", DiscountType: coupon.DiscountPercent, Value: decimal.RequireFromString("7.5"), Active: true},
	}

	svc := newTestService()
	first, err := svc.Quote(in)
	require.NoError(t, err)
	for range 5 {
		again, err := svc.Quote(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestQuote_TotalNeverNegative(t *testing.T) {
	svc := newTestService()
	values := []string{"0", "1", "9.99", "50", "100", "1000"}
	types := []coupon.DiscountType{coupon.DiscountFixed, coupon.DiscountPercent}
	options := []DeliveryOption{Pickup, Delivery, EatIn}

	for _, v := range values {
		for _, typ := range types {
			for _, opt := range options {
				b, err := svc.Quote(Input{
					Lines:          []CartLine{{Product: flatProduct("fries", "side", "12.00"), Request: LineRequest{Quantity: 1}}},
					DeliveryOption: opt,
					CouponCode:     "X",
					Coupon:         &coupon.Rule{Code: "X", DiscountType: typ, Value: decimal.RequireFromString(v), Active: true},
				})
				require.NoError(t, err)
				assert.False(t, b.Total.IsNegative())
				assert.False(t, b.Subtotal.LessThan(b.Discount))
				net, err := b.Subtotal.Sub(b.Discount)
				require.NoError(t, err)
				total, err := net.Add(b.DeliveryFee)
				require.NoError(t, err)
				assert.Equal(t, total, b.Total)
			}
		}
	}
}

func TestQuote_HugeQuantityRejected(t *testing.T) {
	svc := newTestService()
	_, err := svc.Quote(Input{
		Lines: []CartLine{
			{Product: flatProduct("cola", "drinks", "1.00"), Request: LineRequest{Quantity: 90_000_000_000_000_000}},
			{Product: flatProduct("cola", "drinks", "1.00"), Request: LineRequest{Quantity: 90_000_000_000_000_000}},
		},
		DeliveryOption: Pickup,
	})
	require.ErrorIs(t, err, ErrInvalidLineQuantity)
}

func TestQuote_SubtotalOverflow(t *testing.T) {
	svc := newTestService()
	pricey := flatProduct("caviar", "starters", "50000000000000000.00")
	_, err := svc.Quote(Input{
		Lines: []CartLine{
			{Product: pricey, Request: LineRequest{Quantity: 1}},
			{Product: pricey, Request: LineRequest{Quantity: 1}},
		},
		DeliveryOption: Pickup,
	})
	require.ErrorIs(t, err, money.ErrOverflow)
}

func TestParseDeliveryOption(t *testing.T) {
	for in, want := range map[string]DeliveryOption{
		"pickup": Pickup, "Delivery": Delivery, "eat_in": EatIn, "eatIn": EatIn, " eat-in ": EatIn,
	} {
		got, err := ParseDeliveryOption(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseDeliveryOption("teleport")
	require.ErrorIs(t, err, ErrInvalidDeliveryOption)
}
