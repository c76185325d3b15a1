// Package order implements order placement and the order lifecycle.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/reward"
)

// Sentinel errors for order validation.
var (
	ErrCustomerRequired = errors.New("customer id or guest name and phone required")
	ErrAddressRequired  = errors.New("delivery address required")
	ErrConflict         = errors.New("order was modified concurrently")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// QuoteRequest holds the input for pricing a cart.
type QuoteRequest struct {
	CustomerID     string
	Lines          []pricing.LineRequest
	DeliveryOption string
	CouponCode     string
	ApplyReward    bool
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	QuoteRequest
	ClientOrderID string
	Guest         *Guest
	Address       string
	PaymentMethod string
}

// PlaceOrderResult holds the output of a placed order.
type PlaceOrderResult struct {
	Order *Order
	// Existing is set when the client order id was already used and the
	// previously placed order is returned instead.
	Existing bool
}

// ServiceDeps are the collaborators of Service.
type ServiceDeps struct {
	Products product.Repository
	Coupons  coupon.Resolver
	Loyalty  reward.Repository
	Orders   Repository
	Sequence Sequence
	Pricing  *pricing.Service
	Events   Publisher
	// Location is the restaurant's time zone, used for the business date.
	Location *time.Location
}

// Service encapsulates order placement and lifecycle logic.
type Service struct {
	products product.Repository
	coupons  coupon.Resolver
	loyalty  reward.Repository
	orders   Repository
	seq      Sequence
	pricer   *pricing.Service
	events   Publisher
	loc      *time.Location
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(deps ServiceDeps) *Service {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		products: deps.Products,
		coupons:  deps.Coupons,
		loyalty:  deps.Loyalty,
		orders:   deps.Orders,
		seq:      deps.Sequence,
		pricer:   deps.Pricing,
		events:   deps.Events,
		loc:      loc,
		now:      time.Now,
	}
}

// Quote prices a cart without persisting anything.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*pricing.Breakdown, error) {
	in, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.pricer.Quote(*in)
}

// resolve gathers everything pricing needs: product snapshots, the coupon
// rule and the customer's loyalty state.
func (s *Service) resolve(ctx context.Context, req QuoteRequest) (*pricing.Input, error) {
	if len(req.Lines) == 0 {
		return nil, pricing.ErrEmptyCart
	}
	opt, err := pricing.ParseDeliveryOption(req.DeliveryOption)
	if err != nil {
		return nil, err
	}

	// Batch fetch all products in a single query.
	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Snapshot, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	in := &pricing.Input{
		Lines:          make([]pricing.CartLine, len(req.Lines)),
		DeliveryOption: opt,
		CouponCode:     coupon.Normalize(req.CouponCode),
		ApplyReward:    req.ApplyReward,
	}
	for i, l := range req.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		in.Lines[i] = pricing.CartLine{Product: p, Request: l}
	}

	if in.CouponCode != "" {
		rule, err := s.coupons.Resolve(ctx, in.CouponCode)
		if err != nil {
			return nil, errors.Wrap(err, "resolve coupon")
		}
		in.Coupon = rule
	}

	if req.CustomerID != "" && s.loyalty != nil {
		state, err := s.loyalty.GetLoyaltyState(ctx, req.CustomerID)
		if err != nil {
			return nil, errors.Wrap(err, "get loyalty state")
		}
		in.Loyalty = &state
	}

	return in, nil
}

// PlaceOrder prices the cart, assigns a daily order number and persists
// the order as pending and unpaid. Placing twice with the same client
// order id returns the first order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, pricing.ErrEmptyCart
	}
	guest, err := normalizeCustomer(req)
	if err != nil {
		return nil, err
	}

	if req.ClientOrderID != "" {
		existing, err := s.orders.GetByClientOrderID(ctx, req.ClientOrderID)
		switch {
		case err == nil:
			return &PlaceOrderResult{Order: existing, Existing: true}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "lookup client order id")
		}
	}

	in, err := s.resolve(ctx, req.QuoteRequest)
	if err != nil {
		return nil, err
	}
	if in.DeliveryOption == pricing.Delivery && strings.TrimSpace(req.Address) == "" {
		return nil, ErrAddressRequired
	}
	b, err := s.pricer.Quote(*in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	day := now.In(s.loc).Format(time.DateOnly)
	number, err := s.seq.Next(ctx, day)
	if err != nil {
		return nil, errors.Wrap(err, "next order number")
	}

	o := &Order{
		ID:             uuid.NewString(),
		Number:         number,
		BusinessDate:   day,
		ClientOrderID:  req.ClientOrderID,
		CustomerID:     req.CustomerID,
		Guest:          guest,
		Lines:          b.Lines,
		DeliveryOption: b.DeliveryOption,
		Address:        strings.TrimSpace(req.Address),
		Subtotal:       b.Subtotal,
		Discount:       b.Discount,
		DeliveryFee:    b.DeliveryFee,
		Total:          b.Total,
		CouponCode:     b.CouponCode,
		Reward:         b.RedeemedReward(),
		Status:         StatusPending,
		PaymentStatus:  PaymentUnpaid,
		Payment:        PaymentDetails{Method: req.PaymentMethod},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = o.ID
	}

	// Persist order.
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateClientOrderID) {
			existing, getErr := s.orders.GetByClientOrderID(ctx, o.ClientOrderID)
			if getErr != nil {
				return nil, errors.Wrap(getErr, "get concurrently placed order")
			}
			return &PlaceOrderResult{Order: existing, Existing: true}, nil
		}
		return nil, errors.Wrap(err, "create order")
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	if o.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, o.CouponCode); err != nil {
			lg.Warn("Redeem coupon failed", zap.String("coupon", o.CouponCode), zap.Error(err))
		}
	}
	if in.Loyalty != nil {
		next := reward.Advance(*in.Loyalty, o.Reward)
		if err := s.loyalty.SaveLoyaltyState(ctx, o.CustomerID, next); err != nil {
			lg.Warn("Save loyalty state failed", zap.Error(err))
		}
	}
	lg.Info("Order placed",
		zap.Int64("number", o.Number),
		zap.String("total", o.Total.String()),
		zap.String("delivery", string(o.DeliveryOption)),
	)

	PublishAll(ctx, s.events, Created{Order: o.Clone()})
	return &PlaceOrderResult{Order: o}, nil
}

func normalizeCustomer(req PlaceOrderRequest) (*Guest, error) {
	if req.CustomerID != "" {
		return nil, nil
	}
	if req.Guest == nil {
		return nil, ErrCustomerRequired
	}
	g := &Guest{Name: strings.TrimSpace(req.Guest.Name), Phone: strings.TrimSpace(req.Guest.Phone)}
	if g.Name == "" || g.Phone == "" {
		return nil, ErrCustomerRequired
	}
	return g, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// UpdateStatus moves an order through its lifecycle on behalf of staff.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	cur, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	next, err := Transition(cur, to, s.now())
	if err != nil {
		return nil, err
	}
	change := next.History[len(next.History)-1]

	ok, err := s.orders.AtomicUpdate(ctx, id,
		Expectation{Status: cur.Status},
		Patch{Status: to, Change: &change, UpdatedAt: next.UpdatedAt},
	)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	if !ok {
		return nil, ErrConflict
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(to)),
	)
	PublishAll(ctx, s.events, NewStatusChanged(next))
	return next, nil
}
