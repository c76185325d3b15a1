package order

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/reward"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateClientOrderID is returned by Repository.Create when another
	// order already carries the same client order id.
	ErrDuplicateClientOrderID = errors.New("duplicate client order id")
)

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

// Guest identifies a customer ordering without an account.
type Guest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// PaymentDetails is what the payment provider told us about a payment.
type PaymentDetails struct {
	Method        string            `json:"method,omitempty"`
	TransactionID string            `json:"transactionId,omitempty"`
	CardBrand     string            `json:"cardBrand,omitempty"`
	Last4         string            `json:"last4,omitempty"`
	Raw           map[string]string `json:"raw,omitempty"`
}

// Merge returns d updated with the non-empty fields of upd. A method
// already chosen at checkout is never replaced.
func (d PaymentDetails) Merge(upd PaymentDetails) PaymentDetails {
	out := d
	if out.Method == "" {
		out.Method = upd.Method
	}
	if upd.TransactionID != "" {
		out.TransactionID = upd.TransactionID
	}
	if upd.CardBrand != "" {
		out.CardBrand = upd.CardBrand
	}
	if upd.Last4 != "" {
		out.Last4 = upd.Last4
	}
	if upd.Raw != nil {
		out.Raw = maps.Clone(upd.Raw)
	}
	return out
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Order is a placed customer order.
type Order struct {
	ID            string
	Number        int64
	BusinessDate  string
	ClientOrderID string
	CustomerID    string
	Guest         *Guest

	Lines          []pricing.Line
	DeliveryOption pricing.DeliveryOption
	Address        string
	Subtotal       money.Money
	Discount       money.Money
	DeliveryFee    money.Money
	Total          money.Money
	CouponCode     string
	Reward         reward.Kind

	Status        Status
	PaymentStatus PaymentStatus
	Payment       PaymentDetails
	History       []StatusChange

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	if o.Guest != nil {
		g := *o.Guest
		c.Guest = &g
	}
	c.Lines = slices.Clone(o.Lines)
	c.History = slices.Clone(o.History)
	c.Payment.Raw = maps.Clone(o.Payment.Raw)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Expectation is the state an atomic update requires the stored order to be
// in. An empty PaymentStatus matches any payment status.
type Expectation struct {
	Status        Status
	PaymentStatus PaymentStatus
}

// Matches reports whether o satisfies the expectation.
func (e Expectation) Matches(o *Order) bool {
	if o.Status != e.Status {
		return false
	}
	return e.PaymentStatus == "" || o.PaymentStatus == e.PaymentStatus
}

// Patch is a set of changes applied atomically to a stored order.
type Patch struct {
	Status        Status
	PaymentStatus PaymentStatus
	Payment       *PaymentDetails
	PaidAt        *time.Time
	Change        *StatusChange
	UpdatedAt     time.Time
}

// Apply applies p to o in place.
func (p Patch) Apply(o *Order) {
	if p.Status != "" {
		o.Status = p.Status
	}
	if p.PaymentStatus != "" {
		o.PaymentStatus = p.PaymentStatus
	}
	if p.Payment != nil {
		o.Payment = *p.Payment
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		o.PaidAt = &t
	}
	if p.Change != nil {
		o.History = append(o.History, *p.Change)
	}
	if !p.UpdatedAt.IsZero() {
		o.UpdatedAt = p.UpdatedAt
	}
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error)
	// AtomicUpdate applies patch only if the stored order still matches
	// expect. It reports whether the update happened.
	AtomicUpdate(ctx context.Context, id string, expect Expectation, patch Patch) (bool, error)
}

// Sequence hands out monotonically increasing numbers per key.
type Sequence interface {
	Next(ctx context.Context, key string) (int64, error)
}
