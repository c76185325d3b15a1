package order

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/pricing"
)

// Status is the fulfilment status of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDelivering Status = "delivering"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// ErrIllegalTransition is returned for status changes the lifecycle forbids.
var ErrIllegalTransition = errors.New("illegal status transition")

// IllegalTransitionError describes a rejected status change.
type IllegalTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusPending, StatusPreparing, StatusReady, StatusDelivering,
		StatusDone, StatusCancelled, StatusFailed:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether an order with the given delivery option may
// move from one status to another.
func CanTransition(from, to Status, opt pricing.DeliveryOption) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusPreparing || to == StatusFailed
	case StatusPreparing:
		if opt == pricing.Delivery {
			return to == StatusDelivering
		}
		return to == StatusReady || to == StatusDone
	case StatusReady:
		// Collected or served.
		return to == StatusDone
	case StatusDelivering:
		return to == StatusDone
	}
	return false
}

// Transition returns a copy of o moved to status to at the given time, with
// the change appended to its history. o is not modified.
func Transition(o *Order, to Status, at time.Time) (*Order, error) {
	if !CanTransition(o.Status, to, o.DeliveryOption) {
		return nil, &IllegalTransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	next := o.Clone()
	next.Status = to
	next.UpdatedAt = at
	next.History = append(next.History, StatusChange{From: o.Status, To: to, At: at})
	return next, nil
}
