package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/pricing"
)

// EventType names a domain event.
type EventType string

const (
	EventCreated         EventType = "order.created"
	EventPaid            EventType = "order.paid"
	EventPaymentDeclined EventType = "order.payment_declined"
	EventStatusChanged   EventType = "order.status_changed"
)

// Event is a fact about an order that subscribers (notifications, kitchen
// printers) react to.
type Event interface {
	Type() EventType
	OrderID() string
	Time() time.Time
}

// Created is emitted once an order has been persisted.
type Created struct {
	Order *Order
}

func (e Created) Type() EventType { return EventCreated }
func (e Created) OrderID() string { return e.Order.ID }
func (e Created) Time() time.Time { return e.Order.CreatedAt }

// Paid is emitted exactly once when a payment success is reconciled.
type Paid struct {
	ID             string
	ClientOrderID  string
	Number         int64
	CustomerID     string
	Phone          string
	Lines          []pricing.Line
	Total          money.Money
	Status         Status
	DeliveryOption pricing.DeliveryOption
	Payment        PaymentDetails
	PaidAt         time.Time
}

func (e Paid) Type() EventType { return EventPaid }
func (e Paid) OrderID() string { return e.ID }
func (e Paid) Time() time.Time { return e.PaidAt }

// PaymentDeclined is emitted when the provider declines a payment.
type PaymentDeclined struct {
	ID            string
	ClientOrderID string
	ResponseCode  string
	At            time.Time
}

func (e PaymentDeclined) Type() EventType { return EventPaymentDeclined }
func (e PaymentDeclined) OrderID() string { return e.ID }
func (e PaymentDeclined) Time() time.Time { return e.At }

// StatusChanged is emitted after every successful status transition.
type StatusChanged struct {
	ID             string
	Number         int64
	From           Status
	To             Status
	DeliveryOption pricing.DeliveryOption
	Phone          string
	At             time.Time
}

func (e StatusChanged) Type() EventType { return EventStatusChanged }
func (e StatusChanged) OrderID() string { return e.ID }
func (e StatusChanged) Time() time.Time { return e.At }

// NewStatusChanged builds the event for the last history entry of o.
func NewStatusChanged(o *Order) StatusChanged {
	e := StatusChanged{
		ID:             o.ID,
		Number:         o.Number,
		To:             o.Status,
		DeliveryOption: o.DeliveryOption,
		Phone:          o.Phone(),
		At:             o.UpdatedAt,
	}
	if n := len(o.History); n > 0 {
		e.From = o.History[n-1].From
		e.At = o.History[n-1].At
	}
	return e
}

// Phone returns the guest phone number, if any.
func (o *Order) Phone() string {
	if o.Guest != nil {
		return o.Guest.Phone
	}
	return ""
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublishAll publishes events in order. Failures are logged and never
// returned: the state change they describe has already been committed.
func PublishAll(ctx context.Context, pub Publisher, events ...Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		if err := pub.Publish(ctx, e); err != nil {
			zctx.From(ctx).Warn("Publish event failed",
				zap.String("event", string(e.Type())),
				zap.String("order_id", e.OrderID()),
				zap.Error(err),
			)
		}
	}
}
