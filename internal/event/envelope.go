// Package event delivers order domain events to external subscribers.
//
// Every event travels inside the same JSON envelope regardless of transport:
//
//	{
//	  "event_id": "…", "event_type": "order.paid", "event_version": 1,
//	  "occurred_at": "…", "producer": "bistro-api",
//	  "correlation_id": "…", "payload": {…}
//	}
package event

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/pkg/httpmiddleware"
)

// Version of the envelope and payload layout.
const Version = 1

// Encoder serializes events into envelopes.
type Encoder struct {
	producer string
	newID    func() string
}

// NewEncoder returns an Encoder stamping envelopes with producer.
func NewEncoder(producer string) *Encoder {
	return &Encoder{producer: producer, newID: uuid.NewString}
}

// Encode returns the envelope for e.
func (enc *Encoder) Encode(ctx context.Context, e order.Event) ([]byte, error) {
	payload, err := encodePayload(e)
	if err != nil {
		return nil, err
	}

	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("event_id", func(w *jx.Encoder) { w.Str(enc.newID()) })
		w.Field("event_type", func(w *jx.Encoder) { w.Str(string(e.Type())) })
		w.Field("event_version", func(w *jx.Encoder) { w.Int(Version) })
		w.Field("occurred_at", func(w *jx.Encoder) { encodeTime(w, e.Time()) })
		w.Field("producer", func(w *jx.Encoder) { w.Str(enc.producer) })
		if id := CorrelationID(ctx); id != "" {
			w.Field("correlation_id", func(w *jx.Encoder) { w.Str(id) })
		}
		w.Field("payload", func(w *jx.Encoder) { w.Raw(payload) })
	})
	return w.Bytes(), nil
}

// CorrelationID returns the request id of ctx, falling back to the trace id.
func CorrelationID(ctx context.Context) string {
	if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

func encodePayload(e order.Event) ([]byte, error) {
	var w jx.Encoder
	switch e := e.(type) {
	case order.Created:
		o := e.Order
		w.Obj(func(w *jx.Encoder) {
			w.Field("order_id", func(w *jx.Encoder) { w.Str(o.ID) })
			w.Field("number", func(w *jx.Encoder) { w.Int64(o.Number) })
			w.Field("business_date", func(w *jx.Encoder) { w.Str(o.BusinessDate) })
			w.Field("client_order_id", func(w *jx.Encoder) { w.Str(o.ClientOrderID) })
			strField(w, "customer_id", o.CustomerID)
			strField(w, "phone", o.Phone())
			w.Field("delivery_option", func(w *jx.Encoder) { w.Str(string(o.DeliveryOption)) })
			w.Field("items", func(w *jx.Encoder) { w.Int(len(o.Lines)) })
			w.Field("subtotal", func(w *jx.Encoder) { w.Str(o.Subtotal.String()) })
			w.Field("discount", func(w *jx.Encoder) { w.Str(o.Discount.String()) })
			w.Field("delivery_fee", func(w *jx.Encoder) { w.Str(o.DeliveryFee.String()) })
			w.Field("total", func(w *jx.Encoder) { w.Str(o.Total.String()) })
			strField(w, "coupon_code", o.CouponCode)
			strField(w, "reward", string(o.Reward))
			w.Field("status", func(w *jx.Encoder) { w.Str(string(o.Status)) })
		})
	case order.Paid:
		w.Obj(func(w *jx.Encoder) {
			w.Field("order_id", func(w *jx.Encoder) { w.Str(e.ID) })
			w.Field("number", func(w *jx.Encoder) { w.Int64(e.Number) })
			w.Field("client_order_id", func(w *jx.Encoder) { w.Str(e.ClientOrderID) })
			strField(w, "customer_id", e.CustomerID)
			strField(w, "phone", e.Phone)
			w.Field("delivery_option", func(w *jx.Encoder) { w.Str(string(e.DeliveryOption)) })
			w.Field("lines", func(w *jx.Encoder) { encodeLines(w, e.Lines) })
			w.Field("total", func(w *jx.Encoder) { w.Str(e.Total.String()) })
			w.Field("status", func(w *jx.Encoder) { w.Str(string(e.Status)) })
			strField(w, "payment_method", e.Payment.Method)
			strField(w, "transaction_id", e.Payment.TransactionID)
			strField(w, "card_brand", e.Payment.CardBrand)
			strField(w, "last4", e.Payment.Last4)
			w.Field("paid_at", func(w *jx.Encoder) { encodeTime(w, e.PaidAt) })
		})
	case order.PaymentDeclined:
		w.Obj(func(w *jx.Encoder) {
			w.Field("order_id", func(w *jx.Encoder) { w.Str(e.ID) })
			w.Field("client_order_id", func(w *jx.Encoder) { w.Str(e.ClientOrderID) })
			w.Field("response_code", func(w *jx.Encoder) { w.Str(e.ResponseCode) })
		})
	case order.StatusChanged:
		w.Obj(func(w *jx.Encoder) {
			w.Field("order_id", func(w *jx.Encoder) { w.Str(e.ID) })
			w.Field("number", func(w *jx.Encoder) { w.Int64(e.Number) })
			w.Field("from", func(w *jx.Encoder) { w.Str(string(e.From)) })
			w.Field("to", func(w *jx.Encoder) { w.Str(string(e.To)) })
			w.Field("delivery_option", func(w *jx.Encoder) { w.Str(string(e.DeliveryOption)) })
			strField(w, "phone", e.Phone)
		})
	default:
		return nil, errors.Errorf("unsupported event %T", e)
	}
	return w.Bytes(), nil
}

// encodeLines writes what a kitchen ticket needs to render each line.
func encodeLines(w *jx.Encoder, lines []pricing.Line) {
	w.Arr(func(w *jx.Encoder) {
		for _, l := range lines {
			w.Obj(func(w *jx.Encoder) {
				w.Field("product_id", func(w *jx.Encoder) { w.Str(l.ProductID) })
				w.Field("name", func(w *jx.Encoder) { w.Str(l.Name) })
				if l.Quantity > 0 {
					w.Field("quantity", func(w *jx.Encoder) { w.Int(l.Quantity) })
				}
				if l.WeightGrams > 0 {
					w.Field("weight_grams", func(w *jx.Encoder) { w.Int(l.WeightGrams) })
				}
				if len(l.Vegetables) > 0 {
					w.Field("vegetables", func(w *jx.Encoder) {
						w.Arr(func(w *jx.Encoder) {
							for _, v := range l.Vegetables {
								w.Str(v)
							}
						})
					})
				}
				if len(l.Additions) > 0 {
					w.Field("additions", func(w *jx.Encoder) {
						w.Arr(func(w *jx.Encoder) {
							for _, a := range l.Additions {
								w.Obj(func(w *jx.Encoder) {
									w.Field("label", func(w *jx.Encoder) { w.Str(a.Label) })
									if a.Grams > 0 {
										w.Field("grams", func(w *jx.Encoder) { w.Int(a.Grams) })
									}
								})
							}
						})
					})
				}
				strField(w, "comment", l.Comment)
				w.Field("total", func(w *jx.Encoder) { w.Str(l.Total.String()) })
				strField(w, "reward", string(l.Reward))
			})
		}
	})
}

func strField(w *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	w.Field(name, func(w *jx.Encoder) { w.Str(v) })
}

func encodeTime(w *jx.Encoder, t time.Time) {
	w.Str(t.UTC().Format(time.RFC3339Nano))
}
