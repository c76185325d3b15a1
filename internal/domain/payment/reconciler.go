// Package payment reconciles asynchronous payment provider callbacks with
// orders.
//
// Providers retry callbacks and may deliver them concurrently, so every
// state change goes through a single conditional update: exactly one
// delivery wins and the rest are acknowledged as duplicates.
package payment

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/order"
)

const instrumentationName = "github.com/xenking/bistro/internal/domain/payment"

// ErrUnauthorized is returned when a callback carries a wrong token.
var ErrUnauthorized = errors.New("unauthorized webhook")

// Outcome classifies how a callback was handled.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDeclined     Outcome = "declined"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUnmatched    Outcome = "unmatched"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeConflict     Outcome = "conflict"
	OutcomeError        Outcome = "error"
	OutcomeUnauthorized Outcome = "unauthorized"
)

// Result is the acknowledged result of a callback.
type Result struct {
	Outcome Outcome
	OrderID string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMeterProvider sets the meter provider for callback metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Reconciler) { r.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for callback spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Reconciler) { r.tracer = tp.Tracer(instrumentationName) }
}

// Reconciler applies payment callbacks to orders.
type Reconciler struct {
	cfg        Config
	secretHash [sha256.Size]byte
	orders     order.Repository
	events     order.Publisher
	now        func() time.Time

	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	outcomes      metric.Int64Counter
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg Config, orders order.Repository, events order.Publisher, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		cfg:           cfg.withDefaults(),
		secretHash:    sha256.Sum256([]byte(cfg.Secret)),
		orders:        orders,
		events:        events,
		now:           time.Now,
		meterProvider: otel.GetMeterProvider(),
		tracer:        otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(r)
	}

	outcomes, err := r.meterProvider.Meter(instrumentationName).Int64Counter("bistro.payment.webhooks",
		metric.WithDescription("Payment callbacks by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create webhook counter")
	}
	r.outcomes = outcomes
	return r, nil
}

// AuthDisabled reports whether callbacks are accepted without a token.
func (r *Reconciler) AuthDisabled() bool { return r.cfg.Secret == "" }

// Authenticate checks token against the shared secret in constant time.
func (r *Reconciler) Authenticate(token string) error {
	if r.AuthDisabled() {
		return nil
	}
	got := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(got[:], r.secretHash[:]) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// HandleWebhook authenticates and applies one provider callback.
//
// The only error returned is ErrUnauthorized. Every other outcome,
// including malformed or unmatched callbacks, is logged and acknowledged
// so the provider stops retrying.
func (r *Reconciler) HandleWebhook(ctx context.Context, token string, p Payload) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "payment.HandleWebhook")
	defer span.End()

	res, err := r.handle(ctx, token, p)
	span.SetAttributes(
		attribute.String("payment.outcome", string(res.Outcome)),
		attribute.String("order.id", res.OrderID),
	)
	r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
	return res, err
}

func (r *Reconciler) handle(ctx context.Context, token string, p Payload) (Result, error) {
	lg := zctx.From(ctx)

	if err := r.Authenticate(token); err != nil {
		lg.Warn("Rejected payment callback with invalid token")
		return Result{Outcome: OutcomeUnauthorized}, err
	}

	code := p.First(r.cfg.ResponseCodeField)
	clientOrderID := p.First(r.cfg.CorrelationFields...)
	lg = lg.With(zap.String("client_order_id", clientOrderID), zap.String("response_code", code))

	if clientOrderID == "" {
		lg.Warn("Payment callback without client order id", zap.Strings("fields", keys(p)))
		return Result{Outcome: OutcomeUnmatched}, nil
	}

	o, err := r.orders.GetByClientOrderID(ctx, clientOrderID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		lg.Warn("Payment callback for unknown order")
		return Result{Outcome: OutcomeNotFound}, nil
	case err != nil:
		lg.Error("Lookup order for payment callback", zap.Error(err))
		return Result{Outcome: OutcomeError}, nil
	}

	ctx = zctx.With(ctx, zap.String("order_id", o.ID))
	if code == r.cfg.SuccessCode {
		return r.applySuccess(ctx, o, p), nil
	}
	return r.applyDecline(ctx, o, code, p), nil
}

// awaitingPayment is the only state a callback may move an order out of.
var awaitingPayment = order.Expectation{
	Status:        order.StatusPending,
	PaymentStatus: order.PaymentUnpaid,
}

func (r *Reconciler) applySuccess(ctx context.Context, o *order.Order, p Payload) Result {
	lg := zctx.From(ctx)
	res := Result{OrderID: o.ID}

	if o.PaymentStatus == order.PaymentPaid {
		lg.Info("Duplicate payment success callback")
		res.Outcome = OutcomeDuplicate
		return res
	}
	if !awaitingPayment.Matches(o) {
		// Money was captured for an order that can no longer be fulfilled.
		lg.Error("Payment success for order not awaiting payment",
			zap.String("status", string(o.Status)),
			zap.String("payment_status", string(o.PaymentStatus)),
		)
		res.Outcome = OutcomeConflict
		return res
	}

	now := r.now()
	next, err := order.Transition(o, order.StatusPreparing, now)
	if err != nil {
		lg.Error("Transition paid order", zap.Error(err))
		res.Outcome = OutcomeConflict
		return res
	}
	details := o.Payment.Merge(r.details(p))
	change := next.History[len(next.History)-1]

	ok, err := r.orders.AtomicUpdate(ctx, o.ID, awaitingPayment, order.Patch{
		Status:        order.StatusPreparing,
		PaymentStatus: order.PaymentPaid,
		Payment:       &details,
		PaidAt:        &now,
		Change:        &change,
		UpdatedAt:     now,
	})
	if err != nil {
		lg.Error("Update paid order", zap.Error(err))
		res.Outcome = OutcomeError
		return res
	}
	if !ok {
		lg.Info("Payment success already applied by a concurrent callback")
		res.Outcome = OutcomeDuplicate
		return res
	}

	next.PaymentStatus = order.PaymentPaid
	next.Payment = details
	next.PaidAt = &now

	lg.Info("Payment applied",
		zap.Int64("number", o.Number),
		zap.String("total", o.Total.String()),
		zap.String("transaction_id", details.TransactionID),
	)
	order.PublishAll(ctx, r.events,
		order.Paid{
			ID:             o.ID,
			ClientOrderID:  o.ClientOrderID,
			Number:         o.Number,
			CustomerID:     o.CustomerID,
			Phone:          o.Phone(),
			Lines:          o.Lines,
			Total:          o.Total,
			Status:         next.Status,
			DeliveryOption: o.DeliveryOption,
			Payment:        details,
			PaidAt:         now,
		},
		order.NewStatusChanged(next),
	)
	res.Outcome = OutcomeApplied
	return res
}

func (r *Reconciler) applyDecline(ctx context.Context, o *order.Order, code string, p Payload) Result {
	lg := zctx.From(ctx)
	res := Result{OrderID: o.ID}

	switch {
	case o.PaymentStatus == order.PaymentFailed:
		lg.Info("Duplicate payment failure callback")
		res.Outcome = OutcomeDuplicate
		return res
	case !awaitingPayment.Matches(o):
		lg.Warn("Payment failure for order not awaiting payment",
			zap.String("status", string(o.Status)),
			zap.String("payment_status", string(o.PaymentStatus)),
		)
		res.Outcome = OutcomeConflict
		return res
	}

	now := r.now()
	next, err := order.Transition(o, order.StatusFailed, now)
	if err != nil {
		lg.Error("Transition declined order", zap.Error(err))
		res.Outcome = OutcomeConflict
		return res
	}
	details := o.Payment.Merge(r.details(p))
	change := next.History[len(next.History)-1]

	ok, err := r.orders.AtomicUpdate(ctx, o.ID, awaitingPayment, order.Patch{
		Status:        order.StatusFailed,
		PaymentStatus: order.PaymentFailed,
		Payment:       &details,
		Change:        &change,
		UpdatedAt:     now,
	})
	if err != nil {
		lg.Error("Update declined order", zap.Error(err))
		res.Outcome = OutcomeError
		return res
	}
	if !ok {
		lg.Info("Payment outcome already applied by a concurrent callback")
		res.Outcome = OutcomeDuplicate
		return res
	}

	lg.Info("Payment declined")
	order.PublishAll(ctx, r.events,
		order.PaymentDeclined{ID: o.ID, ClientOrderID: o.ClientOrderID, ResponseCode: code, At: now},
		order.NewStatusChanged(next),
	)
	res.Outcome = OutcomeDeclined
	return res
}

// details extracts payment details from a callback payload.
func (r *Reconciler) details(p Payload) order.PaymentDetails {
	last4 := p.First(r.cfg.Last4Fields...)
	if n := len(last4); n > 4 {
		last4 = last4[n-4:]
	}
	return order.PaymentDetails{
		Method:        p.First(r.cfg.MethodFields...),
		TransactionID: p.First(r.cfg.TransactionIDFields...),
		CardBrand:     p.First(r.cfg.CardBrandFields...),
		Last4:         last4,
		Raw:           p.without(r.cfg.RedactFields),
	}
}

func keys(p Payload) []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	return out
}
