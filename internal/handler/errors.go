package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// respondError maps domain errors to HTTP statuses. Unknown errors are
// logged and hidden behind a 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		qtyErr      *pricing.InvalidLineQuantityError
		additionErr *pricing.UnknownAdditionError
		missingErr  *order.ProductNotFoundError
		illegalErr  *order.IllegalTransitionError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, pricing.ErrInvalidDeliveryOption),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, order.ErrAddressRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &qtyErr):
		return http.StatusUnprocessableEntity, qtyErr.Error()
	case errors.As(err, &additionErr):
		return http.StatusUnprocessableEntity, additionErr.Error()
	case errors.As(err, &missingErr):
		return http.StatusUnprocessableEntity, missingErr.Error()
	case errors.Is(err, money.ErrOverflow):
		return http.StatusUnprocessableEntity, "order amount too large"
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusUnprocessableEntity, "coupon expired"
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return http.StatusUnprocessableEntity, "coupon usage limit reached"
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity, "invalid coupon code"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.As(err, &illegalErr):
		return http.StatusConflict, illegalErr.Error()
	case errors.Is(err, order.ErrConflict):
		return http.StatusConflict, "order was modified concurrently, retry"
	}
	return http.StatusInternalServerError, "internal error"
}
