package handler

import (
	"mime"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/payment"
)

// PaymentWebhook receives payment provider callbacks. Both form-encoded and
// JSON bodies are accepted. Anything but a bad token is acknowledged with
// 200 so the provider stops retrying; the outcome is reported in the body.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	p, err := h.webhookPayload(w, r)
	if err != nil {
		// Still acknowledge: a malformed body will not improve on retry.
		zctx.From(r.Context()).Warn("Malformed payment callback", zap.Error(err))
		p = payment.Payload{}
	}

	res, err := h.payments.HandleWebhook(r.Context(), r.Header.Get(h.tokenHeader), p)
	if err != nil {
		if errors.Is(err, payment.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		strField(e, "outcome", string(res.Outcome))
		optStrField(e, "orderId", res.OrderID)
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) webhookPayload(w http.ResponseWriter, r *http.Request) (payment.Payload, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		body, err := readBody(w, r)
		if err != nil {
			return nil, err
		}
		return decodeWebhookJSON(body)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, errors.Wrap(err, "parse form")
	}
	p := make(payment.Payload, len(r.Form))
	for k, vs := range r.Form {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}
	return p, nil
}
