package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// Quote prices a cart without placing an order.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	req, err := decodeQuoteRequest(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	b, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeBreakdown(&e, b)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// PlaceOrder places an order. A retry with an already used clientOrderId
// returns the stored order with 200 instead of 201.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	req, err := decodePlaceOrderRequest(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); req.ClientOrderID == "" && key != "" {
		req.ClientOrderID = key
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	var e jx.Encoder
	encodeOrder(&e, res.Order)
	w.Header().Set("Location", "/api/orders/"+res.Order.ID)
	writeJSON(w, status, e.Bytes())
}

// GetOrder returns an order by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// UpdateStatus moves an order to the requested status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	to, err := decodeStatusRequest(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), to)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}
