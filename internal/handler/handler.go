// Package handler exposes the ordering API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/payment"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/pkg/httpmiddleware"
)

// WebhookPath is the payment provider callback route. It is exempt from
// rate limiting.
const WebhookPath = "/api/payments/webhook"

// OrderService is the part of order.Service the handlers use.
type OrderService interface {
	Quote(ctx context.Context, req order.QuoteRequest) (*pricing.Breakdown, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
}

// Reconciler applies payment provider callbacks.
type Reconciler interface {
	HandleWebhook(ctx context.Context, token string, p payment.Payload) (payment.Result, error)
}

// Authenticator validates staff API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// WebhookTokenHeader carries the payment provider's shared secret.
	WebhookTokenHeader string
	// APIKeyHeader carries staff API keys.
	APIKeyHeader string
}

// Handler serves the HTTP API.
type Handler struct {
	products     product.Repository
	orders       OrderService
	payments     Reconciler
	keys         Authenticator
	imageBaseURL string
	tokenHeader  string
	apiKeyHeader string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	orders OrderService,
	payments Reconciler,
	keys Authenticator,
) *Handler {
	h := &Handler{
		products:     products,
		orders:       orders,
		payments:     payments,
		keys:         keys,
		imageBaseURL: cfg.ImageBaseURL,
		tokenHeader:  cfg.WebhookTokenHeader,
		apiKeyHeader: cfg.APIKeyHeader,
	}
	if h.tokenHeader == "" {
		h.tokenHeader = "X-Webhook-Token"
	}
	if h.apiKeyHeader == "" {
		h.apiKeyHeader = "X-API-Key"
	}
	return h
}

// Router returns the API routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/cart/quote", h.Quote)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/{id}", h.GetOrder)
		r.With(h.RequireScope(auth.ScopeOrdersWrite)).
			Post("/orders/{id}/status", h.UpdateStatus)

		r.Post("/payments/webhook", h.PaymentWebhook)
	})
	return r
}
