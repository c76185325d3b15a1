//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/payment"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/reward"
	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/internal/storage/postgres"
)

const (
	staffKey      = "kitchen-key"
	pepper        = "integration-pepper"
	webhookSecret = "whsec"
)

var (
	baseURL string
	events  = &recorder{}
)

type recorder struct {
	mu     sync.Mutex
	events []order.Event
}

func (r *recorder) Publish(_ context.Context, e order.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types(orderID string) []order.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []order.EventType
	for _, e := range r.events {
		if e.OrderID() == orderID {
			out = append(out, e.Type())
		}
	}
	return out
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("bistro"),
		tcpostgres.WithUsername("bistro"),
		tcpostgres.WithPassword("bistro"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	products := postgres.NewProductRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	loyalty := postgres.NewLoyaltyRepository(pool)
	keys := postgres.NewAPIKeyRepository(pool)

	if err := seed(ctx, products, coupons, loyalty, keys); err != nil {
		log.Fatalf("seed: %v", err)
	}

	svc := order.NewService(order.ServiceDeps{
		Products: products,
		Coupons:  coupon.NewRepoValidator(coupons),
		Loyalty:  loyalty,
		Orders:   orders,
		Sequence: postgres.NewSequence(pool, "it"),
		Pricing:  pricing.NewService(pricing.Config{DeliveryFee: money.MustParse("15.00")}),
		Events:   events,
	})
	cfg := payment.DefaultConfig()
	cfg.Secret = webhookSecret
	rec, err := payment.NewReconciler(cfg, orders, events)
	if err != nil {
		log.Fatalf("reconciler: %v", err)
	}

	h := handler.NewHandler(handler.HandlerConfig{}, products, svc, rec,
		auth.NewAuthenticator(keys, []byte(pepper)))
	srv := httptest.NewServer(h.Router())
	defer srv.Close()
	baseURL = srv.URL

	return m.Run()
}

func seed(
	ctx context.Context,
	products *postgres.ProductRepository,
	coupons *postgres.CouponRepository,
	loyalty *postgres.LoyaltyRepository,
	keys *postgres.APIKeyRepository,
) error {
	menu := []product.Snapshot{
		{
			ID: "entrecote", Name: "Entrecote", Category: "grill",
			UnitPrice: money.MustParse("48.00"), Mode: product.PricingWeighted,
		},
		{
			ID: "cola", Name: "Cola", Category: product.CategoryDrinks,
			UnitPrice: money.MustParse("12.00"), Mode: product.PricingFlat,
		},
	}
	for i, p := range menu {
		if err := products.Upsert(ctx, p, i); err != nil {
			return err
		}
	}
	if err := coupons.Upsert(ctx, coupon.Rule{
		Code:         "WELCOME10",
		DiscountType: coupon.DiscountPercent,
		Value:        decimal.NewFromInt(10),
		Active:       true,
	}); err != nil {
		return err
	}
	if err := loyalty.SaveLoyaltyState(ctx, "regular", reward.LoyaltyState{OrderCount: 5}); err != nil {
		return err
	}
	return keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "kitchen",
		KeyHash: auth.Hash([]byte(pepper), staffKey),
		Name:    "Kitchen",
		Scopes:  []string{auth.ScopeOrdersWrite},
	})
}

// HTTP helpers.

func post(t *testing.T, path string, body any, header http.Header) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, baseURL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func webhook(t *testing.T, form url.Values) string {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		baseURL+handler.WebhookPath, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Webhook-Token", webhookSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Outcome
}

type orderView struct {
	ID            string `json:"id"`
	Number        int64  `json:"number"`
	ClientOrderID string `json:"clientOrderId"`
	Subtotal      string `json:"subtotal"`
	Discount      string `json:"discount"`
	DeliveryFee   string `json:"deliveryFee"`
	Total         string `json:"total"`
	Reward        string `json:"reward"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Payment       struct {
		TransactionID string `json:"transactionId"`
		Last4         string `json:"last4"`
	} `json:"payment"`
}

func decodeOrder(t *testing.T, resp *http.Response) orderView {
	t.Helper()
	defer resp.Body.Close()
	var o orderView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	return o
}

func getOrder(t *testing.T, id string) orderView {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/orders/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeOrder(t, resp)
}

func placeOrder(t *testing.T, clientOrderID string) orderView {
	t.Helper()
	resp := placeOrderResp(t, clientOrderID)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeOrder(t, resp)
}

func placeOrderResp(t *testing.T, clientOrderID string) *http.Response {
	t.Helper()
	return post(t, "/api/orders", map[string]any{
		"clientOrderId":  clientOrderID,
		"customerId":     "regular",
		"deliveryOption": "delivery",
		"address":        "1 Dizengoff St",
		"couponCode":     "welcome10",
		"applyReward":    true,
		"items": []map[string]any{
			{"productId": "entrecote", "weightGrams": 250},
			{"productId": "cola", "quantity": 1},
		},
	}, nil)
}

// Tests.

func TestOrderLifecycle(t *testing.T) {
	o := placeOrder(t, "it-lifecycle")

	assert.Equal(t, "120.00", o.Subtotal)
	assert.Equal(t, "12.00", o.Discount)
	assert.Equal(t, "15.00", o.DeliveryFee)
	assert.Equal(t, "123.00", o.Total)
	assert.Equal(t, "free_drink", o.Reward)
	assert.Equal(t, "pending", o.Status)
	assert.Equal(t, "unpaid", o.PaymentStatus)
	assert.Positive(t, o.Number)

	// Retried placement returns the same order.
	resp := placeOrderResp(t, "it-lifecycle")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, o.ID, decodeOrder(t, resp).ID)

	success := url.Values{
		"Response":      {"000"},
		"clientOrderId": {"it-lifecycle"},
		"index":         {"tx-42"},
		"ccno":          {"4242"},
		"cvv":           {"123"},
	}
	assert.Equal(t, string(payment.OutcomeApplied), webhook(t, success))
	assert.Equal(t, string(payment.OutcomeDuplicate), webhook(t, success))

	paid := getOrder(t, o.ID)
	assert.Equal(t, "paid", paid.PaymentStatus)
	assert.Equal(t, "preparing", paid.Status)
	assert.Equal(t, "tx-42", paid.Payment.TransactionID)
	assert.Equal(t, "4242", paid.Payment.Last4)

	staff := http.Header{"X-Api-Key": {staffKey}}

	resp = post(t, "/api/orders/"+o.ID+"/status", map[string]string{"status": "ready"}, staff)
	require.Equal(t, http.StatusConflict, resp.StatusCode, "delivery orders skip ready")
	resp.Body.Close()

	resp = post(t, "/api/orders/"+o.ID+"/status", map[string]string{"status": "delivering"}, staff)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "delivering", decodeOrder(t, resp).Status)

	resp = post(t, "/api/orders/"+o.ID+"/status", map[string]string{"status": "done"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, []order.EventType{
		order.EventCreated,
		order.EventPaid,
		order.EventStatusChanged,
		order.EventStatusChanged,
	}, events.types(o.ID))
}

func TestPaymentDeclined(t *testing.T) {
	o := placeOrder(t, "it-declined")

	assert.Equal(t, string(payment.OutcomeDeclined), webhook(t, url.Values{
		"Response":      {"033"},
		"clientOrderId": {"it-declined"},
	}))

	failed := getOrder(t, o.ID)
	assert.Equal(t, "failed", failed.PaymentStatus)
	assert.Equal(t, "failed", failed.Status)

	// A late success cannot resurrect a declined order.
	assert.Equal(t, string(payment.OutcomeConflict), webhook(t, url.Values{
		"Response":      {"000"},
		"clientOrderId": {"it-declined"},
	}))
	assert.Equal(t, "failed", getOrder(t, o.ID).Status)
}

func TestPaymentWebhook_UnknownOrder(t *testing.T) {
	assert.Equal(t, string(payment.OutcomeNotFound), webhook(t, url.Values{
		"Response":      {"000"},
		"clientOrderId": {"no-such-order"},
	}))
}

func TestQuote_DoesNotPersist(t *testing.T) {
	resp := post(t, "/api/cart/quote", map[string]any{
		"deliveryOption": "pickup",
		"items":          []map[string]any{{"productId": "cola", "quantity": 3}},
	}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var q struct {
		Total string `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&q))
	assert.Equal(t, "36.00", q.Total)
}
