package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/payme-service/pkg/errors"
)

type recordedRequest struct {
	form           url.Values
	account        string
	idempotencyKey string
}

// fakeStripe serves canned responses per path and records every request
type fakeStripe struct {
	responses map[string]fakeResponse
	requests  map[string][]recordedRequest
	mu        sync.Mutex
}

type fakeResponse struct {
	body   any
	status int
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], recordedRequest{
		form:           r.Form,
		account:        r.Header.Get("Stripe-Account"),
		idempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	resp, ok := f.responses[r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "no such route"}})
		return
	}
	if resp.status != 0 {
		w.WriteHeader(resp.status)
	}
	_ = json.NewEncoder(w).Encode(resp.body)
}

func (f *fakeStripe) last(path string) recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[path]
	if len(reqs) == 0 {
		return recordedRequest{}
	}
	return reqs[len(reqs)-1]
}

func newTestClient(t *testing.T, responses map[string]fakeResponse) (*Client, *fakeStripe) {
	t.Helper()

	fake := &fakeStripe{responses: responses, requests: make(map[string][]recordedRequest)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})
	backends := &stripego.Backends{API: backend, Connect: backend, Uploads: backend}
	return newClientWithBackends("sk_test_123", backends, zap.NewNop()), fake
}

var linkResponses = map[string]fakeResponse{
	"/v1/products":      {body: map[string]any{"id": "prod_1", "object": "product"}},
	"/v1/prices":        {body: map[string]any{"id": "price_1", "object": "price"}},
	"/v1/payment_links": {body: map[string]any{"id": "plink_1", "object": "payment_link", "url": "https://buy.stripe.com/test_1"}},
}

func TestCreateCheckoutLink_ConnectedOneTime(t *testing.T) {
	c, fake := newTestClient(t, linkResponses)

	link, err := c.CreateCheckoutLink(context.Background(), ports.CheckoutLinkParams{
		Kind:                 domain.LinkKindPayment,
		Title:                "Consultation",
		Currency:             "USD",
		TotalAmount:          1061,
		ApplicationFeeAmount: 60,
		ConnectedAccountID:   "acct_123",
		RequireFields:        []string{domain.RequireEmail, domain.RequireAddress, domain.RequirePhone, domain.RequireName},
		Metadata:             map[string]string{"user_id": "u1", "link_id": "l1", "base_amount": "1000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plink_1", link.ID)
	assert.Equal(t, "https://buy.stripe.com/test_1", link.URL)

	price := fake.last("/v1/prices")
	assert.Equal(t, "acct_123", price.account)
	assert.Equal(t, "usd", price.form.Get("currency"))
	assert.Equal(t, "1061", price.form.Get("unit_amount"))
	assert.Equal(t, "prod_1", price.form.Get("product"))
	assert.Empty(t, price.form.Get("recurring[interval]"))

	pl := fake.last("/v1/payment_links")
	assert.Equal(t, "acct_123", pl.account)
	assert.Equal(t, "60", pl.form.Get("application_fee_amount"))
	assert.Equal(t, "u1", pl.form.Get("payment_intent_data[metadata][user_id]"))
	assert.Equal(t, "1000", pl.form.Get("payment_intent_data[metadata][base_amount]"))
	assert.Equal(t, "always", pl.form.Get("customer_creation"))
	assert.Equal(t, "required", pl.form.Get("billing_address_collection"))
	assert.Equal(t, "true", pl.form.Get("phone_number_collection[enabled]"))
	assert.Equal(t, "true", pl.form.Get("name_collection[individual][enabled]"))
}

func TestCreateCheckoutLink_PlatformSubscription(t *testing.T) {
	c, fake := newTestClient(t, linkResponses)

	_, err := c.CreateCheckoutLink(context.Background(), ports.CheckoutLinkParams{
		Kind:                  domain.LinkKindSubscription,
		Title:                 "Monthly",
		Currency:              "gbp",
		Interval:              domain.IntervalMonth,
		TotalAmount:           1050,
		ApplicationFeePercent: 4.76,
		RequireFields:         []string{domain.RequireEmail},
		Metadata:              map[string]string{"user_id": "u1", "link_id": "l1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "month", fake.last("/v1/prices").form.Get("recurring[interval]"))

	pl := fake.last("/v1/payment_links")
	assert.Empty(t, pl.account)
	assert.Equal(t, "u1", pl.form.Get("subscription_data[metadata][user_id]"))
	// Platform links never carry an application fee; email collection is one-time only
	assert.Empty(t, pl.form.Get("application_fee_percent"))
	assert.Empty(t, pl.form.Get("customer_creation"))
}

func TestCreateCheckoutLink_ProcessorFailure(t *testing.T) {
	c, _ := newTestClient(t, map[string]fakeResponse{
		"/v1/products": {status: http.StatusBadRequest, body: map[string]any{"error": map[string]any{
			"type": "invalid_request_error", "message": "Currency not supported", "param": "currency",
		}}},
	})

	_, err := c.CreateCheckoutLink(context.Background(), ports.CheckoutLinkParams{Kind: domain.LinkKindPayment, Title: "x"})
	require.Error(t, err)
	assert.True(t, domain.IsProcessorError(err))
	assert.Equal(t, "Currency not supported", domain.GetErrorMessage(err))
}

func TestRefund(t *testing.T) {
	c, fake := newTestClient(t, map[string]fakeResponse{
		"/v1/refunds": {body: map[string]any{"id": "re_1", "object": "refund", "status": "succeeded"}},
	})

	status, err := c.Refund(context.Background(), "pi_1", "acct_9")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", status)
	assert.Equal(t, "pi_1", fake.last("/v1/refunds").form.Get("payment_intent"))
	assert.Equal(t, "acct_9", fake.last("/v1/refunds").account)
}

func TestTransfer(t *testing.T) {
	c, fake := newTestClient(t, map[string]fakeResponse{
		"/v1/transfers": {body: map[string]any{"id": "tr_1", "object": "transfer"}},
	})

	id, err := c.Transfer(context.Background(), 1500, "EUR", "acct_1", "sweep_u1_eur_1")
	require.NoError(t, err)
	assert.Equal(t, "tr_1", id)

	req := fake.last("/v1/transfers")
	assert.Equal(t, "eur", req.form.Get("currency"))
	assert.Equal(t, "1500", req.form.Get("amount"))
	assert.Equal(t, "acct_1", req.form.Get("destination"))
	assert.Equal(t, "sweep_u1_eur_1", req.idempotencyKey)
	// Transfers are made by the platform, never on behalf of the destination
	assert.Empty(t, req.account)
}

func TestCreateConnectedAccount(t *testing.T) {
	c, fake := newTestClient(t, map[string]fakeResponse{
		"/v1/accounts": {body: map[string]any{"id": "acct_new", "object": "account"}},
	})

	id, err := c.CreateConnectedAccount(context.Background(), "seller@example.com", "gb")
	require.NoError(t, err)
	assert.Equal(t, "acct_new", id)

	req := fake.last("/v1/accounts")
	assert.Equal(t, "express", req.form.Get("type"))
	assert.Equal(t, "GB", req.form.Get("country"))
	assert.Equal(t, "true", req.form.Get("capabilities[card_payments][requested]"))
	assert.Equal(t, "true", req.form.Get("capabilities[transfers][requested]"))
}

func TestCheckoutSessionCustomer(t *testing.T) {
	c, fake := newTestClient(t, map[string]fakeResponse{
		"/v1/checkout/sessions": {body: map[string]any{
			"object": "list",
			"data": []any{map[string]any{
				"id":     "cs_1",
				"object": "checkout.session",
				"customer_details": map[string]any{
					"email": "",
					"name":  "Ada Lovelace",
					"address": map[string]any{
						"line1": "1 Main St", "city": "London", "postal_code": "N1", "country": "GB",
					},
				},
				"customer_email": "ada@example.com",
			}},
		}},
	})

	details, found, err := c.CheckoutSessionCustomer(context.Background(), "pi_1", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada@example.com", details.Email)
	assert.Equal(t, "Ada Lovelace", details.Name)
	assert.Equal(t, "1 Main St, London, N1, GB", details.Address)
	assert.Equal(t, "pi_1", fake.last("/v1/checkout/sessions").form.Get("payment_intent"))
}

func TestCheckoutSessionCustomer_None(t *testing.T) {
	c, _ := newTestClient(t, map[string]fakeResponse{
		"/v1/checkout/sessions": {body: map[string]any{"object": "list", "data": []any{}}},
	})

	_, found, err := c.CheckoutSessionCustomer(context.Background(), "pi_1", "acct_1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPaymentIntentCustomer(t *testing.T) {
	c, _ := newTestClient(t, map[string]fakeResponse{
		"/v1/payment_intents/pi_1": {body: map[string]any{
			"id":     "pi_1",
			"object": "payment_intent",
			"latest_charge": map[string]any{
				"id":              "ch_1",
				"object":          "charge",
				"receipt_email":   "receipt@example.com",
				"billing_details": map[string]any{"name": "Grace", "phone": "+1555"},
			},
		}},
	})

	details, err := c.PaymentIntentCustomer(context.Background(), "pi_1", "")
	require.NoError(t, err)
	assert.Equal(t, "receipt@example.com", details.Email)
	assert.Equal(t, "Grace", details.Name)
	assert.Equal(t, "+1555", details.Phone)
}

func TestPaymentSearchQuery(t *testing.T) {
	assert.Equal(t, `metadata['user_id']:'u1' AND metadata['link_id']:'l\'1'`, paymentSearchQuery("u1", "l'1"))
}

func TestToProcessorError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  pkgerrors.ErrorCategory
		retriable bool
	}{
		{"card", &stripego.Error{Type: stripego.ErrorTypeCard, Code: stripego.ErrorCodeCardDeclined, HTTPStatusCode: 402}, pkgerrors.CategoryDeclined, false},
		{"invalid_request", &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: 400}, pkgerrors.CategoryInvalidRequest, false},
		{"rate_limited", &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: 429}, pkgerrors.CategoryRateLimited, true},
		{"auth", &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: 401}, pkgerrors.CategoryAuthentication, false},
		{"idempotency", &stripego.Error{Type: stripego.ErrorTypeIdempotency, HTTPStatusCode: 400}, pkgerrors.CategoryIdempotency, false},
		{"api", &stripego.Error{Type: stripego.ErrorTypeAPI, HTTPStatusCode: 500}, pkgerrors.CategorySystemError, true},
		{"network", errors.New("dial tcp: timeout"), pkgerrors.CategoryNetworkError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := toProcessorError(tt.err)
			assert.Equal(t, tt.category, pe.Category)
			assert.Equal(t, tt.retriable, pe.IsRetriable)
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}

func TestWebhookVerifier(t *testing.T) {
	assert.False(t, NewWebhookVerifier("").Configured())
	_, err := NewWebhookVerifier("").Verify([]byte("{}"), "sig")
	assert.ErrorIs(t, err, ErrWebhookSecretMissing)

	_, err = NewWebhookVerifier("whsec_test").Verify([]byte(`{"id":"evt_1"}`), "t=1,v1=bad")
	assert.Error(t, err)
}
