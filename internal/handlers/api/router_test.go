package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/auth"
	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/handlers/response"
	"github.com/kevin07696/payme-service/internal/services/links"
	"github.com/kevin07696/payme-service/internal/services/routing"
	"github.com/kevin07696/payme-service/internal/services/transactions"
)

// fakeAuth admits any bearer token as the configured principal
type fakeAuth struct {
	principal *domain.Principal
}

func (f *fakeAuth) RequirePrincipal(statuses ...domain.AccountStatus) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				response.Error(w, domain.ErrUnauthenticated)
				return
			}
			if len(statuses) > 0 && !f.principal.HasStatus(statuses...) {
				response.Error(w, domain.ErrStripeAccountRequired)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), f.principal)))
		})
	}
}

type fakeAccounts struct {
	country string
}

func (f *fakeAccounts) CreateConnectedAccount(_ context.Context, p *domain.Principal, country string) (*domain.SellerAccount, error) {
	f.country = country
	return &domain.SellerAccount{UserID: p.UserID, Country: country, StripeAccountID: "acct_1", Status: domain.AccountStatusNew}, nil
}

func (f *fakeAccounts) GetAccount(_ context.Context, p *domain.Principal) (*domain.SellerAccount, error) {
	return p.Account, nil
}

type fakeLinks struct {
	req      links.CreateLinkRequest
	kind     domain.LinkKind
	disabled string
}

func (f *fakeLinks) CreatePaymentLink(_ context.Context, p *domain.Principal, req links.CreateLinkRequest) (*domain.Link, error) {
	f.req = req
	return &domain.Link{LinkID: "l1", UserID: p.UserID, Kind: domain.LinkKindPayment, BaseAmount: req.Amount}, nil
}

func (f *fakeLinks) CreateSubscriptionLink(_ context.Context, p *domain.Principal, req links.CreateLinkRequest) (*domain.Link, error) {
	f.req = req
	if req.Interval == "" {
		return nil, domain.NewValidationError("interval is required")
	}
	return &domain.Link{LinkID: "l2", UserID: p.UserID, Kind: domain.LinkKindSubscription}, nil
}

func (f *fakeLinks) DisableLink(_ context.Context, _ *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	if linkID == "missing" {
		return nil, domain.ErrLinkNotFound
	}
	f.kind, f.disabled = kind, linkID
	return &domain.Link{LinkID: linkID, Kind: kind, Status: domain.LinkStatusDisabled}, nil
}

func (f *fakeLinks) GetLink(_ context.Context, _ *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	if linkID == "missing" {
		return nil, domain.ErrLinkNotFound
	}
	return &domain.Link{LinkID: linkID, Kind: kind}, nil
}

func (f *fakeLinks) LinkPayments(_ context.Context, _ *domain.Principal, _ domain.LinkKind, linkID string) ([]ports.PaymentSummary, error) {
	if linkID == "empty" {
		return nil, nil
	}
	return []ports.PaymentSummary{{ID: "pi_1", Amount: 1040, Currency: "gbp", Status: "succeeded"}}, nil
}

func (f *fakeLinks) ListLinks(_ context.Context, _ *domain.Principal, kind domain.LinkKind) ([]*domain.Link, error) {
	f.kind = kind
	return nil, nil
}

type fakeTransactions struct {
	from, to string
}

func (f *fakeTransactions) List(_ context.Context, _ string, from, to string) ([]*domain.Transaction, error) {
	f.from, f.to = from, to
	return []*domain.Transaction{{ExternalPaymentID: "pi_1"}}, nil
}

func (f *fakeTransactions) Get(_ context.Context, _ string, id string) (*domain.Transaction, error) {
	if id != "pi_1" {
		return nil, domain.ErrTransactionNotFound
	}
	return &domain.Transaction{ExternalPaymentID: id}, nil
}

func (f *fakeTransactions) Refund(_ context.Context, _ *domain.Principal, id string) (*transactions.RefundResult, error) {
	return &transactions.RefundResult{Status: transactions.RefundStatusRefunded, PaymentIntentID: id}, nil
}

type fakeSubscribers struct{}

func (fakeSubscribers) ListSubscribers(context.Context, *domain.Principal, string) ([]*domain.Subscriber, error) {
	return nil, nil
}

func (fakeSubscribers) CancelSubscription(_ context.Context, _ *domain.Principal, id string) (*domain.Subscriber, error) {
	return &domain.Subscriber{SubscriptionID: id, Status: domain.SubscriberStatusCanceled}, nil
}

type fakeSweeper struct {
	result routing.SweepResult
}

func (f *fakeSweeper) SweepPendingToConnected(context.Context, string) (routing.SweepResult, error) {
	return f.result, nil
}

type testAPI struct {
	handler http.Handler
	auth    *fakeAuth
	links   *fakeLinks
	txns    *fakeTransactions
	sweeper *fakeSweeper
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	a := &testAPI{
		auth: &fakeAuth{principal: &domain.Principal{
			UserID: "u1",
			Email:  "seller@example.com",
			Account: &domain.SellerAccount{
				UserID:          "u1",
				StripeAccountID: "acct_1",
				Status:          domain.AccountStatusVerified,
			},
		}},
		links:   &fakeLinks{},
		txns:    &fakeTransactions{},
		sweeper: &fakeSweeper{},
	}
	okHandler := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	a.handler = NewRouter(Handlers{
		Accounts:      NewAccountHandler(&fakeAccounts{}, logger),
		Links:         NewLinkHandler(a.links, logger),
		Transactions:  NewTransactionHandler(a.txns, logger),
		Subscribers:   NewSubscriberHandler(fakeSubscribers{}, logger),
		Transfers:     NewTransferHandler(a.sweeper, logger),
		Webhook:       http.HandlerFunc(okHandler),
		ExpireLinks:   okHandler,
		Health:        okHandler,
		Authenticator: a.auth,
	}, RouterConfig{AllowedOrigins: []string{"https://app.example.com"}}, logger)
	return a
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) domain.ErrorCode {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.ErrorCode
}

func TestRouter_PublicRoutes(t *testing.T) {
	a := newTestAPI(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/webhooks/platform/stripe"},
		{http.MethodPost, "/cron/expire-links"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, tc.path)
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/links/payment", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.ErrorCodeUnauthenticated, errorCode(t, rec))
}

func TestRouter_SellerRoutesNeedAccount(t *testing.T) {
	a := newTestAPI(t)
	a.auth.principal.Account = nil

	rec := a.do(http.MethodGet, "/links/payment", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/users/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "u1", me.UserID)
	assert.Nil(t, me.Account)
}

func TestRouter_CreatePaymentLink(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(http.MethodPost, "/links/payment",
		`{"title":"Lesson","amount":1000,"currency":"gbp","expires_at":"2024-03-01","require_fields":["email"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1000), a.links.req.Amount)
	require.NotNil(t, a.links.req.ExpiresAt)
	assert.Equal(t, "2024-03-01", a.links.req.ExpiresAt.Format("2006-01-02"))
	assert.Equal(t, []string{"email"}, a.links.req.RequireFields)
}

func TestRouter_CreateLinkValidation(t *testing.T) {
	a := newTestAPI(t)
	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad date", "/links/payment", `{"title":"x","amount":1,"expires_at":"03/01/2024"}`},
		{"unknown field", "/links/payment", `{"title":"x","amount":1,"price":5}`},
		{"malformed", "/links/payment", `{"title":`},
		{"missing interval", "/links/subscription", `{"title":"x","amount":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, domain.ErrorCodeValidationFailed, errorCode(t, rec))
		})
	}
}

func TestRouter_Links(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/links/subscription", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"links":[]}`, rec.Body.String())
	assert.Equal(t, domain.LinkKindSubscription, a.links.kind)

	rec = a.do(http.MethodGet, "/links/coupon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/links/payment/l9/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "l9", a.links.disabled)

	rec = a.do(http.MethodPost, "/links/payment/missing/disable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/links/payment/l9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"link_id":"l9"`)

	rec = a.do(http.MethodGet, "/links/payment/l9/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_intent_id":"pi_1"`)

	rec = a.do(http.MethodGet, "/links/payment/empty/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payments":[]}`, rec.Body.String())
}

func TestRouter_Transactions(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/transactions?date_start=2024-03-01&date_end=2024-03-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-01", a.txns.from)
	assert.Equal(t, "2024-03-31", a.txns.to)

	rec = a.do(http.MethodGet, "/transactions/pi_2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, "/transactions/pi_1/refund", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"refunded","payment_intent_id":"pi_1"}`, rec.Body.String())
}

func TestRouter_Subscribers(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/subscriptions/l2/subscribers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subscribers":[]}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/subscriptions/sub_1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"canceled"`)
}

func TestRouter_Transfer(t *testing.T) {
	tests := []struct {
		name    string
		account string
		result  routing.SweepResult
		status  int
		message string
	}{
		{"no connected account", "", routing.SweepResult{}, http.StatusBadRequest, ""},
		{"nothing pending", "acct_1", routing.SweepResult{}, http.StatusOK, "No pending earnings to transfer"},
		{
			"all failed", "acct_1",
			routing.SweepResult{Failed: map[string]string{"gbp": "declined"}},
			http.StatusBadGateway, "Transfer failed",
		},
		{
			"partial", "acct_1",
			routing.SweepResult{Transferred: map[string]int64{"gbp": 1000}, Failed: map[string]string{"usd": "declined"}},
			http.StatusOK, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			a.auth.principal.Account.StripeAccountID = tt.account
			a.sweeper.result = tt.result

			rec := a.do(http.MethodPost, "/transfers/transfer", "")
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusBadRequest {
				return
			}
			var body TransferResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, "acct_1", body.StripeAccountID)
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/links/payment", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
