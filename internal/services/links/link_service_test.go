package links

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/adapters/memory"
	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/fees"
	"github.com/kevin07696/payme-service/internal/services/routing"
	"github.com/kevin07696/payme-service/internal/testutil/fixtures"
	"github.com/kevin07696/payme-service/internal/testutil/mocks"
	"github.com/kevin07696/payme-service/pkg/observability"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store, *mocks.MockProcessor) {
	t.Helper()
	store := memory.NewStore()
	proc := new(mocks.MockProcessor)
	engine, err := fees.NewEngine(fees.Config{StripeFeePercent: 1.5})
	require.NoError(t, err)

	svc := NewService(store.Links(), routing.NewRouter(proc), engine, observability.NopRecorder{}, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, store, proc
}

func validRequest() CreateLinkRequest {
	return CreateLinkRequest{
		Title:         "  Guitar lessons ",
		Description:   "One hour",
		Currency:      "GBP",
		RequireFields: []string{"Email", "name", "email"},
		Amount:        2500,
	}
}

func TestCreatePaymentLink_Platform(t *testing.T) {
	svc, store, proc := newTestService(t)
	p := fixtures.NewAccount().Principal()

	proc.On("CreateCheckoutLink", mock.Anything, mock.MatchedBy(func(params ports.CheckoutLinkParams) bool {
		return params.ConnectedAccountID == "" &&
			params.Kind == domain.LinkKindPayment &&
			params.Currency == "gbp" &&
			params.Metadata["base_amount"] == "2500" &&
			params.Metadata["account_type"] == "platform"
	})).Return(&ports.CheckoutLink{ID: "plink_1", URL: "https://buy.stripe.com/1"}, nil)

	link, err := svc.CreatePaymentLink(context.Background(), p, validRequest())
	require.NoError(t, err)

	assert.Equal(t, "Guitar lessons", link.Title)
	assert.Equal(t, []string{"email", "name"}, link.RequireFields)
	assert.Equal(t, int64(2500), link.BaseAmount)
	assert.Equal(t, link.BaseAmount+link.ServiceFee, link.TotalAmount)
	assert.True(t, link.OnPlatform)

	stored, err := store.Links().Get(context.Background(), nil, domain.LinkKindPayment, link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, "plink_1", stored.ProcessorLinkID)
	assert.Equal(t, "https://buy.stripe.com/1", stored.URL)
	assert.Equal(t, domain.LinkStatusActive, stored.Status)
	proc.AssertExpectations(t)
}

func TestCreateSubscriptionLink_Connected(t *testing.T) {
	svc, store, proc := newTestService(t)
	p := fixtures.NewAccount().WithStripeAccount("acct_123").Verified().Principal()

	proc.On("CreateCheckoutLink", mock.Anything, mock.MatchedBy(func(params ports.CheckoutLinkParams) bool {
		return params.ConnectedAccountID == "acct_123" &&
			params.Interval == domain.IntervalMonth &&
			params.ApplicationFeePercent > 0 &&
			params.ApplicationFeeAmount == 0
	})).Return(&ports.CheckoutLink{ID: "plink_2", URL: "https://buy.stripe.com/2"}, nil)

	req := validRequest()
	req.Interval = "Month"
	link, err := svc.CreateSubscriptionLink(context.Background(), p, req)
	require.NoError(t, err)
	assert.False(t, link.OnPlatform)

	stored, err := store.Links().Get(context.Background(), nil, domain.LinkKindSubscription, link.LinkID)
	require.NoError(t, err)
	assert.False(t, stored.OnPlatform)
}

func TestCreatePaymentLink_Validation(t *testing.T) {
	past := fixedNow.Add(-48 * time.Hour)
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name   string
		mutate func(*CreateLinkRequest)
	}{
		{"blank title", func(r *CreateLinkRequest) { r.Title = "   " }},
		{"long title", func(r *CreateLinkRequest) { r.Title = string(long) }},
		{"zero amount", func(r *CreateLinkRequest) { r.Amount = 0 }},
		{"negative amount", func(r *CreateLinkRequest) { r.Amount = -5 }},
		{"unsupported currency", func(r *CreateLinkRequest) { r.Currency = "jpy" }},
		{"unknown require field", func(r *CreateLinkRequest) { r.RequireFields = []string{"shoe_size"} }},
		{"expiry in the past", func(r *CreateLinkRequest) { r.ExpiresAt = &past }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, proc := newTestService(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.CreatePaymentLink(context.Background(), fixtures.NewAccount().Principal(), req)
			assert.True(t, domain.IsValidationError(err), "got %v", err)
			proc.AssertNotCalled(t, "CreateCheckoutLink", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSubscriptionLink_RequiresInterval(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateSubscriptionLink(context.Background(), fixtures.NewAccount().Principal(), validRequest())
	assert.True(t, domain.IsValidationError(err))
}

func TestCreatePaymentLink_DefaultsAndExpiry(t *testing.T) {
	svc, _, proc := newTestService(t)
	proc.On("CreateCheckoutLink", mock.Anything, mock.Anything).
		Return(&ports.CheckoutLink{ID: "plink_3", URL: "https://buy.stripe.com/3"}, nil)

	req := validRequest()
	req.Currency = ""
	today := fixedNow.Add(time.Hour)
	req.ExpiresAt = &today

	link, err := svc.CreatePaymentLink(context.Background(), fixtures.NewAccount().Principal(), req)
	require.NoError(t, err)
	assert.Equal(t, "gbp", link.Currency)
	require.NotNil(t, link.ExpiresAt)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC), *link.ExpiresAt)
}

func TestCreatePaymentLink_ProcessorFailureMarksDraftFailed(t *testing.T) {
	svc, store, proc := newTestService(t)
	p := fixtures.NewAccount().Principal()
	procErr := domain.NewProcessorError("payment processor rejected the request", errors.New("bad param"))
	proc.On("CreateCheckoutLink", mock.Anything, mock.Anything).Return(nil, procErr)

	_, err := svc.CreatePaymentLink(context.Background(), p, validRequest())
	require.Error(t, err)
	assert.True(t, domain.IsProcessorError(err))

	all, err := store.Links().ListByUser(context.Background(), nil, domain.LinkKindPayment, p.UserID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.LinkStatusFailed, all[0].Status)
}

func TestCreatePaymentLink_VerifiedWithoutConnectedAccount(t *testing.T) {
	svc, _, proc := newTestService(t)
	p := fixtures.NewAccount().Verified().Principal()

	_, err := svc.CreatePaymentLink(context.Background(), p, validRequest())
	assert.ErrorIs(t, err, domain.ErrStripeAccountRequired)
	proc.AssertNotCalled(t, "CreateCheckoutLink", mock.Anything, mock.Anything)
}

func TestDisableLink(t *testing.T) {
	t.Run("platform link", func(t *testing.T) {
		svc, store, proc := newTestService(t)
		p := fixtures.NewAccount().Principal()
		link := fixtures.NewLink().WithUserID(p.UserID).WithProcessorLinkID("plink_9").Build()
		require.NoError(t, store.Links().CreateDraft(context.Background(), nil, link))
		proc.On("DisableCheckoutLink", mock.Anything, "plink_9", "").Return(nil)

		got, err := svc.DisableLink(context.Background(), p, domain.LinkKindPayment, link.LinkID)
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusDisabled, got.Status)

		stored, err := store.Links().Get(context.Background(), nil, domain.LinkKindPayment, link.LinkID)
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusDisabled, stored.Status)
	})

	t.Run("connected link", func(t *testing.T) {
		svc, store, proc := newTestService(t)
		p := fixtures.NewAccount().WithStripeAccount("acct_9").Verified().Principal()
		link := fixtures.NewLink().WithUserID(p.UserID).WithProcessorLinkID("plink_10").Connected().Build()
		require.NoError(t, store.Links().CreateDraft(context.Background(), nil, link))
		proc.On("DisableCheckoutLink", mock.Anything, "plink_10", "acct_9").Return(nil)

		_, err := svc.DisableLink(context.Background(), p, domain.LinkKindPayment, link.LinkID)
		require.NoError(t, err)
		proc.AssertExpectations(t)
	})

	t.Run("not owned", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		link := fixtures.NewLink().Build()
		require.NoError(t, store.Links().CreateDraft(context.Background(), nil, link))

		_, err := svc.DisableLink(context.Background(), fixtures.NewAccount().Principal(), domain.LinkKindPayment, link.LinkID)
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("draft", func(t *testing.T) {
		svc, store, proc := newTestService(t)
		p := fixtures.NewAccount().Principal()
		link := fixtures.NewLink().WithUserID(p.UserID).Draft().Build()
		require.NoError(t, store.Links().CreateDraft(context.Background(), nil, link))

		_, err := svc.DisableLink(context.Background(), p, domain.LinkKindPayment, link.LinkID)
		assert.True(t, domain.IsValidationError(err))
		proc.AssertNotCalled(t, "DisableCheckoutLink", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestListLinks_HidesDrafts(t *testing.T) {
	svc, store, _ := newTestService(t)
	p := fixtures.NewAccount().Principal()
	ctx := context.Background()

	require.NoError(t, store.Links().CreateDraft(ctx, nil, fixtures.NewLink().WithUserID(p.UserID).Build()))
	require.NoError(t, store.Links().CreateDraft(ctx, nil, fixtures.NewLink().WithUserID(p.UserID).Draft().Build()))
	require.NoError(t, store.Links().CreateDraft(ctx, nil, fixtures.NewLink().Build()))

	got, err := svc.ListLinks(ctx, p, domain.LinkKindPayment)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLinkPayments(t *testing.T) {
	svc, store, proc := newTestService(t)
	p := fixtures.NewAccount().WithStripeAccount("acct_9").Verified().Principal()
	link := fixtures.NewLink().WithUserID(p.UserID).WithProcessorLinkID("plink_11").Connected().Build()
	require.NoError(t, store.Links().CreateDraft(context.Background(), nil, link))

	want := []ports.PaymentSummary{{ID: "pi_1", Amount: 1040, Currency: "gbp", Status: "succeeded"}}
	proc.On("SearchPayments", mock.Anything, p.UserID, link.LinkID, "acct_9").Return(want, nil)

	got, err := svc.LinkPayments(context.Background(), p, domain.LinkKindPayment, link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.LinkPayments(context.Background(), fixtures.NewAccount().Principal(), domain.LinkKindPayment, link.LinkID)
	assert.True(t, domain.IsNotFoundError(err))
}
