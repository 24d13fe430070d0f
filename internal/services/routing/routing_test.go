package routing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/adapters/memory"
	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/testutil/fixtures"
	"github.com/kevin07696/payme-service/internal/testutil/mocks"
	"github.com/kevin07696/payme-service/pkg/observability"
)

func TestSelectSettlementTarget(t *testing.T) {
	tests := []struct {
		status domain.AccountStatus
		want   SettlementTarget
	}{
		{domain.AccountStatusVerified, TargetConnected},
		{domain.AccountStatusRestricted, TargetPlatform},
		{domain.AccountStatusNew, TargetPlatform},
		{"", TargetPlatform},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectSettlementTarget(tt.status), string(tt.status))
	}
}

func testRequest() LinkRequest {
	link := fixtures.NewLink().WithID("link-1").WithUserID("user-1").WithBaseAmount(1000).Draft().Build()
	return LinkRequest{
		Link:      link,
		UserEmail: "seller@example.com",
		Quote:     domain.FeeQuote{TotalCents: 1040, ServiceFeeCents: 40},
	}
}

func TestPlatformLinkService_CreateOneTime(t *testing.T) {
	proc := new(mocks.MockProcessor)
	proc.On("CreateCheckoutLink", mock.Anything, mock.MatchedBy(func(p ports.CheckoutLinkParams) bool {
		return p.ConnectedAccountID == "" &&
			p.ApplicationFeeAmount == 0 &&
			p.TotalAmount == 1040 &&
			p.Metadata["account_type"] == "platform" &&
			p.Metadata["link_type"] == "one_time" &&
			p.Metadata["base_amount"] == "1000" &&
			p.Metadata["user_email"] == "seller@example.com"
	})).Return(&ports.CheckoutLink{ID: "plink_1", URL: "https://buy.stripe.com/1"}, nil)

	link, err := NewPlatformLinkService(proc).CreateOneTime(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "plink_1", link.ID)
	proc.AssertExpectations(t)
}

func TestConnectedLinkService_Fees(t *testing.T) {
	proc := new(mocks.MockProcessor)
	svc, err := NewConnectedLinkService(proc, "acct_1")
	require.NoError(t, err)
	assert.False(t, svc.OnPlatform())

	proc.On("CreateCheckoutLink", mock.Anything, mock.MatchedBy(func(p ports.CheckoutLinkParams) bool {
		return p.Kind == domain.LinkKindPayment && p.ConnectedAccountID == "acct_1" && p.ApplicationFeeAmount == 40
	})).Return(&ports.CheckoutLink{ID: "plink_2"}, nil).Once()
	proc.On("CreateCheckoutLink", mock.Anything, mock.MatchedBy(func(p ports.CheckoutLinkParams) bool {
		return p.Kind == domain.LinkKindSubscription && p.ApplicationFeePercent == 3.85 &&
			p.Metadata["account_type"] == "connected_account" && p.Metadata["link_type"] == "subscription"
	})).Return(&ports.CheckoutLink{ID: "plink_3"}, nil).Once()

	_, err = svc.CreateOneTime(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = svc.CreateSubscription(context.Background(), testRequest())
	require.NoError(t, err)
	proc.AssertExpectations(t)

	proc.On("DisableCheckoutLink", mock.Anything, "plink_2", "acct_1").Return(nil)
	require.NoError(t, svc.Disable(context.Background(), "plink_2"))
}

func TestNewConnectedLinkService_RequiresAccount(t *testing.T) {
	_, err := NewConnectedLinkService(new(mocks.MockProcessor), "")
	assert.ErrorIs(t, err, domain.ErrStripeAccountRequired)
}

func TestRouter(t *testing.T) {
	r := NewRouter(new(mocks.MockProcessor))

	svc, err := r.ForAccount(fixtures.NewAccount().WithStripeAccount("acct_1").Verified().Build())
	require.NoError(t, err)
	assert.False(t, svc.OnPlatform())

	svc, err = r.ForAccount(fixtures.NewAccount().WithStripeAccount("acct_1").Restricted().Build())
	require.NoError(t, err)
	assert.True(t, svc.OnPlatform())

	svc, err = r.ForLink(fixtures.NewLink().Build(), "")
	require.NoError(t, err)
	assert.True(t, svc.OnPlatform())

	_, err = r.ForLink(fixtures.NewLink().Connected().Build(), "")
	assert.ErrorIs(t, err, domain.ErrStripeAccountRequired)
}

func newSweeper(t *testing.T, account *domain.SellerAccount) (*Sweeper, *memory.Store, *mocks.MockProcessor) {
	t.Helper()
	store := memory.NewStore()
	_, err := store.CreateIfAbsent(context.Background(), nil, account)
	require.NoError(t, err)
	proc := new(mocks.MockProcessor)
	return NewSweeper(store, proc, observability.NopRecorder{}, zap.NewNop()), store, proc
}

func TestSweeper_TransfersEachCurrency(t *testing.T) {
	account := fixtures.NewAccount().WithStripeAccount("acct_1").Verified().
		WithPending("usd", 500).WithPending("eur", 300).WithPending("gbp", 0).Build()
	sweeper, store, proc := newSweeper(t, account)

	var order []string
	proc.On("Transfer", mock.Anything, mock.Anything, mock.Anything, "acct_1", mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.String(2)) }).
		Return("tr_1", nil)

	result, err := sweeper.SweepPendingToConnected(context.Background(), account.UserID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"eur": 300, "usd": 500}, result.Transferred)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []string{"eur", "usd"}, order)

	after, err := store.Get(context.Background(), nil, account.UserID)
	require.NoError(t, err)
	assert.Empty(t, after.PendingEarnings.Positive())
}

func TestSweeper_FailureLeavesBalance(t *testing.T) {
	account := fixtures.NewAccount().WithStripeAccount("acct_1").Verified().
		WithPending("usd", 500).WithPending("eur", 300).Build()
	sweeper, store, proc := newSweeper(t, account)

	proc.On("Transfer", mock.Anything, int64(300), "eur", "acct_1", mock.Anything).Return("", domain.NewProcessorError("insufficient funds", errors.New("x")))
	proc.On("Transfer", mock.Anything, int64(500), "usd", "acct_1", mock.Anything).Return("tr_2", nil)

	result, err := sweeper.SweepPendingToConnected(context.Background(), account.UserID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"usd": 500}, result.Transferred)
	assert.Equal(t, "insufficient funds", result.Failed["eur"])
	assert.False(t, result.AllFailed())

	after, err := store.Get(context.Background(), nil, account.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.Balances{"eur": 300}, after.PendingEarnings)
}

func TestSweeper_KeepsCreditRacingTheTransfer(t *testing.T) {
	account := fixtures.NewAccount().WithStripeAccount("acct_1").Verified().WithPending("gbp", 1000).Build()
	sweeper, store, proc := newSweeper(t, account)

	proc.On("Transfer", mock.Anything, int64(1000), "gbp", "acct_1", mock.Anything).
		Run(func(mock.Arguments) {
			require.NoError(t, store.IncrementPendingEarnings(context.Background(), nil, account.UserID, "gbp", 250))
		}).
		Return("tr_3", nil)

	_, err := sweeper.SweepPendingToConnected(context.Background(), account.UserID)
	require.NoError(t, err)

	after, err := store.Get(context.Background(), nil, account.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), after.PendingEarnings["gbp"])
}

// gatedTransfers holds the first transfer until released
type gatedTransfers struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	moved   int64
	keys    []string
}

func (g *gatedTransfers) Transfer(_ context.Context, amount int64, _, _, key string) (string, error) {
	g.mu.Lock()
	first := len(g.keys) == 0
	g.moved += amount
	g.keys = append(g.keys, key)
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return "tr_gated", nil
}

func TestSweeper_ConcurrentSweepsMoveBalanceOnce(t *testing.T) {
	account := fixtures.NewAccount().WithStripeAccount("acct_1").Verified().WithPending("gbp", 300).Build()
	store := memory.NewStore()
	_, err := store.CreateIfAbsent(context.Background(), nil, account)
	require.NoError(t, err)

	transfers := &gatedTransfers{entered: make(chan struct{}), release: make(chan struct{})}
	sweeper := NewSweeper(store, transfers, observability.NopRecorder{}, zap.NewNop())

	first := make(chan SweepResult, 1)
	go func() {
		result, err := sweeper.SweepPendingToConnected(context.Background(), account.UserID)
		assert.NoError(t, err)
		first <- result
	}()

	// The second sweep runs while the first transfer is in flight
	<-transfers.entered
	second, err := sweeper.SweepPendingToConnected(context.Background(), account.UserID)
	require.NoError(t, err)
	assert.True(t, second.Empty())

	close(transfers.release)
	assert.Equal(t, map[string]int64{"gbp": 300}, (<-first).Transferred)

	assert.Equal(t, int64(300), transfers.moved)
	require.Len(t, transfers.keys, 1)
	assert.Contains(t, transfers.keys[0], account.UserID)

	after, err := store.Get(context.Background(), nil, account.UserID)
	require.NoError(t, err)
	assert.Empty(t, after.PendingEarnings)
}

func TestSweeper_RequiresConnectedAccount(t *testing.T) {
	account := fixtures.NewAccount().WithPending("gbp", 1000).Build()
	sweeper, _, _ := newSweeper(t, account)

	_, err := sweeper.SweepPendingToConnected(context.Background(), account.UserID)
	assert.ErrorIs(t, err, domain.ErrStripeAccountRequired)
}
