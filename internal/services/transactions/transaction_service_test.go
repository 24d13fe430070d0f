package transactions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/adapters/memory"
	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/testutil/fixtures"
	"github.com/kevin07696/payme-service/internal/testutil/mocks"
)

func newTestService() (*Service, *memory.TransactionStore, *mocks.MockProcessor) {
	store := memory.NewStore()
	proc := new(mocks.MockProcessor)
	return NewService(store.Transactions(), proc, zap.NewNop()), store.Transactions(), proc
}

func insert(t *testing.T, txns *memory.TransactionStore, userID, id string, day time.Time, mutate func(*domain.Transaction)) {
	t.Helper()
	txn := &domain.Transaction{
		UserID:            userID,
		ExternalPaymentID: id,
		SortKey:           domain.SortKey(day, id),
		LinkID:            "link-1",
		LinkKind:          domain.LinkKindPayment,
		Currency:          "gbp",
		Status:            domain.TransactionStatusSucceeded,
		Amount:            1040,
		CreatedAt:         day,
	}
	if mutate != nil {
		mutate(txn)
	}
	inserted, err := txns.InsertIfAbsent(context.Background(), nil, txn)
	require.NoError(t, err)
	require.True(t, inserted)
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC)
}

func TestList(t *testing.T) {
	svc, txns, _ := newTestService()
	ctx := context.Background()
	for i := 1; i <= 30; i++ {
		insert(t, txns, "u1", fmt.Sprintf("pi_%02d", i), day(1+i%28), nil)
	}
	insert(t, txns, "u2", "pi_other", day(5), nil)

	t.Run("recent", func(t *testing.T) {
		got, err := svc.List(ctx, "u1", "", "")
		require.NoError(t, err)
		assert.Len(t, got, 25)
		assert.GreaterOrEqual(t, got[0].SortKey, got[24].SortKey)
	})

	t.Run("single day range is inclusive", func(t *testing.T) {
		got, err := svc.List(ctx, "u1", "2024-03-05", "2024-03-05")
		require.NoError(t, err)
		require.NotEmpty(t, got)
		for _, txn := range got {
			assert.Equal(t, "u1", txn.UserID)
			assert.Contains(t, txn.SortKey, "2024-03-05#")
		}
	})

	t.Run("inverted range is empty", func(t *testing.T) {
		got, err := svc.List(ctx, "u1", "2024-03-10", "2024-03-01")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := svc.List(ctx, "u1", "03/01/2024", "2024-03-05")
		assert.True(t, domain.IsValidationError(err))
	})
}

func TestGet(t *testing.T) {
	svc, txns, _ := newTestService()
	insert(t, txns, "u1", "pi_1", day(1), nil)

	got, err := svc.Get(context.Background(), "u1", "pi_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1040), got.Amount)

	_, err = svc.Get(context.Background(), "u2", "pi_1")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("platform payment", func(t *testing.T) {
		svc, txns, proc := newTestService()
		p := fixtures.NewAccount().Principal()
		insert(t, txns, p.UserID, "pi_1", day(1), nil)
		proc.On("Refund", mock.Anything, "pi_1", "").Return("succeeded", nil)

		res, err := svc.Refund(ctx, p, "1")
		require.NoError(t, err)
		assert.Equal(t, RefundStatusRefunded, res.Status)
		assert.Equal(t, "pi_1", res.PaymentIntentID)

		stored, err := txns.Get(ctx, nil, p.UserID, "pi_1")
		require.NoError(t, err)
		assert.True(t, stored.Refunded)
		assert.Equal(t, "succeeded", stored.RefundStatus)
	})

	t.Run("connected payment", func(t *testing.T) {
		svc, txns, proc := newTestService()
		p := fixtures.NewAccount().Principal()
		insert(t, txns, p.UserID, "pi_2", day(1), func(txn *domain.Transaction) { txn.StripeAccountID = "acct_5" })
		proc.On("Refund", mock.Anything, "pi_2", "acct_5").Return("pending", nil)

		_, err := svc.Refund(ctx, p, "pi_2")
		require.NoError(t, err)
		proc.AssertExpectations(t)
	})

	t.Run("already refunded", func(t *testing.T) {
		svc, txns, proc := newTestService()
		p := fixtures.NewAccount().Principal()
		insert(t, txns, p.UserID, "pi_3", day(1), func(txn *domain.Transaction) { txn.Refunded = true })

		res, err := svc.Refund(ctx, p, "pi_3")
		require.NoError(t, err)
		assert.Equal(t, RefundStatusAlreadyRefunded, res.Status)
		proc.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed payment", func(t *testing.T) {
		svc, txns, _ := newTestService()
		p := fixtures.NewAccount().Principal()
		insert(t, txns, p.UserID, "pi_4", day(1), func(txn *domain.Transaction) { txn.Status = domain.TransactionStatusFailed })

		_, err := svc.Refund(ctx, p, "pi_4")
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("unknown", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Refund(ctx, fixtures.NewAccount().Principal(), "pi_missing")
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("processor failure", func(t *testing.T) {
		svc, txns, proc := newTestService()
		p := fixtures.NewAccount().Principal()
		insert(t, txns, p.UserID, "pi_5", day(1), nil)
		proc.On("Refund", mock.Anything, "pi_5", "").Return("", domain.NewProcessorError("payment processor rejected the request", nil))

		_, err := svc.Refund(ctx, p, "pi_5")
		assert.True(t, domain.IsProcessorError(err))

		stored, err := txns.Get(ctx, nil, p.UserID, "pi_5")
		require.NoError(t, err)
		assert.False(t, stored.Refunded)
	})
}
