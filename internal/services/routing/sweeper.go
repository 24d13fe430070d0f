package routing

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// SweepResult reports a sweep per currency
type SweepResult struct {
	Transferred map[string]int64  `json:"transferred"`
	Failed      map[string]string `json:"failed"`
}

// Empty reports whether there was nothing to sweep
func (r SweepResult) Empty() bool {
	return len(r.Transferred) == 0 && len(r.Failed) == 0
}

// AllFailed reports whether every attempted currency failed
func (r SweepResult) AllFailed() bool {
	return len(r.Failed) > 0 && len(r.Transferred) == 0
}

// Sweeper moves platform-held pending earnings to a seller's connected account
type Sweeper struct {
	accounts  ports.AccountRepository
	transfers ports.TransferProcessor
	metrics   observability.Recorder
	logger    *zap.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(accounts ports.AccountRepository, transfers ports.TransferProcessor, metrics observability.Recorder, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		accounts:  accounts,
		transfers: transfers,
		metrics:   metrics,
		logger:    logger,
	}
}

// SweepPendingToConnected transfers each positive pending balance, in currency
// order. Each currency is claimed before its transfer, so concurrent sweeps never
// move the same balance twice. A failed transfer credits the claim back.
func (s *Sweeper) SweepPendingToConnected(ctx context.Context, userID string) (SweepResult, error) {
	result := SweepResult{
		Transferred: make(map[string]int64),
		Failed:      make(map[string]string),
	}

	account, err := s.accounts.Get(ctx, nil, userID)
	if err != nil {
		return result, err
	}
	if !account.HasConnectedAccount() {
		return result, domain.ErrStripeAccountRequired
	}

	pending := account.PendingEarnings.Positive()
	currencies := make([]string, 0, len(pending))
	for c := range pending {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, currency := range currencies {
		amount, err := s.accounts.ClaimPendingEarnings(ctx, nil, userID, currency)
		if err != nil {
			result.Failed[currency] = domain.GetErrorMessage(err)
			s.logger.Error("Failed to claim pending earnings",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("currency", currency),
			)
			continue
		}
		if amount <= 0 {
			// Another sweep got there first
			if amount < 0 {
				s.restore(ctx, userID, currency, amount)
			}
			continue
		}

		key := fmt.Sprintf("sweep_%s_%s_%s", userID, currency, uuid.NewString())
		transferID, err := s.transfers.Transfer(ctx, amount, currency, account.StripeAccountID, key)
		if err != nil {
			result.Failed[currency] = domain.GetErrorMessage(err)
			s.logger.Error("Transfer of pending earnings failed",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("currency", currency),
				zap.Int64("amount", amount),
			)
			s.restore(ctx, userID, currency, amount)
			continue
		}

		result.Transferred[currency] = amount
		s.logger.Info("Transferred pending earnings",
			zap.String("user_id", userID),
			zap.String("currency", currency),
			zap.Int64("amount", amount),
			zap.String("transfer_id", transferID),
		)
	}

	s.metrics.TransferResults(len(result.Transferred), len(result.Failed))
	return result, nil
}

// restore credits a claimed amount back. It outlives the caller's context so a
// canceled request cannot drop the balance.
func (s *Sweeper) restore(ctx context.Context, userID, currency string, amount int64) {
	ctx = context.WithoutCancel(ctx)
	if err := s.accounts.IncrementPendingEarnings(ctx, nil, userID, currency, amount); err != nil {
		// The balance is gone from the ledger but no money moved; reconcile by hand
		s.logger.Error("Failed to restore claimed pending earnings",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("currency", currency),
			zap.Int64("amount", amount),
		)
	}
}
