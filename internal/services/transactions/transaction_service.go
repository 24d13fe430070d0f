// Package transactions serves a seller's payment history and refunds.
package transactions

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

const recentLimit = 25

// Refund outcomes
const (
	RefundStatusRefunded        = "refunded"
	RefundStatusAlreadyRefunded = "already_refunded"
)

// RefundResult reports what a refund request did
type RefundResult struct {
	Status          string `json:"status"`
	PaymentIntentID string `json:"payment_intent_id"`
	Message         string `json:"message,omitempty"`
}

// Service implements transaction reads and refunds
type Service struct {
	txns    ports.TransactionRepository
	refunds ports.RefundProcessor
	logger  *zap.Logger
}

// NewService creates a new transaction service
func NewService(txns ports.TransactionRepository, refunds ports.RefundProcessor, logger *zap.Logger) *Service {
	return &Service{txns: txns, refunds: refunds, logger: logger}
}

// List returns the newest transactions, or those dated within [from, to] when both
// YYYY-MM-DD bounds are given
func (s *Service) List(ctx context.Context, userID, from, to string) ([]*domain.Transaction, error) {
	if from == "" || to == "" {
		return s.txns.ListRecent(ctx, nil, userID, recentLimit)
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return nil, domain.NewValidationError("dates must be formatted YYYY-MM-DD").WithDetail("date", d)
		}
	}
	if from > to {
		return []*domain.Transaction{}, nil
	}
	lo, hi := domain.SortKeyRange(from, to)
	return s.txns.ListRange(ctx, nil, userID, lo, hi)
}

// Get returns one of the user's transactions by payment id
func (s *Service) Get(ctx context.Context, userID, externalID string) (*domain.Transaction, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.NewValidationError("transaction id is required")
	}
	return s.txns.Get(ctx, nil, userID, externalID)
}

// Refund refunds a succeeded payment in full, on the account it settled into
func (s *Service) Refund(ctx context.Context, p *domain.Principal, externalID string) (*RefundResult, error) {
	piID := domain.NormalizePaymentIntentID(strings.TrimSpace(externalID))
	if piID == "" {
		return nil, domain.NewValidationError("payment_intent_id is required")
	}

	txn, err := s.txns.Get(ctx, nil, p.UserID, piID)
	if err != nil {
		return nil, err
	}
	if txn.Refunded {
		return &RefundResult{
			Status:          RefundStatusAlreadyRefunded,
			PaymentIntentID: piID,
			Message:         "Transaction already refunded",
		}, nil
	}
	if !txn.IsSucceeded() {
		return nil, domain.NewValidationError("only succeeded transactions can be refunded")
	}

	status, err := s.refunds.Refund(ctx, piID, txn.StripeAccountID)
	if err != nil {
		s.logger.Warn("Refund failed",
			zap.Error(err),
			zap.String("user_id", p.UserID),
			zap.String("payment_intent_id", piID),
		)
		return nil, err
	}
	if status == "" {
		status = RefundStatusRefunded
	}

	if err := s.txns.MarkRefunded(ctx, nil, p.UserID, piID, status); err != nil {
		s.logger.Error("Refund issued but transaction not marked",
			zap.Error(err),
			zap.String("user_id", p.UserID),
			zap.String("payment_intent_id", piID),
		)
		return nil, domain.NewStorageError("failed to mark transaction refunded", err)
	}

	s.logger.Info("Refund issued",
		zap.String("user_id", p.UserID),
		zap.String("payment_intent_id", piID),
		zap.String("refund_status", status),
		zap.Int64("amount", txn.Amount),
	)
	return &RefundResult{Status: RefundStatusRefunded, PaymentIntentID: piID}, nil
}
