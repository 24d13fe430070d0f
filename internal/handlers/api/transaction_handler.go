package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/handlers/response"
	"github.com/kevin07696/payme-service/internal/services/transactions"
)

// TransactionService reads and refunds transactions
type TransactionService interface {
	List(ctx context.Context, userID, from, to string) ([]*domain.Transaction, error)
	Get(ctx context.Context, userID, externalID string) (*domain.Transaction, error)
	Refund(ctx context.Context, p *domain.Principal, externalID string) (*transactions.RefundResult, error)
}

// TransactionHandler serves the /transactions routes
type TransactionHandler struct {
	txns   TransactionService
	logger *zap.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(txns TransactionService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{txns: txns, logger: logger}
}

// TransactionsResponse wraps a transaction listing
type TransactionsResponse struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

// List handles GET /transactions?date_start&date_end
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.txns.List(r.Context(), principal(r).UserID, q.Get("date_start"), q.Get("date_end"))
	if err != nil {
		response.Error(w, err)
		return
	}
	if items == nil {
		items = []*domain.Transaction{}
	}
	response.JSON(w, http.StatusOK, TransactionsResponse{Transactions: items})
}

// Get handles GET /transactions/{id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.txns.Get(r.Context(), principal(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, txn)
}

// Refund handles POST /transactions/{id}/refund
func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	result, err := h.txns.Refund(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("Refund failed", zap.Error(err), zap.String("transaction_id", chi.URLParam(r, "id")))
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}
