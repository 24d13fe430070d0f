package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/handlers/response"
	"github.com/kevin07696/payme-service/internal/services/routing"
)

// Sweeper moves pending earnings to a connected account
type Sweeper interface {
	SweepPendingToConnected(ctx context.Context, userID string) (routing.SweepResult, error)
}

// TransferHandler serves the manual sweep route
type TransferHandler struct {
	sweeper Sweeper
	logger  *zap.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(sweeper Sweeper, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{sweeper: sweeper, logger: logger}
}

// TransferResponse reports a manual sweep
type TransferResponse struct {
	Transferred     map[string]int64  `json:"transferred"`
	Failed          map[string]string `json:"failed"`
	StripeAccountID string            `json:"stripe_account_id"`
	Message         string            `json:"message,omitempty"`
}

// Transfer handles POST /transfers/transfer
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	accountID := p.StripeAccountID()
	if !strings.HasPrefix(accountID, "acct_") {
		response.Message(w, http.StatusBadRequest, domain.ErrorCodeValidationFailed, "Connected Stripe account is required")
		return
	}

	result, err := h.sweeper.SweepPendingToConnected(r.Context(), p.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}

	body := TransferResponse{
		Transferred:     result.Transferred,
		Failed:          result.Failed,
		StripeAccountID: accountID,
	}
	switch {
	case result.Empty():
		body.Message = "No pending earnings to transfer"
		response.JSON(w, http.StatusOK, body)
	case result.AllFailed():
		h.logger.Error("Every pending transfer failed",
			zap.String("user_id", p.UserID),
			zap.Any("failed", result.Failed),
		)
		body.Message = "Transfer failed"
		response.JSON(w, http.StatusBadGateway, body)
	default:
		response.JSON(w, http.StatusOK, body)
	}
}
