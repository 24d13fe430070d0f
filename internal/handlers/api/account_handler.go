package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/handlers/response"
)

// AccountService manages seller accounts
type AccountService interface {
	CreateConnectedAccount(ctx context.Context, p *domain.Principal, country string) (*domain.SellerAccount, error)
	GetAccount(ctx context.Context, p *domain.Principal) (*domain.SellerAccount, error)
}

// AccountHandler serves the user and platform account routes
type AccountHandler struct {
	accounts AccountService
	logger   *zap.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// MeResponse describes the authenticated user
type MeResponse struct {
	Account *domain.SellerAccount `json:"account"`
	UserID  string                `json:"user_id"`
	Email   string                `json:"email"`
}

// Me handles GET /users/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	response.JSON(w, http.StatusOK, MeResponse{
		Account: p.Account,
		UserID:  p.UserID,
		Email:   p.Email,
	})
}

type connectedAccountRequest struct {
	Country string `json:"country"`
}

// CreateConnectedAccount handles POST /platform/connected-accounts
func (h *AccountHandler) CreateConnectedAccount(w http.ResponseWriter, r *http.Request) {
	var req connectedAccountRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	account, err := h.accounts.CreateConnectedAccount(r.Context(), principal(r), req.Country)
	if err != nil {
		h.logger.Warn("Create connected account failed", zap.Error(err))
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, account)
}

// GetAccount handles GET /platform/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), principal(r))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, account)
}
