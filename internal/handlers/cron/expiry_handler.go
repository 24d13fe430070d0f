package cron

import (
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/handlers/response"
	"github.com/kevin07696/payme-service/internal/services/expiry"
)

// ExpiryHandler handles the cron endpoint that expires checkout links
type ExpiryHandler struct {
	expirer    expiry.Expirer
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
	now        func() time.Time
}

// NewExpiryHandler creates a new link expiry cron handler
func NewExpiryHandler(expirer expiry.Expirer, logger *zap.Logger, cronSecret string) *ExpiryHandler {
	return &ExpiryHandler{
		expirer:    expirer,
		logger:     logger,
		cronSecret: cronSecret,
		now:        time.Now,
	}
}

// ExpireLinksResponse represents the response from an expiry run
type ExpireLinksResponse struct {
	Errors      []string `json:"errors,omitempty"`
	ProcessedAt string   `json:"processed_at"`
	Processed   int      `json:"processed"`
	Expired     int      `json:"expired"`
	Failed      int      `json:"failed"`
	Success     bool     `json:"success"`
}

// ExpireLinks handles POST /cron/expire-links
func (h *ExpiryHandler) ExpireLinks(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Link expiry cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		response.Error(w, domain.ErrUnauthenticated)
		return
	}

	now := h.now().UTC()
	res, err := h.expirer.ExpireLinks(r.Context(), now)
	if err != nil {
		h.logger.Error("Link expiry run failed", zap.Error(err))
		response.Error(w, domain.NewStorageError("link expiry failed", err))
		return
	}

	status := http.StatusOK
	if res.Partial() {
		status = http.StatusPartialContent
	}
	response.JSON(w, status, ExpireLinksResponse{
		Success:     !res.Partial(),
		Processed:   res.Processed,
		Expired:     res.Expired,
		Failed:      res.Failed,
		Errors:      res.Errors,
		ProcessedAt: now.Format(time.RFC3339),
	})
}

// authenticateRequest verifies the X-Cron-Secret header. An unset secret rejects everything.
func (h *ExpiryHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	got := r.Header.Get("X-Cron-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) == 1
}
