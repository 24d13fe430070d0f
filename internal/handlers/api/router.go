// Package api serves the seller-facing REST API.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/pkg/middleware"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// Authenticator turns bearer tokens into principals
type Authenticator interface {
	RequirePrincipal(statuses ...domain.AccountStatus) func(http.Handler) http.Handler
}

// RouterConfig holds the HTTP-layer settings
type RouterConfig struct {
	AllowedOrigins []string
	HSTS           bool
}

// Handlers groups every handler mounted on the router
type Handlers struct {
	Accounts      *AccountHandler
	Links         *LinkHandler
	Transactions  *TransactionHandler
	Subscribers   *SubscriberHandler
	Transfers     *TransferHandler
	Webhook       http.Handler
	ExpireLinks   http.HandlerFunc
	Health        http.HandlerFunc
	Authenticator Authenticator
	RateLimiter   *middleware.RateLimiter
}

var sellerStatuses = []domain.AccountStatus{
	domain.AccountStatusNew,
	domain.AccountStatusRestricted,
	domain.AccountStatusVerified,
}

// NewRouter mounts all routes. Webhook and cron routes carry their own
// authentication and skip the bearer token check.
func NewRouter(h Handlers, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.HTTPMetrics)
	r.Use(middleware.SecurityHeaders(cfg.HSTS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if h.RateLimiter != nil {
		r.Use(h.RateLimiter.Middleware)
	}

	r.Get("/health", h.Health)
	r.Post("/webhooks/platform/stripe", h.Webhook.ServeHTTP)
	r.Post("/cron/expire-links", h.ExpireLinks)

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticator.RequirePrincipal())
		r.Get("/users/me", h.Accounts.Me)
		r.Post("/platform/connected-accounts", h.Accounts.CreateConnectedAccount)
		r.Get("/platform/account", h.Accounts.GetAccount)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticator.RequirePrincipal(sellerStatuses...))

		r.Post("/links/payment", h.Links.CreatePaymentLink)
		r.Post("/links/subscription", h.Links.CreateSubscriptionLink)
		r.Get("/links/{kind}", h.Links.ListLinks)
		r.Get("/links/{kind}/{id}", h.Links.GetLink)
		r.Get("/links/{kind}/{id}/payments", h.Links.LinkPayments)
		r.Post("/links/{kind}/{id}/disable", h.Links.DisableLink)

		r.Get("/transactions", h.Transactions.List)
		r.Get("/transactions/{id}", h.Transactions.Get)
		r.Post("/transactions/{id}/refund", h.Transactions.Refund)

		r.Get("/subscriptions/{linkID}/subscribers", h.Subscribers.List)
		r.Post("/subscriptions/{id}/cancel", h.Subscribers.Cancel)

		r.Post("/transfers/transfer", h.Transfers.Transfer)
	})

	return r
}

// requestLogger logs one line per request with the chi request id
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
