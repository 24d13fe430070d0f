// Package expiry retires checkout links that have passed their expires_at date.
package expiry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/routing"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// batchLimit caps how many links of each kind one run expires
const batchLimit = 50

// LinkRouter hands out the link service that owns an existing link
type LinkRouter interface {
	ForLink(link *domain.Link, stripeAccountID string) (routing.LinkService, error)
}

// Result summarizes one expiry run
type Result struct {
	Errors    []string `json:"errors,omitempty"`
	Processed int      `json:"processed"`
	Expired   int      `json:"expired"`
	Failed    int      `json:"failed"`
}

// Partial reports whether some links could not be expired
func (r Result) Partial() bool {
	return r.Failed > 0
}

// Service expires links
type Service struct {
	links    ports.LinkRepository
	accounts ports.AccountRepository
	router   LinkRouter
	metrics  observability.Recorder
	logger   *zap.Logger
}

// NewService creates a new expiry service
func NewService(links ports.LinkRepository, accounts ports.AccountRepository, router LinkRouter, metrics observability.Recorder, logger *zap.Logger) *Service {
	return &Service{
		links:    links,
		accounts: accounts,
		router:   router,
		metrics:  metrics,
		logger:   logger,
	}
}

// ExpireLinks disables every ACTIVE link of both kinds whose expires_at is at or
// before now, then marks it EXPIRED. A failing link is counted and skipped.
func (s *Service) ExpireLinks(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	for _, kind := range []domain.LinkKind{domain.LinkKindPayment, domain.LinkKindSubscription} {
		due, err := s.links.ListExpired(ctx, nil, kind, now, batchLimit)
		if err != nil {
			return res, fmt.Errorf("list expired %s links: %w", kind, err)
		}
		for _, link := range due {
			res.Processed++
			if err := s.expire(ctx, link); err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", link.LinkID, domain.GetErrorMessage(err)))
				s.logger.Error("Failed to expire link",
					zap.Error(err),
					zap.String("link_id", link.LinkID),
					zap.String("kind", string(kind)),
				)
				continue
			}
			res.Expired++
		}
	}

	s.metrics.LinksExpired(res.Expired, res.Failed)
	if res.Processed > 0 {
		s.logger.Info("Link expiry run finished",
			zap.Int("processed", res.Processed),
			zap.Int("expired", res.Expired),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

func (s *Service) expire(ctx context.Context, link *domain.Link) error {
	if !link.IsDraft() {
		stripeAccountID := ""
		if !link.OnPlatform {
			acct, err := s.accounts.Get(ctx, nil, link.UserID)
			if err != nil {
				return fmt.Errorf("load seller account: %w", err)
			}
			stripeAccountID = acct.StripeAccountID
		}
		svc, err := s.router.ForLink(link, stripeAccountID)
		if err != nil {
			return err
		}
		if err := svc.Disable(ctx, link.ProcessorLinkID); err != nil {
			return err
		}
	}
	if err := s.links.UpdateStatus(ctx, nil, link.Kind, link.LinkID, domain.LinkStatusExpired); err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	s.logger.Info("Link expired", zap.String("link_id", link.LinkID), zap.String("kind", string(link.Kind)))
	return nil
}
