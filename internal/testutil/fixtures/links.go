package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/payme-service/internal/domain"
)

// LinkBuilder provides fluent API for building test links.
type LinkBuilder struct {
	link *domain.Link
}

// NewLink creates a new active one-time link builder with sensible defaults.
func NewLink() *LinkBuilder {
	now := time.Now().UTC()
	return &LinkBuilder{
		link: &domain.Link{
			LinkID:          uuid.NewString(),
			UserID:          uuid.NewString(),
			Kind:            domain.LinkKindPayment,
			Title:           "Test Link",
			Currency:        "gbp",
			Status:          domain.LinkStatusActive,
			BaseAmount:      1000, // £10.00
			TotalAmount:     1040,
			ServiceFee:      40,
			ProcessorLinkID: "plink_" + uuid.NewString()[:8],
			URL:             "https://buy.stripe.com/test",
			OnPlatform:      true,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

func (b *LinkBuilder) WithID(id string) *LinkBuilder {
	b.link.LinkID = id
	return b
}

func (b *LinkBuilder) WithUserID(userID string) *LinkBuilder {
	b.link.UserID = userID
	return b
}

func (b *LinkBuilder) WithBaseAmount(amount int64) *LinkBuilder {
	b.link.BaseAmount = amount
	return b
}

func (b *LinkBuilder) WithCurrency(currency string) *LinkBuilder {
	b.link.Currency = currency
	return b
}

func (b *LinkBuilder) WithProcessorLinkID(id string) *LinkBuilder {
	b.link.ProcessorLinkID = id
	return b
}

func (b *LinkBuilder) WithStatus(status domain.LinkStatus) *LinkBuilder {
	b.link.Status = status
	return b
}

func (b *LinkBuilder) ExpiresAt(t time.Time) *LinkBuilder {
	b.link.ExpiresAt = &t
	return b
}

// Subscription turns the link into a monthly subscription link
func (b *LinkBuilder) Subscription() *LinkBuilder {
	b.link.Kind = domain.LinkKindSubscription
	b.link.Interval = domain.IntervalMonth
	return b
}

// Connected marks the link as living on the seller's connected account
func (b *LinkBuilder) Connected() *LinkBuilder {
	b.link.OnPlatform = false
	return b
}

// Draft clears the processor fields
func (b *LinkBuilder) Draft() *LinkBuilder {
	b.link.ProcessorLinkID = ""
	b.link.URL = ""
	return b
}

func (b *LinkBuilder) Build() *domain.Link {
	l := *b.link
	return &l
}
