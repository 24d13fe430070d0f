package domain

import (
	"slices"
	"strings"
	"time"
)

// LinkKind distinguishes one-time payment links from subscription links
type LinkKind string

const (
	LinkKindPayment      LinkKind = "payment"
	LinkKindSubscription LinkKind = "subscription"
)

// IsValid checks if the link kind is valid
func (k LinkKind) IsValid() bool {
	return k == LinkKindPayment || k == LinkKindSubscription
}

// MetadataType is the link_type value written into processor metadata
func (k LinkKind) MetadataType() string {
	if k == LinkKindSubscription {
		return "subscription"
	}
	return "one_time"
}

// LinkStatus is the lifecycle status of a checkout link
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "ACTIVE"
	LinkStatusDisabled LinkStatus = "DISABLED"
	LinkStatusExpired  LinkStatus = "EXPIRED"
	// LinkStatusFailed marks a draft whose processor call failed
	LinkStatusFailed LinkStatus = "FAILED"
)

// BillingInterval is the recurrence of a subscription link
type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// IsValid checks if the interval is valid
func (i BillingInterval) IsValid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// Customer fields a checkout link can ask the payer for
const (
	RequireEmail   = "email"
	RequireName    = "name"
	RequireAddress = "address"
	RequirePhone   = "phone"
)

var allowedRequireFields = []string{RequireEmail, RequireName, RequireAddress, RequirePhone}

// NormalizeRequireFields lowercases, dedupes and validates require_fields
func NormalizeRequireFields(fields []string) ([]string, error) {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !slices.Contains(allowedRequireFields, f) {
			return nil, NewValidationError("require_fields may only contain email, name, address, phone")
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Link is a hosted checkout link, one-time or recurring.
// ProcessorLinkID and URL stay empty while the link is a draft.
type Link struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	RequireFields   []string        `json:"require_fields"`
	LinkID          string          `json:"link_id"`
	UserID          string          `json:"user_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Currency        string          `json:"currency"`
	ProcessorLinkID string          `json:"stripe_payment_link_id,omitempty"`
	URL             string          `json:"url,omitempty"`
	Kind            LinkKind        `json:"kind"`
	Status          LinkStatus      `json:"status"`
	Interval        BillingInterval `json:"interval,omitempty"`
	BaseAmount      int64           `json:"base_amount"`
	TotalAmount     int64           `json:"total_amount"`
	ServiceFee      int64           `json:"service_fee"`
	TotalAmountPaid int64           `json:"total_amount_paid"`
	EarningsAmount  int64           `json:"earnings_amount"`
	OnPlatform      bool            `json:"on_platform"`
}

// IsDraft returns true until the processor link exists
func (l *Link) IsDraft() bool {
	return l.ProcessorLinkID == "" || l.URL == ""
}

// IsActive returns true if the link can still take payments
func (l *Link) IsActive() bool {
	return l.Status == LinkStatusActive
}

// IsExpiredAt reports whether the link is past its expiry at t
func (l *Link) IsExpiredAt(t time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(t)
}

// EndOfDayUTC moves t to 23:59:59 UTC on the same calendar date
func EndOfDayUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
