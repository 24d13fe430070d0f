package domain

import (
	"strings"
	"time"
)

// AccountStatus is the seller's merchant-account lifecycle state
type AccountStatus string

const (
	AccountStatusNew        AccountStatus = "NEW"
	AccountStatusRestricted AccountStatus = "RESTRICTED"
	AccountStatusVerified   AccountStatus = "VERIFIED"
)

// statusRank orders statuses so transitions can only move forward
var statusRank = map[AccountStatus]int{
	AccountStatusNew:        0,
	AccountStatusRestricted: 1,
	AccountStatusVerified:   2,
}

// IsValid checks if the account status is valid
func (s AccountStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// NextStatus returns the status an account-lifecycle event moves current to.
// changed is false when the event does not advance the state.
func NextStatus(current AccountStatus, detailsSubmitted, chargesEnabled bool) (next AccountStatus, changed bool) {
	target := current
	switch {
	case detailsSubmitted && chargesEnabled:
		target = AccountStatusVerified
	case current == AccountStatusNew || current == "":
		target = AccountStatusRestricted
	}

	if current != "" && statusRank[target] <= statusRank[current] {
		return current, false
	}
	return target, target != current
}

// Balances maps a lowercase currency code to an amount in minor units
type Balances map[string]int64

// Total returns the sum across all currencies
func (b Balances) Total() int64 {
	var sum int64
	for _, v := range b {
		sum += v
	}
	return sum
}

// Positive returns a copy holding only currencies with a balance above zero
func (b Balances) Positive() Balances {
	out := make(Balances, len(b))
	for c, v := range b {
		if v > 0 {
			out[c] = v
		}
	}
	return out
}

// SellerAccount is the per-user merchant account. One per user.
type SellerAccount struct {
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Earnings        Balances      `json:"earnings"`
	PendingEarnings Balances      `json:"pending_earnings"`
	UserID          string        `json:"user_id"`
	StripeAccountID string        `json:"stripe_account_id,omitempty"`
	Country         string        `json:"country"`
	Status          AccountStatus `json:"status"`
}

// HasConnectedAccount reports whether the processor account exists
func (a *SellerAccount) HasConnectedAccount() bool {
	return a != nil && IsConnectedAccountID(a.StripeAccountID)
}

// IsVerified returns true if the seller can settle on their own account
func (a *SellerAccount) IsVerified() bool {
	return a != nil && a.Status == AccountStatusVerified
}

// IsConnectedAccountID checks the processor's connected-account id format
func IsConnectedAccountID(id string) bool {
	return strings.HasPrefix(id, "acct_")
}
