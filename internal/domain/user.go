package domain

import (
	"slices"
	"time"
)

// IdentityProviderCognito is the only identity provider wired today
const IdentityProviderCognito = "cognito"

// User is an application user
type User struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"user_id"`
	Email     string    `json:"email"`
}

// Principal is the request-scoped authenticated caller
type Principal struct {
	Account *SellerAccount
	UserID  string
	Email   string
	Subject string
}

// HasStatus reports whether the principal's account is in one of statuses
func (p *Principal) HasStatus(statuses ...AccountStatus) bool {
	if p == nil || p.Account == nil {
		return false
	}
	return slices.Contains(statuses, p.Account.Status)
}

// StripeAccountID returns the connected account id, or "" when there is none
func (p *Principal) StripeAccountID() string {
	if p == nil || p.Account == nil {
		return ""
	}
	return p.Account.StripeAccountID
}
