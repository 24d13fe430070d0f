package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/payme-service/internal/domain"
)

// AccountBuilder provides fluent API for building test seller accounts.
type AccountBuilder struct {
	account *domain.SellerAccount
}

// NewAccount creates a NEW account without a connected account.
func NewAccount() *AccountBuilder {
	now := time.Now().UTC()
	return &AccountBuilder{
		account: &domain.SellerAccount{
			UserID:          uuid.NewString(),
			Country:         "GB",
			Status:          domain.AccountStatusNew,
			Earnings:        domain.Balances{},
			PendingEarnings: domain.Balances{},
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

func (b *AccountBuilder) WithUserID(userID string) *AccountBuilder {
	b.account.UserID = userID
	return b
}

func (b *AccountBuilder) WithStripeAccount(id string) *AccountBuilder {
	b.account.StripeAccountID = id
	return b
}

func (b *AccountBuilder) WithStatus(status domain.AccountStatus) *AccountBuilder {
	b.account.Status = status
	return b
}

func (b *AccountBuilder) Verified() *AccountBuilder {
	b.account.Status = domain.AccountStatusVerified
	return b
}

func (b *AccountBuilder) Restricted() *AccountBuilder {
	b.account.Status = domain.AccountStatusRestricted
	return b
}

func (b *AccountBuilder) WithPending(currency string, amount int64) *AccountBuilder {
	b.account.PendingEarnings[currency] = amount
	return b
}

func (b *AccountBuilder) WithEarnings(currency string, amount int64) *AccountBuilder {
	b.account.Earnings[currency] = amount
	return b
}

func (b *AccountBuilder) Build() *domain.SellerAccount {
	a := *b.account
	a.Earnings = copyBalances(b.account.Earnings)
	a.PendingEarnings = copyBalances(b.account.PendingEarnings)
	return &a
}

// Principal wraps the account in an authenticated caller
func (b *AccountBuilder) Principal() *domain.Principal {
	a := b.Build()
	return &domain.Principal{
		UserID:  a.UserID,
		Email:   "seller@example.com",
		Subject: "sub-" + a.UserID,
		Account: a,
	}
}

func copyBalances(in domain.Balances) domain.Balances {
	out := make(domain.Balances, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
