package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name             string
		current          AccountStatus
		detailsSubmitted bool
		chargesEnabled   bool
		wantNext         AccountStatus
		wantChanged      bool
	}{
		{"new to verified", AccountStatusNew, true, true, AccountStatusVerified, true},
		{"new to restricted", AccountStatusNew, false, false, AccountStatusRestricted, true},
		{"new details only", AccountStatusNew, true, false, AccountStatusRestricted, true},
		{"restricted to verified", AccountStatusRestricted, true, true, AccountStatusVerified, true},
		{"restricted stays", AccountStatusRestricted, true, false, AccountStatusRestricted, false},
		{"verified stays verified", AccountStatusVerified, true, true, AccountStatusVerified, false},
		{"verified never moves back", AccountStatusVerified, false, false, AccountStatusVerified, false},
		{"verified charges disabled", AccountStatusVerified, true, false, AccountStatusVerified, false},
		{"absent to restricted", "", false, false, AccountStatusRestricted, true},
		{"absent to verified", "", true, true, AccountStatusVerified, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, changed := NextStatus(tt.current, tt.detailsSubmitted, tt.chargesEnabled)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestBalances(t *testing.T) {
	b := Balances{"gbp": 300, "usd": 0, "eur": -5}

	assert.Equal(t, int64(295), b.Total())
	assert.Equal(t, Balances{"gbp": 300}, b.Positive())
}

func TestSellerAccount_HasConnectedAccount(t *testing.T) {
	var nilAccount *SellerAccount
	assert.False(t, nilAccount.HasConnectedAccount())
	assert.False(t, (&SellerAccount{StripeAccountID: "cus_123"}).HasConnectedAccount())
	assert.True(t, (&SellerAccount{StripeAccountID: "acct_123"}).HasConnectedAccount())
}
