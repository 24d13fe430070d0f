// Package fees prices checkout links.
//
// A seller enters the amount they want to receive. The customer pays that amount
// plus a fixed platform fee picked from a currency-converted tier table, grossed
// up so the processor's percentage cut comes out of the fee side. Seller earnings
// are always the base amount.
package fees

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/payme-service/internal/domain"
)

// Config holds the percentage components of the fee formula
type Config struct {
	StripeFeePercent  float64 `mapstructure:"stripe_fee_percent"`
	ServiceFeePercent float64 `mapstructure:"service_fee_percent"`
}

type tier struct {
	maxUSD int64 // inclusive upper bound in USD cents; 0 means unbounded
	feeUSD int64
}

var tiers = []tier{
	{maxUSD: 1_000, feeUSD: 40},
	{maxUSD: 2_000, feeUSD: 60},
	{maxUSD: 5_000, feeUSD: 90},
	{maxUSD: 10_000, feeUSD: 150},
	{maxUSD: 25_000, feeUSD: 250},
	{maxUSD: 50_000, feeUSD: 400},
	{maxUSD: 100_000, feeUSD: 600},
	{maxUSD: 1_000_000, feeUSD: 1_200},
	{maxUSD: 0, feeUSD: 2_500},
}

// Units of the currency per 1 USD. Unknown currencies convert 1:1.
var usdRates = map[string]decimal.Decimal{
	"usd": decimal.NewFromInt(1),
	"eur": decimal.RequireFromString("0.92"),
	"gbp": decimal.RequireFromString("0.79"),
	"cad": decimal.RequireFromString("1.36"),
	"aud": decimal.RequireFromString("1.52"),
	"nzd": decimal.RequireFromString("1.65"),
	"chf": decimal.RequireFromString("0.88"),
	"sek": decimal.RequireFromString("10.5"),
	"nok": decimal.RequireFromString("10.6"),
	"dkk": decimal.RequireFromString("6.9"),
	"pln": decimal.RequireFromString("4.0"),
}

var hundred = decimal.NewFromInt(100)

// Engine computes fee quotes. It is safe for concurrent use.
type Engine struct {
	stripePercent  decimal.Decimal
	servicePercent decimal.Decimal
}

// NewEngine validates the percentages and builds an engine
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		stripePercent:  decimal.NewFromFloat(cfg.StripeFeePercent),
		servicePercent: decimal.NewFromFloat(cfg.ServiceFeePercent),
	}
	if _, err := e.divisor(); err != nil {
		return nil, err
	}
	return e, nil
}

// Quote prices a base amount in minor units
func (e *Engine) Quote(baseCents int64, currency string) (domain.FeeQuote, error) {
	if baseCents < 0 {
		return domain.FeeQuote{}, domain.ErrInvalidAmount
	}
	divisor, err := e.divisor()
	if err != nil {
		return domain.FeeQuote{}, err
	}

	currency = normalizeCurrency(currency)
	fee := fixedFee(baseCents, rateFor(currency))
	total := decimal.NewFromInt(baseCents + fee).Div(divisor).RoundBank(0).IntPart()

	effective := 0.0
	if baseCents > 0 {
		effective = decimal.NewFromInt(fee).Mul(hundred).
			Div(decimal.NewFromInt(baseCents)).Round(2).InexactFloat64()
	}

	return domain.FeeQuote{
		Currency:                   currency,
		BaseAmountCents:            baseCents,
		TotalCents:                 total,
		ServiceFeeCents:            fee,
		ServiceFeePercentEffective: effective,
		StripeFeePercent:           e.stripePercent.InexactFloat64(),
	}, nil
}

// BaseAmountFromTotal inverts the gross-up. Used for diagnostics and legacy
// links without base_amount metadata, never for crediting earnings.
func (e *Engine) BaseAmountFromTotal(totalCents int64, currency string) (int64, error) {
	if totalCents < 0 {
		return 0, domain.ErrInvalidAmount
	}
	divisor, err := e.divisor()
	if err != nil {
		return 0, err
	}

	rate := rateFor(normalizeCurrency(currency))
	net := decimal.NewFromInt(totalCents).Mul(divisor).Round(0).IntPart()

	lower := decimal.NewFromInt(-1)
	for _, t := range tiers {
		fee := friendlyCeil(decimal.NewFromInt(t.feeUSD).Mul(rate))
		candidate := net - fee
		c := decimal.NewFromInt(candidate)
		if candidate >= 0 && c.GreaterThan(lower) && (t.maxUSD == 0 || c.LessThanOrEqual(threshold(t, rate))) {
			return candidate, nil
		}
		if t.maxUSD != 0 {
			lower = threshold(t, rate)
		}
	}

	// net falls in a gap between tiers; take the fee of the tier net itself lands in
	base := net - fixedFee(net, rate)
	if base < 0 {
		base = 0
	}
	return base, nil
}

// EarningsFromBaseAmount is what the seller is credited for a settled payment
func EarningsFromBaseAmount(baseCents int64) int64 {
	return baseCents
}

// ApplicationFeePercent expresses a quote's fixed fee as a percentage of the
// total, for processors that only accept percentage fees on subscriptions.
func ApplicationFeePercent(q domain.FeeQuote) float64 {
	if q.TotalCents <= 0 {
		return 0
	}
	return decimal.NewFromInt(q.ServiceFeeCents).Mul(hundred).
		Div(decimal.NewFromInt(q.TotalCents)).Round(2).InexactFloat64()
}

// SupportedCurrency reports whether the currency has a conversion rate
func SupportedCurrency(currency string) bool {
	_, ok := usdRates[normalizeCurrency(currency)]
	return ok
}

func (e *Engine) divisor() (decimal.Decimal, error) {
	combined := e.stripePercent.Add(e.servicePercent)
	if combined.IsNegative() || combined.GreaterThanOrEqual(hundred) {
		return decimal.Zero, domain.ErrInvalidFeeConfiguration
	}
	return decimal.NewFromInt(1).Sub(combined.Div(hundred)), nil
}

func fixedFee(baseCents int64, rate decimal.Decimal) int64 {
	amount := decimal.NewFromInt(baseCents)
	for _, t := range tiers {
		if t.maxUSD == 0 || amount.LessThanOrEqual(threshold(t, rate)) {
			return friendlyCeil(decimal.NewFromInt(t.feeUSD).Mul(rate))
		}
	}
	return friendlyCeil(decimal.NewFromInt(tiers[len(tiers)-1].feeUSD).Mul(rate))
}

func threshold(t tier, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(t.maxUSD).Mul(rate)
}

// friendlyCeil rounds a converted fee up to a step that grows with its size
func friendlyCeil(fee decimal.Decimal) int64 {
	v := fee.Ceil().IntPart()
	var step int64
	switch {
	case v < 100:
		step = 5
	case v < 500:
		step = 10
	case v < 2000:
		step = 50
	default:
		step = 100
	}
	return ((v + step - 1) / step) * step
}

func rateFor(currency string) decimal.Decimal {
	if r, ok := usdRates[currency]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}

func normalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}
