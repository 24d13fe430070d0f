// Package events turns processor webhook events into canonical payment records.
//
// Payloads are decoded per event kind into the wire structs in wire.go. A record
// is only produced when the payment can be attributed to a user and a link;
// everything else is reported as unattributable (nil record, nil error).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// Metadata keys written onto processor objects when a link is created
const (
	MetaUserID     = "user_id"
	MetaUserEmail  = "user_email"
	MetaLinkID     = "link_id"
	MetaLinkType   = "link_type"
	MetaAccount    = "account_type"
	MetaBaseAmount = "base_amount"
)

const defaultCurrency = "usd"

// Event types the service reacts to
const (
	TypePaymentIntentSucceeded   = "payment_intent.succeeded"
	TypePaymentIntentFailed      = "payment_intent.payment_failed"
	TypeChargeSucceeded          = "charge.succeeded"
	TypeInvoicePaid              = "invoice.paid"
	TypeCheckoutSessionCompleted = "checkout.session.completed"
	TypeSubscriptionCreated      = "customer.subscription.created"
	TypeSubscriptionUpdated      = "customer.subscription.updated"
	TypeSubscriptionDeleted      = "customer.subscription.deleted"
	TypeAccountUpdated           = "account.updated"
)

// BillingReasonSubscriptionCreate marks the first invoice of a subscription
const BillingReasonSubscriptionCreate = "subscription_create"

// Extractor builds PaymentRecords from webhook events
type Extractor struct {
	objects   ports.ObjectFetcher
	customers ports.CustomerLookup
	logger    *zap.Logger
	now       func() time.Time
}

// NewExtractor creates a new event extractor
func NewExtractor(objects ports.ObjectFetcher, customers ports.CustomerLookup, logger *zap.Logger) *Extractor {
	return &Extractor{
		objects:   objects,
		customers: customers,
		logger:    logger,
		now:       time.Now,
	}
}

// attribution is the link ownership carried in processor metadata
type attribution struct {
	userID     string
	linkID     string
	baseAmount int64
}

// readAttribution pulls user_id, link_id and (optionally) base_amount from metadata.
// reason is non-empty when the metadata cannot attribute a payment.
func readAttribution(md map[string]string, needBase bool) (attribution, string) {
	a := attribution{
		userID: strings.TrimSpace(md[MetaUserID]),
		linkID: strings.TrimSpace(md[MetaLinkID]),
	}
	if a.userID == "" || a.linkID == "" {
		return a, "missing user_id or link_id metadata"
	}
	if !needBase {
		return a, ""
	}
	base, ok := ParseBaseAmount(md[MetaBaseAmount])
	if !ok {
		return a, "missing or unparseable base_amount metadata"
	}
	a.baseAmount = base
	return a, ""
}

// ParseBaseAmount reads a base_amount metadata value in minor units.
// Values such as "1000" and "1000.0" are accepted; negatives are not.
func ParseBaseAmount(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}

// hasAttribution reports whether metadata names both a user and a link
func hasAttribution(md map[string]string) bool {
	return strings.TrimSpace(md[MetaUserID]) != "" && strings.TrimSpace(md[MetaLinkID]) != ""
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return defaultCurrency
	}
	return c
}

func (x *Extractor) createdAt(unix int64) time.Time {
	if unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return x.now().UTC()
}

func (x *Extractor) unattributable(event *stripego.Event, reason string) {
	x.logger.Info("Skipping unattributable payment event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("reason", reason),
	)
}

// decode unmarshals the event's object into v
func decode(event *stripego.Event, v interface{}) error {
	if event == nil || event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("event has no data object")
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return nil
}

// SucceededPayment extracts a record from payment_intent.succeeded or charge.succeeded
func (x *Extractor) SucceededPayment(ctx context.Context, event *stripego.Event) (*domain.PaymentRecord, error) {
	if string(event.Type) == TypeChargeSucceeded {
		return x.fromCharge(event)
	}

	var pi paymentIntent
	if err := decode(event, &pi); err != nil {
		return nil, err
	}
	attr, reason := readAttribution(pi.Metadata, true)
	if reason != "" {
		x.unattributable(event, reason)
		return nil, nil
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	if amount <= 0 {
		x.unattributable(event, "settled amount is not positive")
		return nil, nil
	}

	rec := &domain.PaymentRecord{
		UserID:             attr.userID,
		LinkID:             attr.linkID,
		BaseAmount:         attr.baseAmount,
		Amount:             amount,
		Currency:           normalizeCurrency(pi.Currency),
		ExternalID:         domain.NormalizePaymentIntentID(pi.ID),
		ConnectedAccountID: event.Account,
		Created:            x.createdAt(pi.Created),
	}
	if ch := pi.firstCharge(); ch != nil {
		rec.Customer = ch.customer()
	}
	return rec, nil
}

func (x *Extractor) fromCharge(event *stripego.Event) (*domain.PaymentRecord, error) {
	var ch charge
	if err := decode(event, &ch); err != nil {
		return nil, err
	}
	attr, reason := readAttribution(ch.Metadata, true)
	if reason != "" {
		x.unattributable(event, reason)
		return nil, nil
	}
	if ch.Amount <= 0 {
		x.unattributable(event, "settled amount is not positive")
		return nil, nil
	}

	id := ch.PaymentIntent.ID
	if id == "" {
		id = ch.ID
	}
	return &domain.PaymentRecord{
		UserID:             attr.userID,
		LinkID:             attr.linkID,
		BaseAmount:         attr.baseAmount,
		Amount:             ch.Amount,
		Currency:           normalizeCurrency(ch.Currency),
		ExternalID:         domain.NormalizePaymentIntentID(id),
		ConnectedAccountID: event.Account,
		Created:            x.createdAt(ch.Created),
		Customer:           ch.customer(),
	}, nil
}

// FailedPayment extracts a record from payment_intent.payment_failed.
// Failed attempts only need user_id and link_id; base_amount is not required.
func (x *Extractor) FailedPayment(ctx context.Context, event *stripego.Event) (*domain.PaymentRecord, error) {
	var pi paymentIntent
	if err := decode(event, &pi); err != nil {
		return nil, err
	}
	attr, reason := readAttribution(pi.Metadata, false)
	if reason != "" {
		x.unattributable(event, reason)
		return nil, nil
	}

	rec := &domain.PaymentRecord{
		UserID:             attr.userID,
		LinkID:             attr.linkID,
		Amount:             pi.Amount,
		Currency:           normalizeCurrency(pi.Currency),
		ExternalID:         domain.NormalizePaymentIntentID(pi.ID),
		ConnectedAccountID: event.Account,
		Created:            x.createdAt(pi.Created),
	}
	if base, ok := ParseBaseAmount(pi.Metadata[MetaBaseAmount]); ok {
		rec.BaseAmount = base
	}
	if ch := pi.firstCharge(); ch != nil {
		rec.Customer = ch.customer()
	}
	return rec, nil
}

// PaidInvoice extracts a record from invoice.paid
func (x *Extractor) PaidInvoice(ctx context.Context, event *stripego.Event) (*domain.PaymentRecord, error) {
	var inv invoice
	if err := decode(event, &inv); err != nil {
		return nil, err
	}
	subID := inv.subscriptionID()
	if subID == "" {
		x.unattributable(event, "invoice has no subscription")
		return nil, nil
	}
	// Checked before the metadata lookup, which may call Stripe and write back
	if inv.AmountPaid <= 0 {
		x.unattributable(event, "settled amount is not positive")
		return nil, nil
	}

	md := x.invoiceMetadata(ctx, &inv, subID, event.Account)
	attr, reason := readAttribution(md, true)
	if reason != "" {
		x.unattributable(event, reason)
		return nil, nil
	}

	return &domain.PaymentRecord{
		UserID:             attr.userID,
		LinkID:             attr.linkID,
		BaseAmount:         attr.baseAmount,
		Amount:             inv.AmountPaid,
		Currency:           normalizeCurrency(inv.Currency),
		ExternalID:         domain.NormalizeInvoicePaymentID(inv.ID, inv.PaymentIntent.ID),
		ConnectedAccountID: event.Account,
		Created:            x.createdAt(inv.Created),
		SubscriptionID:     subID,
		BillingReason:      inv.BillingReason,
		Customer:           domain.CustomerDetails{Email: inv.CustomerEmail},
	}, nil
}

// invoiceMetadata returns the first metadata source that names a user and a link.
// A fetch error moves on to the next source.
func (x *Extractor) invoiceMetadata(ctx context.Context, inv *invoice, subID, account string) map[string]string {
	if sd := inv.subscriptionDetails(); sd != nil && hasAttribution(sd.Metadata) {
		return sd.Metadata
	}
	if line := inv.firstLine(); line != nil && hasAttribution(line.Metadata) {
		return line.Metadata
	}

	md, err := x.objects.SubscriptionMetadata(ctx, subID, account)
	if err != nil {
		x.logger.Warn("Failed to fetch subscription metadata",
			zap.Error(err),
			zap.String("subscription_id", subID),
		)
	} else if hasAttribution(md) {
		return md
	}

	md = x.paymentIntentMetadata(ctx, inv, account)
	if !hasAttribution(md) {
		return nil
	}

	healed := map[string]string{
		MetaUserID:     md[MetaUserID],
		MetaLinkID:     md[MetaLinkID],
		MetaBaseAmount: md[MetaBaseAmount],
	}
	if err := x.objects.UpdateSubscriptionMetadata(ctx, subID, account, healed); err != nil {
		x.logger.Warn("Failed to write attribution back to subscription",
			zap.Error(err),
			zap.String("subscription_id", subID),
		)
	} else {
		x.logger.Info("Backfilled subscription metadata from invoice payment intent",
			zap.String("subscription_id", subID),
			zap.String("user_id", healed[MetaUserID]),
			zap.String("link_id", healed[MetaLinkID]),
		)
	}
	return md
}

func (x *Extractor) paymentIntentMetadata(ctx context.Context, inv *invoice, account string) map[string]string {
	piID := inv.PaymentIntent.ID
	if piID == "" {
		id, err := x.objects.InvoicePaymentIntentID(ctx, inv.ID, account)
		if err != nil {
			x.logger.Warn("Failed to fetch invoice payment intent",
				zap.Error(err),
				zap.String("invoice_id", inv.ID),
			)
			return nil
		}
		piID = id
	}
	if piID == "" {
		return nil
	}

	md, err := x.objects.PaymentIntentMetadata(ctx, piID, account)
	if err != nil {
		x.logger.Warn("Failed to fetch payment intent metadata",
			zap.Error(err),
			zap.String("payment_intent_id", piID),
		)
		return nil
	}
	return md
}

// EnrichCustomer fills blank customer fields from the checkout session, then the
// payment intent's latest charge. Lookups are best-effort and never fail the caller.
func (x *Extractor) EnrichCustomer(ctx context.Context, rec *domain.PaymentRecord) {
	if rec.Customer.Complete() || !strings.HasPrefix(rec.ExternalID, "pi_") {
		return
	}

	details, found, err := x.customers.CheckoutSessionCustomer(ctx, rec.ExternalID, rec.ConnectedAccountID)
	if err != nil {
		x.logger.Debug("Checkout session customer lookup failed",
			zap.Error(err),
			zap.String("payment_intent_id", rec.ExternalID),
		)
	}
	if found && details != (domain.CustomerDetails{}) {
		rec.Customer = rec.Customer.Merge(details)
		return
	}

	details, err = x.customers.PaymentIntentCustomer(ctx, rec.ExternalID, rec.ConnectedAccountID)
	if err != nil {
		x.logger.Debug("Payment intent customer lookup failed",
			zap.Error(err),
			zap.String("payment_intent_id", rec.ExternalID),
		)
		return
	}
	rec.Customer = rec.Customer.Merge(details)
}

// ParseSubscription decodes a customer.subscription.* event
func ParseSubscription(event *stripego.Event) (*Subscription, error) {
	var sub Subscription
	if err := decode(event, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ParseCheckoutSession decodes a checkout.session.completed event
func ParseCheckoutSession(event *stripego.Event) (*CheckoutSession, error) {
	var s CheckoutSession
	if err := decode(event, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseAccountUpdate decodes an account.updated event
func ParseAccountUpdate(event *stripego.Event) (*AccountUpdate, error) {
	var a AccountUpdate
	if err := decode(event, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
