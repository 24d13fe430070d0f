package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook event outcomes
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
)

// Recorder receives business events worth counting
type Recorder interface {
	UserCreated()
	AccountVerified()
	PaymentLinkCreated(kind string)
	TransactionRecorded(kind, status, currency string, amount int64)
	TransferResults(successful, failed int)
	WebhookEvent(eventType, outcome string)
	LinksExpired(expired, failed int)
}

// BusinessMetrics is the Prometheus-backed Recorder
type BusinessMetrics struct {
	users            prometheus.Counter
	verifiedAccounts prometheus.Counter
	paymentLinks     *prometheus.CounterVec
	transactions     *prometheus.CounterVec
	amountCents      *prometheus.CounterVec
	transfers        *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	expiredLinks     *prometheus.CounterVec
}

var _ Recorder = (*BusinessMetrics)(nil)

// NewBusinessMetrics registers the business counters with reg
func NewBusinessMetrics(reg prometheus.Registerer) *BusinessMetrics {
	f := promauto.With(reg)
	return &BusinessMetrics{
		users: f.NewCounter(prometheus.CounterOpts{
			Name: "users_total",
			Help: "Users created on first authenticated request",
		}),
		verifiedAccounts: f.NewCounter(prometheus.CounterOpts{
			Name: "verified_accounts_total",
			Help: "Seller accounts that reached VERIFIED",
		}),
		paymentLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_links_total",
			Help: "Checkout links created",
		}, []string{"kind"}),
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Transactions recorded from webhook events",
		}, []string{
			"kind",   // payment, subscription
			"status", // succeeded, failed
		}),
		amountCents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_amount_minor_units_total",
			Help: "Settled amount of succeeded transactions in minor units",
		}, []string{"currency"}),
		transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfers of pending earnings to connected accounts",
		}, []string{"result"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook events received",
		}, []string{"type", "outcome"}),
		expiredLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "expired_links_total",
			Help: "Links handled by the expiry job",
		}, []string{"result"}),
	}
}

func (m *BusinessMetrics) UserCreated() {
	m.users.Inc()
}

func (m *BusinessMetrics) AccountVerified() {
	m.verifiedAccounts.Inc()
}

func (m *BusinessMetrics) PaymentLinkCreated(kind string) {
	m.paymentLinks.WithLabelValues(kind).Inc()
}

// TransactionRecorded counts a newly inserted transaction. Only succeeded
// transactions count toward the settled amount.
func (m *BusinessMetrics) TransactionRecorded(kind, status, currency string, amount int64) {
	m.transactions.WithLabelValues(kind, status).Inc()
	if status == "succeeded" {
		m.amountCents.WithLabelValues(currency).Add(float64(amount))
	}
}

func (m *BusinessMetrics) TransferResults(successful, failed int) {
	if successful > 0 {
		m.transfers.WithLabelValues("success").Add(float64(successful))
	}
	if failed > 0 {
		m.transfers.WithLabelValues("failure").Add(float64(failed))
	}
}

func (m *BusinessMetrics) WebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *BusinessMetrics) LinksExpired(expired, failed int) {
	if expired > 0 {
		m.expiredLinks.WithLabelValues("expired").Add(float64(expired))
	}
	if failed > 0 {
		m.expiredLinks.WithLabelValues("failed").Add(float64(failed))
	}
}

// NopRecorder discards every event
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) UserCreated() {}
func (NopRecorder) AccountVerified() {}
func (NopRecorder) PaymentLinkCreated(string) {}
func (NopRecorder) TransactionRecorded(string, string, string, int64) {}
func (NopRecorder) TransferResults(int, int) {}
func (NopRecorder) WebhookEvent(string, string) {}
func (NopRecorder) LinksExpired(int, int) {}
