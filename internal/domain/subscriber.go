package domain

import "time"

// SubscriberStatus tracks whether a subscription is still billing
type SubscriberStatus string

const (
	SubscriberStatusActive   SubscriberStatus = "active"
	SubscriberStatusCanceled SubscriberStatus = "canceled"
)

// Subscriber is one customer subscription to a subscription link
type Subscriber struct {
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	SubscriptionID string           `json:"subscription_id"`
	UserID         string           `json:"user_id"`
	LinkID         string           `json:"link_id"`
	CustomerEmail  string           `json:"customer_email"`
	Status         SubscriberStatus `json:"status"`
}

// IsCanceled returns true if the subscription no longer bills
func (s *Subscriber) IsCanceled() bool {
	return s.Status == SubscriberStatusCanceled
}
