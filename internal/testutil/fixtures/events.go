package fixtures

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v81"
)

// Object is a loosely typed Stripe object payload
type Object map[string]interface{}

// Event wraps an object payload in a platform event of the given type
func Event(eventType string, object Object) *stripego.Event {
	return ConnectedEvent(eventType, "", object)
}

// ConnectedEvent wraps an object payload in an event delivered for a connected account
func ConnectedEvent(eventType, account string, object Object) *stripego.Event {
	raw, err := json.Marshal(object)
	if err != nil {
		panic(err)
	}
	return &stripego.Event{
		ID:      "evt_" + uuid.NewString()[:12],
		Type:    stripego.EventType(eventType),
		Account: account,
		Data:    &stripego.EventData{Raw: raw},
	}
}

// Attribution is the metadata a link writes onto processor objects
func Attribution(userID, linkID string, baseAmount int64) map[string]string {
	return map[string]string{
		"user_id":     userID,
		"link_id":     linkID,
		"base_amount": strconv.FormatInt(baseAmount, 10),
	}
}

// PaymentIntent builds a succeeded payment_intent payload
func PaymentIntent(id string, amount int64, currency string, metadata map[string]string) Object {
	return Object{
		"id":              id,
		"object":          "payment_intent",
		"amount":          amount,
		"amount_received": amount,
		"currency":        currency,
		"created":         1709251200, // 2024-03-01T00:00:00Z
		"metadata":        metadata,
	}
}

// Invoice builds a paid invoice payload for a subscription
func Invoice(id, subscriptionID, paymentIntentID string, amountPaid int64, billingReason string, metadata map[string]string) Object {
	obj := Object{
		"id":             id,
		"object":         "invoice",
		"amount_paid":    amountPaid,
		"currency":       "gbp",
		"created":        1709251200,
		"billing_reason": billingReason,
		"customer_email": "payer@example.com",
		"subscription":   subscriptionID,
		"lines":          Object{"data": []Object{}},
	}
	if paymentIntentID != "" {
		obj["payment_intent"] = paymentIntentID
	}
	if metadata != nil {
		obj["parent"] = Object{
			"subscription_details": Object{
				"subscription": subscriptionID,
				"metadata":     metadata,
			},
		}
	}
	return obj
}

// Subscription builds a subscription payload
func Subscription(id, status, latestInvoice string, metadata map[string]string) Object {
	obj := Object{
		"id":       id,
		"object":   "subscription",
		"status":   status,
		"customer": "cus_test",
		"created":  1709251200,
		"metadata": metadata,
	}
	if latestInvoice != "" {
		obj["latest_invoice"] = latestInvoice
	}
	return obj
}

// CheckoutSession builds a completed checkout session payload
func CheckoutSession(id, mode, subscriptionID, paymentLinkID string) Object {
	return Object{
		"id":             id,
		"object":         "checkout.session",
		"mode":           mode,
		"subscription":   subscriptionID,
		"payment_link":   paymentLinkID,
		"created":        1709251200,
		"customer_email": "payer@example.com",
		"customer_details": Object{
			"email": "payer@example.com",
			"name":  "Pat Payer",
		},
	}
}
