package domain

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")

	ErrCustomerNotFound     = errors.New("customer_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)

// EventKind is the provider event type for subscription lifecycle events.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout.session.completed"
	EventSubscriptionCreated EventKind = "customer.subscription.created"
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
)

// Event is a verified, parsed provider webhook event. Exactly one of
// Checkout or Subscription is populated depending on Kind.
type Event struct {
	Provider        string
	ProviderEventID string
	Kind            EventKind
	OccurredAt      time.Time
	Checkout        *CheckoutSession
	Subscription    *Subscription
	RawPayload      []byte
}

// CheckoutSession carries the fields needed to attribute a completed
// checkout to an application user.
type CheckoutSession struct {
	ID                string
	CustomerID        string
	SubscriptionID    string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
}

// Subscription mirrors the provider subscription object. Period fields are
// raw provider epochs and may be zero, negative, or in milliseconds; the
// reconciler normalizes them before persisting.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart float64
	CurrentPeriodEnd   float64
	CancelAtPeriodEnd  bool
	CanceledAt         float64
	Metadata           map[string]string
}

// Customer is a billing-provider customer.
type Customer struct {
	ID    string
	Email string
}

// WebhookDecoder verifies and parses raw webhook deliveries.
type WebhookDecoder interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// Provider is the pull-side billing API used for on-demand reconciliation.
type Provider interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]*Subscription, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}
