package domain

import (
	"context"
	"errors"

	billingdomain "github.com/platewise/platewise/internal/billing/domain"
)

var (
	// ErrMissingIdentifiers is returned when a sync request carries neither
	// a user id nor an email.
	ErrMissingIdentifiers = errors.New("missing_identifiers")

	// ErrNoBillingCustomer is returned when no billing customer can be
	// resolved for the requested user.
	ErrNoBillingCustomer = errors.New("no_billing_customer")

	// ErrEventAlreadyProcessed signals a duplicate webhook delivery.
	ErrEventAlreadyProcessed = errors.New("event_already_processed")

	// ErrEventDropped signals an event that matched no stored record and
	// was discarded without escalation.
	ErrEventDropped = errors.New("event_dropped")

	// ErrUserUnresolved signals a checkout that could not be attributed to
	// any application user.
	ErrUserUnresolved = errors.New("user_unresolved")
)

type SyncRequest struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
}

type SyncResult struct {
	UserID          string  `json:"userId"`
	CustomerID      string  `json:"customerId,omitempty"`
	HasSubscription bool    `json:"hasSubscription"`
	Record          *Record `json:"subscription,omitempty"`
}

type Service interface {
	// ApplyEvent reconciles one verified webhook event into the store.
	ApplyEvent(ctx context.Context, event *billingdomain.Event) error

	// Sync pulls current truth from the billing provider and reconciles it,
	// used as a repair path when push delivery may have been missed.
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)

	GetByUserID(ctx context.Context, userID string) (*Record, error)
}
