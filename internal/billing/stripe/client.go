package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/platewise/platewise/internal/billing/domain"
	stripe "github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client is the pull-side Stripe API used for on-demand reconciliation.
type Client struct{}

func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	stripe.Key = apiKey
	return &Client{}, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}

	return mapSubscription(sub), nil
}

// ListSubscriptionsByCustomer returns the customer's subscriptions in the
// order Stripe reports them, most recently created first.
func (c *Client) ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]*domain.Subscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrCustomerNotFound
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []*domain.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		out = append(out, mapSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		if isNotFound(err) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, err
	}

	return out, nil
}

func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.ErrCustomerNotFound
	}

	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	iter := customer.List(params)
	for iter.Next() {
		cust := iter.Customer()
		return &domain.Customer{
			ID:    cust.ID,
			Email: cust.Email,
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return nil, domain.ErrCustomerNotFound
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidEvent
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInvalidEvent
		}
		return nil, err
	}

	out := &domain.CheckoutSession{
		ID:                session.ID,
		CustomerEmail:     strings.TrimSpace(session.CustomerEmail),
		ClientReferenceID: strings.TrimSpace(session.ClientReferenceID),
		Metadata:          session.Metadata,
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if out.CustomerEmail == "" && session.CustomerDetails != nil {
		out.CustomerEmail = strings.TrimSpace(session.CustomerDetails.Email)
	}

	return out, nil
}

func mapSubscription(sub *stripe.Subscription) *domain.Subscription {
	out := &domain.Subscription{
		ID:                sub.ID,
		Status:            strings.ToLower(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        float64(sub.CanceledAt),
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodStart = float64(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = float64(item.CurrentPeriodEnd)
	}
	return out
}

func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
