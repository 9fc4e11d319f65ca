package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/platewise/platewise/internal/billing/domain"
)

// Decoder verifies and parses Stripe webhook deliveries.
//
// Verification is done against the raw request body. The official SDK types
// are not used here because signature checking must see the exact bytes
// Stripe signed, before any decode step touches them.
type Decoder struct {
	webhookSecret string
}

func NewDecoder(secret string) (*Decoder, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return &Decoder{webhookSecret: secret}, nil
}

func (d *Decoder) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(d.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (d *Decoder) Parse(ctx context.Context, payload []byte) (*domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch domain.EventKind(strings.TrimSpace(event.Type)) {
	case domain.EventCheckoutCompleted:
		return d.parseCheckoutSession(event, payload)
	case domain.EventSubscriptionCreated:
		return d.parseSubscription(event, payload, domain.EventSubscriptionCreated)
	case domain.EventSubscriptionUpdated:
		return d.parseSubscription(event, payload, domain.EventSubscriptionUpdated)
	case domain.EventSubscriptionDeleted:
		return d.parseSubscription(event, payload, domain.EventSubscriptionDeleted)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	CustomerEmail     string            `json:"customer_email"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerDetails   *customerDetails  `json:"customer_details"`
	Metadata          map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart float64           `json:"current_period_start"`
	CurrentPeriodEnd   float64           `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         float64           `json:"canceled_at"`
	Items              subscriptionItems `json:"items"`
	Metadata           map[string]string `json:"metadata"`
}

type subscriptionItems struct {
	Data []subscriptionItem `json:"data"`
}

type subscriptionItem struct {
	Price              subscriptionPrice `json:"price"`
	CurrentPeriodStart float64           `json:"current_period_start"`
	CurrentPeriodEnd   float64           `json:"current_period_end"`
}

type subscriptionPrice struct {
	ID string `json:"id"`
}

func (d *Decoder) parseCheckoutSession(event stripeEvent, payload []byte) (*domain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	email := strings.TrimSpace(session.CustomerEmail)
	if email == "" && session.CustomerDetails != nil {
		email = strings.TrimSpace(session.CustomerDetails.Email)
	}

	return &domain.Event{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Kind:            domain.EventCheckoutCompleted,
		OccurredAt:      eventTime(event.Created),
		Checkout: &domain.CheckoutSession{
			ID:                session.ID,
			CustomerID:        strings.TrimSpace(session.Customer),
			SubscriptionID:    strings.TrimSpace(session.Subscription),
			CustomerEmail:     email,
			ClientReferenceID: strings.TrimSpace(session.ClientReferenceID),
			Metadata:          session.Metadata,
		},
		RawPayload: payload,
	}, nil
}

func (d *Decoder) parseSubscription(event stripeEvent, payload []byte, kind domain.EventKind) (*domain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.Event{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Kind:            kind,
		OccurredAt:      eventTime(event.Created),
		Subscription:    toDomainSubscription(sub),
		RawPayload:      payload,
	}, nil
}

func toDomainSubscription(sub stripeSubscription) *domain.Subscription {
	out := &domain.Subscription{
		ID:                 strings.TrimSpace(sub.ID),
		CustomerID:         strings.TrimSpace(sub.Customer),
		Status:             strings.ToLower(strings.TrimSpace(sub.Status)),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		Metadata:           sub.Metadata,
	}

	// Recent Stripe API versions report billing periods on the item.
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.PriceID = strings.TrimSpace(item.Price.ID)
		if out.CurrentPeriodStart == 0 {
			out.CurrentPeriodStart = item.CurrentPeriodStart
		}
		if out.CurrentPeriodEnd == 0 {
			out.CurrentPeriodEnd = item.CurrentPeriodEnd
		}
	}

	return out
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func eventTime(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}
