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
	"testing"
	"time"

	"github.com/platewise/platewise/internal/billing/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"customer.subscription.updated","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildStripeSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	decoder := &Decoder{webhookSecret: secret}
	if err := decoder.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := decoder.Verify(context.Background(), payload, reqHeader); err == nil {
		t.Fatalf("expected invalid signature error")
	}

	reqHeader.Del("Stripe-Signature")
	if err := decoder.Verify(context.Background(), payload, reqHeader); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to fail verification, got %v", err)
	}
}

func TestParseSubscriptionEvent(t *testing.T) {
	created := time.Now().UTC().Unix()
	periodEnd := created + 30*24*3600

	event := map[string]any{
		"id":      "evt_sub",
		"type":    "customer.subscription.updated",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":                   "sub_1",
				"customer":             "cus_1",
				"status":               "trialing",
				"cancel_at_period_end": true,
				"current_period_start": created,
				"current_period_end":   periodEnd,
				"items": map[string]any{
					"data": []map[string]any{{
						"price": map[string]any{"id": "price_monthly_001"},
					}},
				},
			},
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	decoder := &Decoder{webhookSecret: "whsec_test"}
	parsed, err := decoder.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if parsed.Kind != domain.EventSubscriptionUpdated {
		t.Fatalf("expected kind %s, got %s", domain.EventSubscriptionUpdated, parsed.Kind)
	}
	if parsed.Subscription == nil {
		t.Fatalf("expected subscription payload")
	}
	if parsed.Subscription.CustomerID != "cus_1" {
		t.Fatalf("expected customer cus_1, got %s", parsed.Subscription.CustomerID)
	}
	if parsed.Subscription.Status != "trialing" {
		t.Fatalf("expected status trialing, got %s", parsed.Subscription.Status)
	}
	if parsed.Subscription.PriceID != "price_monthly_001" {
		t.Fatalf("expected price id, got %s", parsed.Subscription.PriceID)
	}
	if !parsed.Subscription.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end")
	}
	if parsed.Subscription.CurrentPeriodEnd != float64(periodEnd) {
		t.Fatalf("expected period end %d, got %f", periodEnd, parsed.Subscription.CurrentPeriodEnd)
	}
}

func TestParseSubscriptionPeriodOnItems(t *testing.T) {
	created := time.Now().UTC().Unix()

	event := map[string]any{
		"id":      "evt_sub_items",
		"type":    "customer.subscription.created",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":       "sub_2",
				"customer": "cus_2",
				"status":   "active",
				"items": map[string]any{
					"data": []map[string]any{{
						"price":                map[string]any{"id": "price_annual_001"},
						"current_period_start": created,
						"current_period_end":   created + 365*24*3600,
					}},
				},
			},
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	decoder := &Decoder{webhookSecret: "whsec_test"}
	parsed, err := decoder.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if parsed.Subscription.CurrentPeriodStart != float64(created) {
		t.Fatalf("expected item-level period start to be used")
	}
}

func TestParseCheckoutEvent(t *testing.T) {
	event := map[string]any{
		"id":      "evt_checkout",
		"type":    "checkout.session.completed",
		"created": time.Now().UTC().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":               "cs_1",
				"customer":         "cus_9",
				"subscription":     "sub_9",
				"customer_details": map[string]any{"email": "u1@example.com"},
				"metadata":         map[string]any{"user_id": "u1"},
			},
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	decoder := &Decoder{webhookSecret: "whsec_test"}
	parsed, err := decoder.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if parsed.Kind != domain.EventCheckoutCompleted {
		t.Fatalf("expected checkout kind, got %s", parsed.Kind)
	}
	if parsed.Checkout == nil {
		t.Fatalf("expected checkout payload")
	}
	if parsed.Checkout.CustomerEmail != "u1@example.com" {
		t.Fatalf("expected customer_details email fallback, got %s", parsed.Checkout.CustomerEmail)
	}
	if parsed.Checkout.Metadata["user_id"] != "u1" {
		t.Fatalf("expected metadata user_id")
	}
}

func TestParseIgnoredEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_x","type":"invoice.paid","data":{"object":{}}}`)

	decoder := &Decoder{webhookSecret: "whsec_test"}
	if _, err := decoder.Parse(context.Background(), payload); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected event to be ignored, got %v", err)
	}
}

func TestParseInvalidPayload(t *testing.T) {
	decoder := &Decoder{webhookSecret: "whsec_test"}

	if _, err := decoder.Parse(context.Background(), []byte("not json")); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if _, err := decoder.Parse(context.Background(), []byte(`{"type":"checkout.session.completed"}`)); !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event for missing id, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
