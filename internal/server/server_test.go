package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/platewise/platewise/internal/billing/domain"
	subscriptiondomain "github.com/platewise/platewise/internal/subscription/domain"
)

type fakeDecoder struct {
	verifyErr error
	parseErr  error
	event     *billingdomain.Event
}

func (f *fakeDecoder) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	_ = ctx
	_ = payload
	_ = headers
	return f.verifyErr
}

func (f *fakeDecoder) Parse(ctx context.Context, payload []byte) (*billingdomain.Event, error) {
	_ = ctx
	_ = payload
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

type fakeSubscriptionService struct {
	applyCalls int
	applyErr   error
	lastEvent  *billingdomain.Event

	syncCalls  int
	syncErr    error
	syncResult *subscriptiondomain.SyncResult
	lastSync   subscriptiondomain.SyncRequest

	record *subscriptiondomain.Record
	getErr error
}

func (f *fakeSubscriptionService) ApplyEvent(ctx context.Context, event *billingdomain.Event) error {
	_ = ctx
	f.applyCalls++
	f.lastEvent = event
	return f.applyErr
}

func (f *fakeSubscriptionService) Sync(ctx context.Context, req subscriptiondomain.SyncRequest) (*subscriptiondomain.SyncResult, error) {
	_ = ctx
	f.syncCalls++
	f.lastSync = req
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.syncResult, nil
}

func (f *fakeSubscriptionService) GetByUserID(ctx context.Context, userID string) (*subscriptiondomain.Record, error) {
	_ = ctx
	_ = userID
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.record, nil
}

func newTestRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(ErrorHandlingMiddleware())
	srv.engine = router
	srv.registerWebhookRoutes()
	srv.registerAPIRoutes()
	return router
}

func sampleEvent() *billingdomain.Event {
	return &billingdomain.Event{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		Kind:            billingdomain.EventSubscriptionUpdated,
		OccurredAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Subscription: &billingdomain.Subscription{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     "active",
		},
	}
}

func postWebhook(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeSubscriptionService{}
	srv := &Server{
		webhookDecoder:  &fakeDecoder{verifyErr: billingdomain.ErrInvalidSignature},
		subscriptionSvc: svc,
	}
	router := newTestRouter(srv)

	resp := postWebhook(router, `{}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if svc.applyCalls != 0 {
		t.Fatal("expected event not to reach the service on a bad signature")
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Type != "invalid_signature" {
		t.Fatalf("expected invalid_signature error type, got %q", body.Error.Type)
	}
}

func TestWebhookAcksAppliedEvent(t *testing.T) {
	svc := &fakeSubscriptionService{}
	srv := &Server{
		webhookDecoder:  &fakeDecoder{event: sampleEvent()},
		subscriptionSvc: svc,
	}
	router := newTestRouter(srv)

	resp := postWebhook(router, `{"type":"customer.subscription.updated"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.applyCalls != 1 {
		t.Fatalf("expected one ApplyEvent call, got %d", svc.applyCalls)
	}

	var body map[string]bool
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body["received"] {
		t.Fatal("expected received:true acknowledgment")
	}
}

func TestWebhookAcksIgnoredEventType(t *testing.T) {
	svc := &fakeSubscriptionService{}
	srv := &Server{
		webhookDecoder:  &fakeDecoder{parseErr: billingdomain.ErrEventIgnored},
		subscriptionSvc: svc,
	}
	router := newTestRouter(srv)

	resp := postWebhook(router, `{"type":"invoice.paid"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.applyCalls != 0 {
		t.Fatal("expected ignored event not to reach the service")
	}
}

func TestWebhookAcksDespiteProcessingFailure(t *testing.T) {
	for name, applyErr := range map[string]error{
		"duplicate":  subscriptiondomain.ErrEventAlreadyProcessed,
		"dropped":    subscriptiondomain.ErrEventDropped,
		"unresolved": subscriptiondomain.ErrUserUnresolved,
		"internal":   errors.New("db unavailable"),
	} {
		t.Run(name, func(t *testing.T) {
			svc := &fakeSubscriptionService{applyErr: applyErr}
			srv := &Server{
				webhookDecoder:  &fakeDecoder{event: sampleEvent()},
				subscriptionSvc: svc,
			}
			router := newTestRouter(srv)

			resp := postWebhook(router, `{"type":"customer.subscription.updated"}`)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", resp.Code)
			}
		})
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	srv := &Server{
		webhookDecoder:  &fakeDecoder{},
		subscriptionSvc: &fakeSubscriptionService{},
	}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestSyncMissingIdentifiersReturns400(t *testing.T) {
	svc := &fakeSubscriptionService{syncErr: subscriptiondomain.ErrMissingIdentifiers}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/sync", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Type != "validation_error" {
		t.Fatalf("expected validation_error, got %q", body.Error.Type)
	}
}

func TestSyncNoCustomerReturns404Envelope(t *testing.T) {
	svc := &fakeSubscriptionService{syncErr: subscriptiondomain.ErrNoBillingCustomer}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/sync", bytes.NewBufferString(`{"userEmail":"a@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	var body struct {
		Message         string `json:"message"`
		HasSubscription bool   `json:"hasSubscription"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Message == "" {
		t.Fatal("expected a message in the 404 body")
	}
	if body.HasSubscription {
		t.Fatal("expected hasSubscription:false")
	}
}

func TestSyncWriteExhaustionReturns500WithDetails(t *testing.T) {
	svc := &fakeSubscriptionService{syncErr: &subscriptiondomain.WriteFallbackError{
		UpsertErr:    errors.New("permission denied for table user_subscriptions"),
		ProcedureErr: errors.New("function admin_upsert_user_subscription does not exist"),
		InsertErr:    errors.New("permission denied for table user_subscriptions"),
	}}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/sync", bytes.NewBufferString(`{"userId":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Type != "write_failed" {
		t.Fatalf("expected write_failed, got %q", body.Error.Type)
	}
	for _, tier := range []string{"upsert", "procedure", "insert"} {
		if body.Error.Details[tier] == "" {
			t.Fatalf("expected %s tier error in details, got %v", tier, body.Error.Details)
		}
	}
}

func TestSyncSuccessEnvelope(t *testing.T) {
	periodEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	svc := &fakeSubscriptionService{syncResult: &subscriptiondomain.SyncResult{
		UserID:          "u1",
		CustomerID:      "cus_1",
		HasSubscription: true,
		Record: &subscriptiondomain.Record{
			UserID:               "u1",
			StripeCustomerID:     "cus_1",
			StripeSubscriptionID: "sub_1",
			Plan:                 "monthly",
			Status:               "active",
			IsPremium:            true,
			CurrentPeriodEnd:     &periodEnd,
		},
	}}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/sync", bytes.NewBufferString(`{"userId":"u1","userEmail":"a@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.lastSync.UserID != "u1" || svc.lastSync.UserEmail != "a@x.com" {
		t.Fatalf("unexpected sync request forwarded: %+v", svc.lastSync)
	}

	var body struct {
		Success         bool                       `json:"success"`
		CustomerID      string                     `json:"customerId"`
		HasSubscription bool                       `json:"hasSubscription"`
		Subscription    *subscriptiondomain.Record `json:"subscription"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success:true")
	}
	if body.CustomerID != "cus_1" {
		t.Fatalf("expected customerId cus_1, got %q", body.CustomerID)
	}
	if !body.HasSubscription {
		t.Fatal("expected hasSubscription:true")
	}
	if body.Subscription == nil || body.Subscription.Plan != "monthly" {
		t.Fatalf("unexpected subscription in response: %+v", body.Subscription)
	}
}

func TestSyncMalformedBodyReturns400(t *testing.T) {
	svc := &fakeSubscriptionService{}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/sync", bytes.NewBufferString(`{"userId":`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if svc.syncCalls != 0 {
		t.Fatal("expected malformed body not to reach the service")
	}
}

func TestGetSubscriptionReturnsRecord(t *testing.T) {
	svc := &fakeSubscriptionService{record: &subscriptiondomain.Record{
		UserID: "u1",
		Plan:   "annual",
		Status: "active",
	}}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions/u1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var body struct {
		Subscription *subscriptiondomain.Record `json:"subscription"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Subscription == nil || body.Subscription.Plan != "annual" {
		t.Fatalf("unexpected subscription: %+v", body.Subscription)
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	svc := &fakeSubscriptionService{getErr: subscriptiondomain.ErrRecordNotFound}
	srv := &Server{subscriptionSvc: svc}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions/missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}
