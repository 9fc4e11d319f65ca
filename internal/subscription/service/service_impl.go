package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/platewise/platewise/internal/billing/domain"
	"github.com/platewise/platewise/internal/clock"
	identitydomain "github.com/platewise/platewise/internal/identity/domain"
	"github.com/platewise/platewise/internal/observability/logger"
	obsmetrics "github.com/platewise/platewise/internal/observability/metrics"
	"github.com/platewise/platewise/internal/plan"
	"github.com/platewise/platewise/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Repo    domain.Repository
	Billing billingdomain.Provider
	Users   identitydomain.Repository
	Plans   *plan.Resolver
	Clock   clock.Clock
	Node    *snowflake.Node
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	repo    domain.Repository
	billing billingdomain.Provider
	users   identitydomain.Repository
	plans   *plan.Resolver
	clock   clock.Clock
	node    *snowflake.Node
	metrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		repo:    p.Repo,
		billing: p.Billing,
		users:   p.Users,
		plans:   p.Plans,
		clock:   p.Clock,
		node:    p.Node,
		metrics: p.Metrics,
	}
}

func (s *service) ApplyEvent(ctx context.Context, event *billingdomain.Event) error {
	log := logger.FromContext(ctx)
	now := s.clock.Now()

	inserted, err := s.repo.InsertEvent(ctx, &domain.EventRecord{
		ID:              s.node.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       string(event.Kind),
		Payload:         datatypes.JSON(event.RawPayload),
		CreatedAt:       now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		log.Info("duplicate webhook delivery skipped",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return domain.ErrEventAlreadyProcessed
	}

	var applyErr error
	switch event.Kind {
	case billingdomain.EventCheckoutCompleted:
		applyErr = s.applyCheckout(ctx, event)
	case billingdomain.EventSubscriptionCreated, billingdomain.EventSubscriptionUpdated:
		applyErr = s.applySubscriptionUpdate(ctx, event)
	case billingdomain.EventSubscriptionDeleted:
		applyErr = s.applySubscriptionDeleted(ctx, event)
	default:
		return billingdomain.ErrEventIgnored
	}
	if applyErr != nil {
		return applyErr
	}

	stored, err := s.repo.FindEvent(ctx, event.Provider, event.ProviderEventID)
	if err != nil || stored == nil {
		return err
	}
	return s.repo.MarkEventProcessed(ctx, stored.ID, s.clock.Now())
}

// applyCheckout attributes a completed checkout to an application user and
// writes the resulting subscription state. When the checkout carries no
// subscription identifier the write degrades to a best-effort active record
// flagged low confidence, to be corrected by the next pull sync.
func (s *service) applyCheckout(ctx context.Context, event *billingdomain.Event) error {
	log := logger.FromContext(ctx)
	session := event.Checkout
	now := s.clock.Now()

	userID := s.resolveCheckoutUser(ctx, session)
	if userID == "" {
		log.Warn("checkout could not be attributed to a user",
			zap.String("checkout_session_id", session.ID),
			zap.String("customer_id", session.CustomerID),
		)
		return domain.ErrUserUnresolved
	}

	var record *domain.Record
	if session.SubscriptionID != "" {
		sub, err := s.billing.GetSubscription(ctx, session.SubscriptionID)
		if err != nil {
			log.Warn("subscription fetch failed after checkout, degrading",
				zap.String("subscription_id", session.SubscriptionID),
				zap.Error(err),
			)
		} else {
			record = s.buildRecord(userID, sub, now)
			if record.StripeCustomerID == "" {
				record.StripeCustomerID = session.CustomerID
			}
		}
	}
	if record == nil {
		record = s.degradedCheckoutRecord(userID, session, now)
	}

	eventAt := event.OccurredAt
	record.ProviderEventAt = &eventAt

	return s.writeRecord(ctx, record)
}

func (s *service) applySubscriptionUpdate(ctx context.Context, event *billingdomain.Event) error {
	log := logger.FromContext(ctx)
	sub := event.Subscription
	now := s.clock.Now()

	record := s.buildRecord("", sub, now)
	eventAt := event.OccurredAt
	record.ProviderEventAt = &eventAt

	rows, err := s.repo.UpdateByCustomerID(ctx, record)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Warn("subscription update matched no stored record, dropped",
			zap.String("customer_id", sub.CustomerID),
			zap.String("subscription_id", sub.ID),
		)
		return domain.ErrEventDropped
	}
	return nil
}

func (s *service) applySubscriptionDeleted(ctx context.Context, event *billingdomain.Event) error {
	log := logger.FromContext(ctx)
	sub := event.Subscription
	now := s.clock.Now()

	record := s.buildRecord("", sub, now)
	record.Status = domain.StatusCanceled
	record.IsPremium = false
	if record.CanceledAt == nil {
		record.CanceledAt = &now
	}
	eventAt := event.OccurredAt
	record.ProviderEventAt = &eventAt

	rows, err := s.repo.UpdateByCustomerID(ctx, record)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Warn("subscription deletion matched no stored record, dropped",
			zap.String("customer_id", sub.CustomerID),
			zap.String("subscription_id", sub.ID),
		)
		return domain.ErrEventDropped
	}
	return nil
}

func (s *service) Sync(ctx context.Context, req domain.SyncRequest) (*domain.SyncResult, error) {
	log := logger.FromContext(ctx)

	userID := strings.TrimSpace(req.UserID)
	email := strings.TrimSpace(req.UserEmail)
	if userID == "" && email == "" {
		return nil, domain.ErrMissingIdentifiers
	}

	if userID == "" {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, identitydomain.ErrUserNotFound) {
				return nil, domain.ErrNoBillingCustomer
			}
			return nil, err
		}
		userID = user.ID
	}

	customerID, existing, err := s.resolveCustomerID(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, domain.ErrNoBillingCustomer
	}

	subs, err := s.billing.ListSubscriptionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	if len(subs) == 0 {
		record := &domain.Record{
			UserID:           userID,
			StripeCustomerID: customerID,
			Plan:             plan.PlanNone.String(),
			Status:           domain.StatusCanceled,
			IsPremium:        false,
			ProviderEventAt:  &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if existing != nil && existing.Plan != "" {
			record.Plan = existing.Plan
		}
		if err := s.writeRecord(ctx, record); err != nil {
			return nil, err
		}
		return &domain.SyncResult{
			UserID:          userID,
			CustomerID:      customerID,
			HasSubscription: false,
			Record:          record,
		}, nil
	}

	// Provider list order is most recent first; the head is current truth.
	current := subs[0]
	record := s.buildRecord(userID, current, now)
	if record.StripeCustomerID == "" {
		record.StripeCustomerID = customerID
	}
	record.ProviderEventAt = &now

	if err := s.writeRecord(ctx, record); err != nil {
		return nil, err
	}

	log.Info("subscription reconciled from provider",
		zap.String("user_id", userID),
		zap.String("customer_id", customerID),
		zap.String("status", string(record.Status)),
	)

	return &domain.SyncResult{
		UserID:          userID,
		CustomerID:      customerID,
		HasSubscription: true,
		Record:          record,
	}, nil
}

func (s *service) GetByUserID(ctx context.Context, userID string) (*domain.Record, error) {
	return s.repo.GetByUserID(ctx, strings.TrimSpace(userID))
}

// resolveCheckoutUser tries checkout metadata first, then the client
// reference, then an identity lookup by the checkout email.
func (s *service) resolveCheckoutUser(ctx context.Context, session *billingdomain.CheckoutSession) string {
	if id := strings.TrimSpace(session.Metadata["user_id"]); id != "" {
		return id
	}
	if id := strings.TrimSpace(session.ClientReferenceID); id != "" {
		return id
	}
	if session.CustomerEmail == "" {
		return ""
	}
	user, err := s.users.FindByEmail(ctx, session.CustomerEmail)
	if err != nil {
		return ""
	}
	return user.ID
}

// resolveCustomerID prefers the cached customer id on the stored record,
// falling back to a provider search by email. A missing customer yields an
// empty id; infrastructure failures from either source propagate so the
// caller never mistakes an outage for an absent customer.
func (s *service) resolveCustomerID(ctx context.Context, userID, email string) (string, *domain.Record, error) {
	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return "", nil, err
	}
	if err == nil && existing.StripeCustomerID != "" {
		return existing.StripeCustomerID, existing, nil
	}

	if email == "" {
		return "", existing, nil
	}
	customer, cerr := s.billing.FindCustomerByEmail(ctx, email)
	if cerr != nil {
		if errors.Is(cerr, billingdomain.ErrCustomerNotFound) {
			return "", existing, nil
		}
		return "", nil, cerr
	}
	return customer.ID, existing, nil
}

func (s *service) buildRecord(userID string, sub *billingdomain.Subscription, now time.Time) *domain.Record {
	status, premium := domain.CollapseStatus(sub.Status)
	return &domain.Record{
		UserID:               userID,
		StripeCustomerID:     sub.CustomerID,
		StripeSubscriptionID: sub.ID,
		Plan:                 s.plans.Resolve(sub.PriceID).String(),
		Status:               status,
		IsPremium:            premium,
		CurrentPeriodStart:   epochToTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     epochToTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CanceledAt:           epochToTime(sub.CanceledAt),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// degradedCheckoutRecord writes best-effort active state when the checkout
// carried no subscription identifier.
func (s *service) degradedCheckoutRecord(userID string, session *billingdomain.CheckoutSession, now time.Time) *domain.Record {
	planName := plan.Parse(session.Metadata["planId"])
	if planName == plan.PlanNone {
		planName = plan.PlanMonthly
	}
	return &domain.Record{
		UserID:           userID,
		StripeCustomerID: session.CustomerID,
		Plan:             planName.String(),
		Status:           domain.StatusActive,
		IsPremium:        true,
		LowConfidence:    true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// writeRecord runs the escalating write path. A permission rejection on the
// direct upsert escalates to the privileged procedure, then to a raw
// insert. Only exhaustion of all three tiers surfaces as an error.
func (s *service) writeRecord(ctx context.Context, record *domain.Record) error {
	log := logger.FromContext(ctx)

	res := s.repo.UpsertByUserID(ctx, record)
	switch res.Outcome {
	case domain.WriteOK:
		s.metrics.RecordSubscriptionWrite(ctx, string(res.Tier))
		return nil
	case domain.WriteFailed:
		return res.Err
	}

	fallback := &domain.WriteFallbackError{UpsertErr: res.Err}
	log.Warn("upsert rejected by permissions, escalating",
		zap.String("user_id", record.UserID),
		zap.Error(res.Err),
	)
	s.metrics.RecordWriteFallback(ctx, string(domain.WriteTierProcedure))

	res = s.repo.UpsertPrivileged(ctx, record)
	if res.Outcome == domain.WriteOK {
		s.metrics.RecordSubscriptionWrite(ctx, string(res.Tier))
		return nil
	}
	fallback.ProcedureErr = res.Err
	s.metrics.RecordWriteFallback(ctx, string(domain.WriteTierInsert))

	res = s.repo.InsertRecord(ctx, record)
	if res.Outcome == domain.WriteOK {
		s.metrics.RecordSubscriptionWrite(ctx, string(res.Tier))
		return nil
	}
	fallback.InsertErr = res.Err

	return fallback
}
