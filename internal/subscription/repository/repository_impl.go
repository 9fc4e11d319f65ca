package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/platewise/platewise/internal/subscription/domain"
	"github.com/platewise/platewise/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) GetByUserID(ctx context.Context, userID string) (*domain.Record, error) {
	var record domain.Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) GetByCustomerID(ctx context.Context, customerID string) (*domain.Record, error) {
	var record domain.Record
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) UpsertByUserID(ctx context.Context, record *domain.Record) domain.WriteResult {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO user_subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id,
			plan, status, is_premium,
			current_period_start, current_period_end,
			cancel_at_period_end, canceled_at,
			low_confidence, provider_event_at,
			created_at, updated_at
		) VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			is_premium = EXCLUDED.is_premium,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			low_confidence = EXCLUDED.low_confidence,
			provider_event_at = EXCLUDED.provider_event_at,
			updated_at = EXCLUDED.updated_at
		WHERE user_subscriptions.provider_event_at IS NULL
		   OR EXCLUDED.provider_event_at IS NULL
		   OR EXCLUDED.provider_event_at >= user_subscriptions.provider_event_at`,
		record.UserID,
		record.StripeCustomerID,
		record.StripeSubscriptionID,
		record.Plan,
		record.Status,
		record.IsPremium,
		record.CurrentPeriodStart,
		record.CurrentPeriodEnd,
		record.CancelAtPeriodEnd,
		record.CanceledAt,
		record.LowConfidence,
		record.ProviderEventAt,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
	return classifyWrite(domain.WriteTierUpsert, err)
}

func (r *repo) UpsertPrivileged(ctx context.Context, record *domain.Record) domain.WriteResult {
	err := r.db.WithContext(ctx).Exec(
		`SELECT admin_upsert_user_subscription(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.UserID,
		record.StripeCustomerID,
		record.StripeSubscriptionID,
		record.Plan,
		record.Status,
		record.IsPremium,
		record.CurrentPeriodStart,
		record.CurrentPeriodEnd,
		record.CancelAtPeriodEnd,
		record.CanceledAt,
		record.LowConfidence,
		record.ProviderEventAt,
	).Error
	return classifyWrite(domain.WriteTierProcedure, err)
}

func (r *repo) InsertRecord(ctx context.Context, record *domain.Record) domain.WriteResult {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO user_subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id,
			plan, status, is_premium,
			current_period_start, current_period_end,
			cancel_at_period_end, canceled_at,
			low_confidence, provider_event_at,
			created_at, updated_at
		) VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.UserID,
		record.StripeCustomerID,
		record.StripeSubscriptionID,
		record.Plan,
		record.Status,
		record.IsPremium,
		record.CurrentPeriodStart,
		record.CurrentPeriodEnd,
		record.CancelAtPeriodEnd,
		record.CanceledAt,
		record.LowConfidence,
		record.ProviderEventAt,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
	return classifyWrite(domain.WriteTierInsert, err)
}

func (r *repo) UpdateByCustomerID(ctx context.Context, record *domain.Record) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions SET
			stripe_subscription_id = NULLIF(?, ''),
			plan = ?,
			status = ?,
			is_premium = ?,
			current_period_start = ?,
			current_period_end = ?,
			cancel_at_period_end = ?,
			canceled_at = ?,
			low_confidence = ?,
			provider_event_at = ?,
			updated_at = ?
		WHERE stripe_customer_id = ?
		  AND (provider_event_at IS NULL
		    OR ? IS NULL
		    OR ? >= provider_event_at)`,
		record.StripeSubscriptionID,
		record.Plan,
		record.Status,
		record.IsPremium,
		record.CurrentPeriodStart,
		record.CurrentPeriodEnd,
		record.CancelAtPeriodEnd,
		record.CanceledAt,
		record.LowConfidence,
		record.ProviderEventAt,
		record.UpdatedAt,
		record.StripeCustomerID,
		record.ProviderEventAt,
		record.ProviderEventAt,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindEvent(ctx context.Context, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, processed_at, created_at
		 FROM billing_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, event *domain.EventRecord) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (
			id, provider, provider_event_id, event_type, payload, processed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ProcessedAt,
		event.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, id snowflake.ID, processedAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE billing_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

func classifyWrite(tier domain.WriteTier, err error) domain.WriteResult {
	if err == nil {
		return domain.WriteSucceeded(tier)
	}
	if db.IsPermissionDeniedErr(err) {
		return domain.WriteDenied(tier, err)
	}
	return domain.WriteErrored(tier, err)
}
