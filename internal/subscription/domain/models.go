// Package domain contains persistence models for user subscription state.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status mirrors the billing provider's subscription status vocabulary.
type Status string

const (
	StatusNone       Status = "none"
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusUnpaid     Status = "unpaid"
	StatusIncomplete Status = "incomplete"
)

// CollapseStatus maps a provider status onto the stored status and the
// derived premium flag. Active and trialing both collapse to active; every
// other status is stored as reported and is not premium.
func CollapseStatus(providerStatus string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(providerStatus))
	switch normalized {
	case "active", "trialing":
		return StatusActive, true
	case "":
		return StatusNone, false
	default:
		return Status(normalized), false
	}
}

// Record is the single per-user subscription row. It is mutated only by the
// reconciliation service, never directly by clients.
type Record struct {
	UserID               string     `gorm:"column:user_id;primaryKey" json:"userId"`
	StripeCustomerID     string     `gorm:"column:stripe_customer_id" json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id" json:"stripeSubscriptionId,omitempty"`
	Plan                 string     `gorm:"column:plan" json:"plan"`
	Status               Status     `gorm:"column:status" json:"status"`
	IsPremium            bool       `gorm:"column:is_premium" json:"isPremium"`
	CurrentPeriodStart   *time.Time `gorm:"column:current_period_start" json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end" json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"column:cancel_at_period_end" json:"cancelAtPeriodEnd"`
	CanceledAt           *time.Time `gorm:"column:canceled_at" json:"canceledAt,omitempty"`
	LowConfidence        bool       `gorm:"column:low_confidence" json:"lowConfidence"`
	ProviderEventAt      *time.Time `gorm:"column:provider_event_at" json:"-"`
	CreatedAt            time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "user_subscriptions" }

// EventRecord is the processed-webhook ledger used for delivery idempotency.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"column:provider"`
	ProviderEventID string         `gorm:"column:provider_event_id"`
	EventType       string         `gorm:"column:event_type"`
	Payload         datatypes.JSON `gorm:"column:payload;type:jsonb"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "billing_events" }
