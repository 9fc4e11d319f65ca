package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrRecordNotFound = errors.New("subscription_record_not_found")

type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*Record, error)
	GetByCustomerID(ctx context.Context, customerID string) (*Record, error)

	// UpsertByUserID is the first write tier: insert-or-replace keyed on
	// user_id, guarded so an older provider event never overwrites newer
	// stored state.
	UpsertByUserID(ctx context.Context, record *Record) WriteResult

	// UpsertPrivileged is the second write tier: a server-side procedure
	// running with elevated privileges, for when row-level security rejects
	// the direct upsert.
	UpsertPrivileged(ctx context.Context, record *Record) WriteResult

	// InsertRecord is the last write tier: a raw insert with no conflict
	// handling.
	InsertRecord(ctx context.Context, record *Record) WriteResult

	// UpdateByCustomerID applies a partial field update matched on
	// stripe_customer_id. It never inserts; the returned count is zero when
	// no record matched.
	UpdateByCustomerID(ctx context.Context, record *Record) (int64, error)

	FindEvent(ctx context.Context, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, id snowflake.ID, processedAt time.Time) error
}
