package domain

import (
	"context"
	"time"

	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, record *AIUsageRecord) error
	FindRecordByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, idempotencyKey string) (*AIUsageRecord, error)
	ListRecords(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]AIUsageRecord, error)

	InsertPeriod(ctx context.Context, db *gorm.DB, period *AIUsagePeriod) error
	FindOpenPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*AIUsagePeriod, error)
	AddPeriodUsage(ctx context.Context, db *gorm.DB, periodID snowflake.ID, messages, tokens int64) error
	ClosePeriod(ctx context.Context, db *gorm.DB, periodID snowflake.ID, closedAt time.Time) error

	// ListDuePeriods returns open periods whose window ended at or
	// before the cutoff, oldest first.
	ListDuePeriods(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]AIUsagePeriod, error)

	InsertTopUp(ctx context.Context, db *gorm.DB, topUp *TopUp) error
	UpdateTopUp(ctx context.Context, db *gorm.DB, topUp *TopUp) error
	FindTopUpByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*TopUp, error)
	FindTopUpBySession(ctx context.Context, db *gorm.DB, providerSessionID string) (*TopUp, error)
	ListTopUps(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]TopUp, error)

	// SumActiveTopUpRemaining totals remaining messages across completed
	// top-ups for the org.
	SumActiveTopUpRemaining(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)

	// ListActiveTopUps returns completed top-ups with messages remaining,
	// oldest first, for overflow consumption at rollover.
	ListActiveTopUps(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]TopUp, error)
}
