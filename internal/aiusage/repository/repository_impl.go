package repository

import (
	"context"
	"errors"
	"time"

	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() aiusagedomain.Repository {
	return &repo{}
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *aiusagedomain.AIUsageRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ai_usage_records (
			id, org_id, feature, message_count, token_count, idempotency_key, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.OrgID,
		record.Feature,
		record.MessageCount,
		record.TokenCount,
		record.IdempotencyKey,
		record.RecordedAt,
	).Error
}

func (r *repo) FindRecordByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, idempotencyKey string) (*aiusagedomain.AIUsageRecord, error) {
	var record aiusagedomain.AIUsageRecord
	err := db.WithContext(ctx).
		First(&record, "org_id = ? AND idempotency_key = ?", orgID, idempotencyKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) ListRecords(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]aiusagedomain.AIUsageRecord, error) {
	stmt := db.WithContext(ctx).
		Model(&aiusagedomain.AIUsageRecord{}).
		Where("org_id = ?", orgID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var records []aiusagedomain.AIUsageRecord
	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) InsertPeriod(ctx context.Context, db *gorm.DB, period *aiusagedomain.AIUsagePeriod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ai_usage_periods (
			id, org_id, period_start, period_end, message_total, token_total,
			status, closed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		period.ID,
		period.OrgID,
		period.PeriodStart,
		period.PeriodEnd,
		period.MessageTotal,
		period.TokenTotal,
		period.Status,
		period.ClosedAt,
		period.CreatedAt,
		period.UpdatedAt,
	).Error
}

func (r *repo) FindOpenPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*aiusagedomain.AIUsagePeriod, error) {
	var period aiusagedomain.AIUsagePeriod
	err := db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, aiusagedomain.PeriodStatusOpen).
		Order("period_start DESC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (r *repo) AddPeriodUsage(ctx context.Context, db *gorm.DB, periodID snowflake.ID, messages, tokens int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ai_usage_periods
		 SET message_total = message_total + ?,
		     token_total = token_total + ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		messages, tokens, periodID,
	).Error
}

func (r *repo) ClosePeriod(ctx context.Context, db *gorm.DB, periodID snowflake.ID, closedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ai_usage_periods
		 SET status = ?, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		aiusagedomain.PeriodStatusClosed,
		closedAt,
		closedAt,
		periodID,
		aiusagedomain.PeriodStatusOpen,
	).Error
}

func (r *repo) ListDuePeriods(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]aiusagedomain.AIUsagePeriod, error) {
	var periods []aiusagedomain.AIUsagePeriod
	err := db.WithContext(ctx).
		Where("status = ? AND period_end <= ?", aiusagedomain.PeriodStatusOpen, cutoff).
		Order("period_end ASC").
		Limit(limit).
		Find(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) InsertTopUp(ctx context.Context, db *gorm.DB, topUp *aiusagedomain.TopUp) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ai_topups (
			id, org_id, message_amount, message_remaining, price_cents, currency,
			provider_session_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		topUp.ID,
		topUp.OrgID,
		topUp.MessageAmount,
		topUp.MessageRemaining,
		topUp.PriceCents,
		topUp.Currency,
		topUp.ProviderSessionID,
		topUp.Status,
		topUp.CreatedAt,
		topUp.UpdatedAt,
	).Error
}

func (r *repo) UpdateTopUp(ctx context.Context, db *gorm.DB, topUp *aiusagedomain.TopUp) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ai_topups
		 SET message_remaining = ?, provider_session_id = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		topUp.MessageRemaining,
		topUp.ProviderSessionID,
		topUp.Status,
		topUp.UpdatedAt,
		topUp.ID,
	).Error
}

func (r *repo) FindTopUpByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*aiusagedomain.TopUp, error) {
	var topUp aiusagedomain.TopUp
	err := db.WithContext(ctx).
		First(&topUp, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topUp, nil
}

func (r *repo) FindTopUpBySession(ctx context.Context, db *gorm.DB, providerSessionID string) (*aiusagedomain.TopUp, error) {
	var topUp aiusagedomain.TopUp
	err := db.WithContext(ctx).
		First(&topUp, "provider_session_id = ?", providerSessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topUp, nil
}

func (r *repo) ListTopUps(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]aiusagedomain.TopUp, error) {
	var topUps []aiusagedomain.TopUp
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&topUps).Error
	if err != nil {
		return nil, err
	}
	return topUps, nil
}

func (r *repo) SumActiveTopUpRemaining(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw(`SELECT COALESCE(SUM(message_remaining), 0) FROM ai_topups
		     WHERE org_id = ? AND status = ?`,
			orgID, aiusagedomain.TopUpStatusCompleted).
		Scan(&total).Error
	return total, err
}

func (r *repo) ListActiveTopUps(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]aiusagedomain.TopUp, error) {
	var topUps []aiusagedomain.TopUp
	err := db.WithContext(ctx).
		Where("org_id = ? AND status = ? AND message_remaining > 0",
			orgID, aiusagedomain.TopUpStatusCompleted).
		Order("created_at ASC").
		Find(&topUps).Error
	if err != nil {
		return nil, err
	}
	return topUps, nil
}
