package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AI features that consume message quota.
const (
	FeatureChat         = "chat"
	FeatureDraft        = "draft"
	FeatureEnrich       = "enrich"
	FeatureScoreExplain = "score_explain"
)

func ValidFeature(feature string) bool {
	switch feature {
	case FeatureChat, FeatureDraft, FeatureEnrich, FeatureScoreExplain:
		return true
	default:
		return false
	}
}

// AIUsageRecord is one metered AI interaction. The partial unique index on
// (org_id, idempotency_key) deduplicates client retries.
type AIUsageRecord struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID `json:"org_id" gorm:"not null;index"`
	Feature        string       `json:"feature" gorm:"type:text;not null"`
	MessageCount   int64        `json:"message_count" gorm:"not null;default:0"`
	TokenCount     int64        `json:"token_count" gorm:"not null;default:0"`
	IdempotencyKey *string      `json:"idempotency_key,omitempty" gorm:"type:text"`
	RecordedAt     time.Time    `json:"recorded_at" gorm:"not null"`
}

func (AIUsageRecord) TableName() string { return "ai_usage_records" }

type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "open"
	PeriodStatusClosed PeriodStatus = "closed"
)

// AIUsagePeriod accumulates usage totals for one billing window. One open
// period per org at a time; rollover closes it at the window end.
type AIUsagePeriod struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID `json:"org_id" gorm:"not null;index"`
	PeriodStart  time.Time    `json:"period_start" gorm:"not null"`
	PeriodEnd    time.Time    `json:"period_end" gorm:"not null"`
	MessageTotal int64        `json:"message_total" gorm:"not null;default:0"`
	TokenTotal   int64        `json:"token_total" gorm:"not null;default:0"`
	Status       PeriodStatus `json:"status" gorm:"type:text;not null;default:'open'"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (AIUsagePeriod) TableName() string { return "ai_usage_periods" }

type TopUpStatus string

const (
	TopUpStatusPending   TopUpStatus = "pending"
	TopUpStatusCompleted TopUpStatus = "completed"
	TopUpStatusConsumed  TopUpStatus = "consumed"
	TopUpStatusCanceled  TopUpStatus = "canceled"
)

// TopUp is a purchased block of AI messages. Remaining counts toward quota
// only while the top-up is completed; rollover burns remaining messages
// against period overflow, oldest first.
type TopUp struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID `json:"org_id" gorm:"not null;index"`
	MessageAmount     int64        `json:"message_amount" gorm:"not null"`
	MessageRemaining  int64        `json:"message_remaining" gorm:"not null"`
	PriceCents        int64        `json:"price_cents" gorm:"not null;default:0"`
	Currency          string       `json:"currency" gorm:"type:text;not null;default:'usd'"`
	ProviderSessionID *string      `json:"provider_session_id,omitempty" gorm:"type:text"`
	Status            TopUpStatus  `json:"status" gorm:"type:text;not null;default:'pending'"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (TopUp) TableName() string { return "ai_topups" }
