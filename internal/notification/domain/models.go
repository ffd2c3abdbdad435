// Package domain contains persistence models for in-app notifications.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	TypeSubscriptionRenewed = "subscription_renewed"
	TypePaymentFailed       = "payment_failed"
	TypeQuotaLow            = "quota_low"
	TypeLeadHot             = "lead_hot"
	TypeOpportunityWon      = "opportunity_won"
	TypeWebhookFailed       = "webhook_failed"
	TypeEmailReauthRequired = "email_reauth_required"
)

// Notification is a per-org (optionally per-user) inbox entry.
type Notification struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID      `json:"org_id" gorm:"not null;index:ix_notifications_org_read"`
	UserID    *snowflake.ID     `json:"user_id,omitempty"`
	Type      string            `json:"type" gorm:"type:text;not null;column:notification_type"`
	Title     string            `json:"title" gorm:"type:text;not null"`
	Body      string            `json:"body" gorm:"type:text;not null;default:''"`
	Metadata  datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	Read      bool              `json:"read" gorm:"not null;default:false;index:ix_notifications_org_read"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }
