// Package domain contains persistence models for outbound webhooks.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// WebhookConfiguration is a tenant endpoint subscribed to event types.
type WebhookConfiguration struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID   `gorm:"not null;index" json:"org_id"`
	URL        string         `gorm:"type:text;not null" json:"url"`
	Secret     string         `gorm:"type:text;not null" json:"-"`
	EventTypes pq.StringArray `gorm:"type:text[];not null;column:event_types" json:"event_types"`
	Active     bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (WebhookConfiguration) TableName() string { return "webhook_configurations" }

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusDelivering = "delivering"
	DeliveryStatusDelivered  = "delivered"
	DeliveryStatusFailed     = "failed"
)

// WebhookDelivery is one attempt series against a configuration.
type WebhookDelivery struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID      `gorm:"not null;index" json:"org_id"`
	ConfigID       snowflake.ID      `gorm:"not null;index" json:"config_id"`
	EventID        string            `gorm:"type:text;not null" json:"event_id"`
	EventType      string            `gorm:"type:text;not null" json:"event_type"`
	Payload        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	Status         string            `gorm:"type:text;not null;default:'pending'" json:"status"`
	AttemptCount   int               `gorm:"not null;default:0" json:"attempt_count"`
	NextAttemptAt  *time.Time        `json:"next_attempt_at"`
	LastError      string            `gorm:"type:text" json:"last_error,omitempty"`
	ResponseStatus *int              `json:"response_status,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

// backoffMinutes is indexed by the attempt count already made.
var backoffMinutes = []int{5, 15, 60, 360, 1440}

// MaxAttempts is the number of sends before a delivery is failed for good.
var MaxAttempts = len(backoffMinutes) + 1

// NextBackoff returns the delay before the next attempt, given the number of
// attempts already made. ok is false once the table is exhausted.
func NextBackoff(attemptCount int) (time.Duration, bool) {
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffMinutes) {
		return 0, false
	}
	return time.Duration(backoffMinutes[idx]) * time.Minute, true
}
