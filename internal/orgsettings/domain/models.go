package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Well-known setting keys. Arbitrary keys are allowed; these are the
// ones the application itself reads.
const (
	KeyNotificationPreferences = "notification_preferences"
	KeyEmailIntegration        = "email_integration"
)

// OrganizationSetting is a per-org JSON blob keyed by name.
type OrganizationSetting struct {
	OrgID     snowflake.ID      `json:"org_id" gorm:"primaryKey"`
	Key       string            `json:"key" gorm:"primaryKey;type:text"`
	Value     datatypes.JSONMap `json:"value" gorm:"type:jsonb;not null;default:'{}'"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null"`
}

func (OrganizationSetting) TableName() string { return "organization_settings" }
