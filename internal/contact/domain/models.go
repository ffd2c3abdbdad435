// Package domain contains persistence models for CRM contacts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Contact is a person tracked by the CRM. Interaction counters feed the
// lead scoring engagement category.
type Contact struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID      `json:"org_id" gorm:"not null;index:ix_contacts_org"`
	FirstName         string            `json:"first_name" gorm:"type:text;not null;default:''"`
	LastName          string            `json:"last_name" gorm:"type:text;not null;default:''"`
	Email             *string           `json:"email,omitempty" gorm:"type:text"`
	Phone             *string           `json:"phone,omitempty" gorm:"type:text"`
	Company           *string           `json:"company,omitempty" gorm:"type:text"`
	Position          *string           `json:"position,omitempty" gorm:"type:text"`
	InteractionCount  int64             `json:"interaction_count" gorm:"not null;default:0"`
	LastInteractionAt *time.Time        `json:"last_interaction_at,omitempty"`
	Metadata          datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contact) TableName() string { return "contacts" }

// DisplayName joins the name parts, falling back to the email address.
func (c Contact) DisplayName() string {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name == "" && c.Email != nil {
		name = *c.Email
	}
	return name
}
