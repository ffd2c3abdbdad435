// Package domain contains persistence models for lead scoring.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Qualification buckets derived from the overall score.
const (
	QualificationHot  = "hot"
	QualificationWarm = "warm"
	QualificationCold = "cold"
)

// ValidQualification reports whether the bucket name is known.
func ValidQualification(q string) bool {
	switch q {
	case QualificationHot, QualificationWarm, QualificationCold:
		return true
	default:
		return false
	}
}

// LeadScore is the computed score for one contact. One row per contact,
// replaced on every recalculation.
type LeadScore struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID      `json:"org_id" gorm:"not null;uniqueIndex:ux_lead_scores_contact"`
	ContactID     snowflake.ID      `json:"contact_id" gorm:"not null;uniqueIndex:ux_lead_scores_contact"`
	Score         int               `json:"score" gorm:"not null;default:0"`
	Qualification string            `json:"qualification" gorm:"type:text;not null;default:'cold'"`
	Breakdown     datatypes.JSONMap `json:"breakdown" gorm:"type:jsonb;not null;default:'{}'"`
	ComputedAt    time.Time         `json:"computed_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LeadScore) TableName() string { return "lead_scores" }
