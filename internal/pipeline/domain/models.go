// Package domain contains persistence models for the sales pipeline.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OpportunityStatus string

const (
	OpportunityOpen OpportunityStatus = "open"
	OpportunityWon  OpportunityStatus = "won"
	OpportunityLost OpportunityStatus = "lost"
)

const (
	ActivityCreated      = "created"
	ActivityUpdated      = "updated"
	ActivityStageChanged = "stage_changed"
	ActivityWon          = "won"
	ActivityLost         = "lost"
)

// PipelineStage is one ordered step of an organization's sales funnel.
type PipelineStage struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_pipeline_stages_position"`
	Name               string       `json:"name" gorm:"type:text;not null"`
	Position           int          `json:"position" gorm:"not null;uniqueIndex:ux_pipeline_stages_position"`
	DefaultProbability int          `json:"default_probability" gorm:"not null;default:0"`
	IsWon              bool         `json:"is_won" gorm:"not null;default:false"`
	IsLost             bool         `json:"is_lost" gorm:"not null;default:false"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PipelineStage) TableName() string { return "pipeline_stages" }

// SalesOpportunity is a deal moving through the pipeline.
type SalesOpportunity struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID      `json:"org_id" gorm:"not null;index:ix_sales_opportunities_org_status"`
	ContactID         *snowflake.ID     `json:"contact_id,omitempty" gorm:"index:ix_sales_opportunities_contact"`
	Title             string            `json:"title" gorm:"type:text;not null"`
	ValueCents        int64             `json:"value_cents" gorm:"not null;default:0"`
	Currency          string            `json:"currency" gorm:"type:text;not null;default:'usd'"`
	StageID           snowflake.ID      `json:"stage_id" gorm:"not null"`
	Probability       int               `json:"probability" gorm:"not null;default:0"`
	ExpectedCloseDate *time.Time        `json:"expected_close_date,omitempty" gorm:"type:date"`
	Status            OpportunityStatus `json:"status" gorm:"type:text;not null;default:'open';index:ix_sales_opportunities_org_status"`
	ClosedAt          *time.Time        `json:"closed_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SalesOpportunity) TableName() string { return "sales_opportunities" }

// WeightedValueCents is the opportunity value discounted by its win
// probability. Closed deals keep their final probability.
func (o SalesOpportunity) WeightedValueCents() int64 {
	return o.ValueCents * int64(o.Probability) / 100
}

// OpportunityActivity is an append-only record of a change to an opportunity.
type OpportunityActivity struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID      `json:"org_id" gorm:"not null"`
	OpportunityID snowflake.ID      `json:"opportunity_id" gorm:"not null;index:ix_opportunity_activities_opportunity"`
	ActivityType  string            `json:"activity_type" gorm:"type:text;not null"`
	Detail        datatypes.JSONMap `json:"detail" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OpportunityActivity) TableName() string { return "opportunity_activities" }
