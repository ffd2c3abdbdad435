package domain

import (
	"context"

	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertStage(ctx context.Context, db *gorm.DB, stage *PipelineStage) error
	UpdateStage(ctx context.Context, db *gorm.DB, stage *PipelineStage) error
	DeleteStage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindStageByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*PipelineStage, error)
	ListStages(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]PipelineStage, error)
	CountOpportunitiesInStage(ctx context.Context, db *gorm.DB, orgID, stageID snowflake.ID) (int64, error)

	InsertOpportunity(ctx context.Context, db *gorm.DB, opp *SalesOpportunity) error
	UpdateOpportunity(ctx context.Context, db *gorm.DB, opp *SalesOpportunity) error
	DeleteOpportunity(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindOpportunityByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*SalesOpportunity, error)
	ListOpportunities(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]SalesOpportunity, error)
	ListOpenOpportunities(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]SalesOpportunity, error)
	CountByStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status OpportunityStatus) (int64, error)

	InsertActivity(ctx context.Context, db *gorm.DB, activity *OpportunityActivity) error
	ListActivities(ctx context.Context, db *gorm.DB, orgID, opportunityID snowflake.ID, limit int) ([]OpportunityActivity, error)
}
