package repository

import (
	"context"
	"errors"

	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pipelinedomain.Repository {
	return &repo{}
}

func (r *repo) InsertStage(ctx context.Context, db *gorm.DB, stage *pipelinedomain.PipelineStage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pipeline_stages (
			id, org_id, name, position, default_probability, is_won, is_lost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stage.ID,
		stage.OrgID,
		stage.Name,
		stage.Position,
		stage.DefaultProbability,
		stage.IsWon,
		stage.IsLost,
		stage.CreatedAt,
	).Error
}

func (r *repo) UpdateStage(ctx context.Context, db *gorm.DB, stage *pipelinedomain.PipelineStage) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pipeline_stages
		 SET name = ?, position = ?, default_probability = ?
		 WHERE org_id = ? AND id = ?`,
		stage.Name,
		stage.Position,
		stage.DefaultProbability,
		stage.OrgID,
		stage.ID,
	).Error
}

func (r *repo) DeleteStage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM pipeline_stages WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Error
}

func (r *repo) FindStageByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*pipelinedomain.PipelineStage, error) {
	var stage pipelinedomain.PipelineStage
	err := db.WithContext(ctx).
		First(&stage, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

func (r *repo) ListStages(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]pipelinedomain.PipelineStage, error) {
	var stages []pipelinedomain.PipelineStage
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("position asc").
		Find(&stages).Error
	if err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *repo) CountOpportunitiesInStage(ctx context.Context, db *gorm.DB, orgID, stageID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&pipelinedomain.SalesOpportunity{}).
		Where("org_id = ? AND stage_id = ?", orgID, stageID).
		Count(&count).Error
	return count, err
}

func (r *repo) InsertOpportunity(ctx context.Context, db *gorm.DB, opp *pipelinedomain.SalesOpportunity) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sales_opportunities (
			id, org_id, contact_id, title, value_cents, currency, stage_id,
			probability, expected_close_date, status, closed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		opp.ID,
		opp.OrgID,
		opp.ContactID,
		opp.Title,
		opp.ValueCents,
		opp.Currency,
		opp.StageID,
		opp.Probability,
		opp.ExpectedCloseDate,
		opp.Status,
		opp.ClosedAt,
		opp.CreatedAt,
		opp.UpdatedAt,
	).Error
}

func (r *repo) UpdateOpportunity(ctx context.Context, db *gorm.DB, opp *pipelinedomain.SalesOpportunity) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sales_opportunities
		 SET title = ?, value_cents = ?, currency = ?, stage_id = ?,
		     probability = ?, expected_close_date = ?, status = ?, closed_at = ?,
		     updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		opp.Title,
		opp.ValueCents,
		opp.Currency,
		opp.StageID,
		opp.Probability,
		opp.ExpectedCloseDate,
		opp.Status,
		opp.ClosedAt,
		opp.UpdatedAt,
		opp.OrgID,
		opp.ID,
	).Error
}

func (r *repo) DeleteOpportunity(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM opportunity_activities WHERE org_id = ? AND opportunity_id = ?`,
			orgID, id,
		).Error; err != nil {
			return err
		}
		return tx.Exec(
			`DELETE FROM sales_opportunities WHERE org_id = ? AND id = ?`,
			orgID, id,
		).Error
	})
}

func (r *repo) FindOpportunityByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*pipelinedomain.SalesOpportunity, error) {
	var opp pipelinedomain.SalesOpportunity
	err := db.WithContext(ctx).
		First(&opp, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &opp, nil
}

func (r *repo) ListOpportunities(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]pipelinedomain.SalesOpportunity, error) {
	stmt := db.WithContext(ctx).
		Model(&pipelinedomain.SalesOpportunity{}).
		Where("org_id = ?", orgID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var opps []pipelinedomain.SalesOpportunity
	if err := stmt.Find(&opps).Error; err != nil {
		return nil, err
	}
	return opps, nil
}

func (r *repo) ListOpenOpportunities(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]pipelinedomain.SalesOpportunity, error) {
	var opps []pipelinedomain.SalesOpportunity
	err := db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, pipelinedomain.OpportunityOpen).
		Find(&opps).Error
	if err != nil {
		return nil, err
	}
	return opps, nil
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status pipelinedomain.OpportunityStatus) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&pipelinedomain.SalesOpportunity{}).
		Where("org_id = ? AND status = ?", orgID, status).
		Count(&count).Error
	return count, err
}

func (r *repo) InsertActivity(ctx context.Context, db *gorm.DB, activity *pipelinedomain.OpportunityActivity) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO opportunity_activities (
			id, org_id, opportunity_id, activity_type, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		activity.ID,
		activity.OrgID,
		activity.OpportunityID,
		activity.ActivityType,
		activity.Detail,
		activity.CreatedAt,
	).Error
}

func (r *repo) ListActivities(ctx context.Context, db *gorm.DB, orgID, opportunityID snowflake.ID, limit int) ([]pipelinedomain.OpportunityActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	var activities []pipelinedomain.OpportunityActivity
	err := db.WithContext(ctx).
		Where("org_id = ? AND opportunity_id = ?", orgID, opportunityID).
		Order("created_at desc").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}
