package repository

import (
	"context"
	"errors"

	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() leaddomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, score *leaddomain.LeadScore) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO lead_scores (
			id, org_id, contact_id, score, qualification, breakdown,
			computed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, contact_id) DO UPDATE SET
			score = EXCLUDED.score,
			qualification = EXCLUDED.qualification,
			breakdown = EXCLUDED.breakdown,
			computed_at = EXCLUDED.computed_at,
			updated_at = EXCLUDED.updated_at`,
		score.ID,
		score.OrgID,
		score.ContactID,
		score.Score,
		score.Qualification,
		score.Breakdown,
		score.ComputedAt,
		score.CreatedAt,
		score.UpdatedAt,
	).Error
}

func (r *repo) FindByContact(ctx context.Context, db *gorm.DB, orgID, contactID snowflake.ID) (*leaddomain.LeadScore, error) {
	var score leaddomain.LeadScore
	err := db.WithContext(ctx).
		First(&score, "org_id = ? AND contact_id = ?", orgID, contactID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &score, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]leaddomain.LeadScore, error) {
	stmt := db.WithContext(ctx).
		Model(&leaddomain.LeadScore{}).
		Where("org_id = ?", orgID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var scores []leaddomain.LeadScore
	if err := stmt.Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}

func (r *repo) OpenOpportunityStats(ctx context.Context, db *gorm.DB, orgID, contactID snowflake.ID) (bool, int64, error) {
	var row struct {
		OpenCount int64
		MaxValue  *int64
	}
	err := db.WithContext(ctx).
		Raw(`SELECT COUNT(*) AS open_count, MAX(value_cents) AS max_value
		     FROM sales_opportunities
		     WHERE org_id = ? AND contact_id = ? AND status = 'open'`,
			orgID, contactID).
		Scan(&row).Error
	if err != nil {
		return false, 0, err
	}
	maxValue := int64(0)
	if row.MaxValue != nil {
		maxValue = *row.MaxValue
	}
	return row.OpenCount > 0, maxValue, nil
}
