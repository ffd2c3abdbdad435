package seed

import (
	"context"
	"errors"
	"time"

	organizationdomain "github.com/aware88/fresh-crm/internal/organization/domain"
	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
)

// EnsureDefaults seeds the default organization, the built-in plan catalog
// and the default pipeline stages. Safe to run on every startup.
func EnsureDefaults(db *gorm.DB) error {
	return ensureDefaults(db, 0)
}

// EnsureDefaultsWithOrgID is EnsureDefaults with a pinned default org ID,
// used by standalone deployments whose org ID comes from the environment.
func EnsureDefaultsWithOrgID(db *gorm.DB, orgID int64) error {
	return ensureDefaults(db, snowflake.ID(orgID))
}

func ensureDefaults(db *gorm.DB, pinnedOrgID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureDefaultOrgTx(ctx, tx, node, pinnedOrgID)
		if err != nil {
			return err
		}
		if err := ensurePlansTx(ctx, tx, node); err != nil {
			return err
		}
		return ensurePipelineStagesTx(ctx, tx, node, org.ID)
	})
}

func ensureDefaultOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, pinnedID snowflake.ID) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}
	id := pinnedID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		IsDefault: true,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func defaultPlans() []plandomain.SubscriptionPlan {
	return []plandomain.SubscriptionPlan{
		{
			Slug:              plandomain.TierStarter,
			Name:              "Starter",
			Tier:              plandomain.TierStarter,
			MonthlyPriceCents: 0,
			AnnualPriceCents:  0,
			Features: datatypes.JSONMap{
				"ai_assistant":     true,
				"lead_scoring":     false,
				"email_sync":       false,
				"webhooks":         false,
				"pipeline_metrics": false,
			},
			Limits: datatypes.JSONMap{
				plandomain.LimitAIMessagesPerMonth: int64(50),
				plandomain.LimitContacts:           int64(500),
				plandomain.LimitUsers:              int64(3),
			},
		},
		{
			Slug:              plandomain.TierPro,
			Name:              "Pro",
			Tier:              plandomain.TierPro,
			MonthlyPriceCents: 4900,
			AnnualPriceCents:  49000,
			Features: datatypes.JSONMap{
				"ai_assistant":     true,
				"lead_scoring":     true,
				"email_sync":       true,
				"webhooks":         false,
				"pipeline_metrics": true,
			},
			Limits: datatypes.JSONMap{
				plandomain.LimitAIMessagesPerMonth: int64(1000),
				plandomain.LimitContacts:           int64(10000),
				plandomain.LimitUsers:              int64(10),
			},
		},
		{
			Slug:              plandomain.TierPremium,
			Name:              "Premium",
			Tier:              plandomain.TierPremium,
			MonthlyPriceCents: 14900,
			AnnualPriceCents:  149000,
			Features: datatypes.JSONMap{
				"ai_assistant":     true,
				"lead_scoring":     true,
				"email_sync":       true,
				"webhooks":         true,
				"pipeline_metrics": true,
			},
			Limits: datatypes.JSONMap{
				plandomain.LimitAIMessagesPerMonth: int64(10000),
				plandomain.LimitContacts:           int64(100000),
				plandomain.LimitUsers:              int64(50),
			},
		},
	}
}

func ensurePlansTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	now := time.Now().UTC()
	for _, plan := range defaultPlans() {
		var existing plandomain.SubscriptionPlan
		err := tx.WithContext(ctx).Where("slug = ?", plan.Slug).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		plan.ID = node.Generate()
		plan.Currency = "usd"
		plan.Active = true
		plan.CreatedAt = now
		plan.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
			return err
		}
	}
	return nil
}

func defaultPipelineStages() []pipelinedomain.PipelineStage {
	return []pipelinedomain.PipelineStage{
		{Name: "Lead", Position: 1, DefaultProbability: 10},
		{Name: "Qualified", Position: 2, DefaultProbability: 25},
		{Name: "Proposal", Position: 3, DefaultProbability: 50},
		{Name: "Negotiation", Position: 4, DefaultProbability: 75},
		{Name: "Won", Position: 5, DefaultProbability: 100, IsWon: true},
		{Name: "Lost", Position: 6, DefaultProbability: 0, IsLost: true},
	}
}

func ensurePipelineStagesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&pipelinedomain.PipelineStage{}).
		Where("org_id = ?", orgID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, stage := range defaultPipelineStages() {
		stage.ID = node.Generate()
		stage.OrgID = orgID
		stage.CreatedAt = now
		if err := tx.WithContext(ctx).Create(&stage).Error; err != nil {
			return err
		}
	}
	return nil
}
