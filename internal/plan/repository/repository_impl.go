package repository

import (
	"context"
	"errors"

	"github.com/aware88/fresh-crm/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, plan *domain.SubscriptionPlan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := db.WithContext(ctx).First(&plan, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repo) FindByStripePriceID(ctx context.Context, db *gorm.DB, priceID string) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := db.WithContext(ctx).
		First(&plan, "stripe_monthly_price_id = ? OR stripe_annual_price_id = ?", priceID, priceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.SubscriptionPlan, error) {
	var plans []domain.SubscriptionPlan
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("monthly_price_cents asc").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *domain.SubscriptionPlan) error {
	if plan == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE subscription_plans
		 SET name = ?, monthly_price_cents = ?, annual_price_cents = ?,
		     stripe_monthly_price_id = ?, stripe_annual_price_id = ?,
		     features = ?, limits = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Name,
		plan.MonthlyPriceCents,
		plan.AnnualPriceCents,
		plan.StripeMonthlyPriceID,
		plan.StripeAnnualPriceID,
		plan.Features,
		plan.Limits,
		plan.Active,
		plan.UpdatedAt,
		plan.ID,
	).Error
}
