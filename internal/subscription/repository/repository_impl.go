package repository

import (
	"context"
	"errors"

	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.OrganizationSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_subscriptions (
			id, org_id, plan_id, provider, provider_subscription_id, provider_customer_id,
			status, current_period_start, current_period_end, cancel_at_period_end,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.OrgID,
		sub.PlanID,
		sub.Provider,
		sub.ProviderSubscriptionID,
		sub.ProviderCustomerID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.OrganizationSubscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE organization_subscriptions
		 SET plan_id = ?, provider_customer_id = ?, status = ?,
		     current_period_start = ?, current_period_end = ?,
		     cancel_at_period_end = ?, updated_at = ?
		 WHERE id = ?`,
		sub.PlanID,
		sub.ProviderCustomerID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, provider, providerSubscriptionID string) (*subscriptiondomain.OrganizationSubscription, error) {
	var sub subscriptiondomain.OrganizationSubscription
	err := db.WithContext(ctx).
		First(&sub, "provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindCurrentByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.OrganizationSubscription, error) {
	var sub subscriptiondomain.OrganizationSubscription
	err := db.WithContext(ctx).
		Where("org_id = ? AND status IN ?", orgID, []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusTrialing,
			subscriptiondomain.SubscriptionStatusPastDue,
		}).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]subscriptiondomain.OrganizationSubscription, error) {
	var subs []subscriptiondomain.OrganizationSubscription
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
