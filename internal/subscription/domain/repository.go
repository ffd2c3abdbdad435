package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *OrganizationSubscription) error
	Update(ctx context.Context, db *gorm.DB, sub *OrganizationSubscription) error
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, provider, providerSubscriptionID string) (*OrganizationSubscription, error)
	FindCurrentByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*OrganizationSubscription, error)
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]OrganizationSubscription, error)
}
