package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, plan *SubscriptionPlan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SubscriptionPlan, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*SubscriptionPlan, error)
	FindByStripePriceID(ctx context.Context, db *gorm.DB, priceID string) (*SubscriptionPlan, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]SubscriptionPlan, error)
	Update(ctx context.Context, db *gorm.DB, plan *SubscriptionPlan) error
}
