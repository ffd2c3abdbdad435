package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	CreateConfig(ctx context.Context, db *gorm.DB, config *WebhookConfiguration) error
	FindConfig(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*WebhookConfiguration, error)
	ListConfigs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]WebhookConfiguration, error)
	ListActiveConfigsForEvent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, eventType string) ([]WebhookConfiguration, error)
	UpdateConfig(ctx context.Context, db *gorm.DB, config *WebhookConfiguration) error
	DeleteConfig(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error

	CreateDelivery(ctx context.Context, db *gorm.DB, delivery *WebhookDelivery) error
	FindDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WebhookDelivery, error)
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]WebhookDelivery, error)
	UpdateDelivery(ctx context.Context, db *gorm.DB, delivery *WebhookDelivery) error
	ListDeliveries(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListDeliveriesRequest) ([]WebhookDelivery, error)
}
