package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, setting *OrganizationSetting) error
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*OrganizationSetting, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]OrganizationSetting, error)
	Delete(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (bool, error)
}
