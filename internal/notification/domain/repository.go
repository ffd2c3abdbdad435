package domain

import (
	"context"

	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Notification, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	MarkAllRead(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
}
