package domain

import (
	"context"
	"time"

	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, contact *Contact) error
	Update(ctx context.Context, db *gorm.DB, contact *Contact) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Contact, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]Contact, error)
	CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	IncrementInteraction(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) error

	// ListStale returns contacts whose score is missing or older than the
	// cutoff, for the nightly recalculation job.
	ListStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Contact, error)
}
