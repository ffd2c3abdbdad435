package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *EmailAccount) error
	Update(ctx context.Context, db *gorm.DB, account *EmailAccount) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*EmailAccount, error)
	FindByAddress(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider, address string) (*EmailAccount, error)
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]EmailAccount, error)

	// ListExpiring returns connected accounts whose tokens expire at or
	// before the cutoff, soonest first.
	ListExpiring(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]EmailAccount, error)
}
