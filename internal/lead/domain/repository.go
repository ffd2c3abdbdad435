package domain

import (
	"context"

	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert replaces the score row for the contact, keyed on (org, contact).
	Upsert(ctx context.Context, db *gorm.DB, score *LeadScore) error
	FindByContact(ctx context.Context, db *gorm.DB, orgID, contactID snowflake.ID) (*LeadScore, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]LeadScore, error)

	// OpenOpportunityStats reports whether the contact has open
	// opportunities and the largest open value, for the opportunity
	// scoring category.
	OpenOpportunityStats(ctx context.Context, db *gorm.DB, orgID, contactID snowflake.ID) (hasOpen bool, maxValueCents int64, err error)
}
