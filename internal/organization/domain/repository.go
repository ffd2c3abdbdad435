package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org Organization) error
	FindByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
	Update(ctx context.Context, org Organization) error
	AddMember(ctx context.Context, member OrganizationMember) error
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]OrganizationMember, error)
	FindMember(ctx context.Context, orgID, memberID snowflake.ID) (*OrganizationMember, error)
	DeleteMember(ctx context.Context, orgID, memberID snowflake.ID) error
	CountMembersByRole(ctx context.Context, orgID snowflake.ID, role string) (int64, error)
}
