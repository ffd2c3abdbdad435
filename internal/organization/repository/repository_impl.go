package repository

import (
	"context"
	"errors"

	"github.com/aware88/fresh-crm/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, support_email, is_default, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.SupportEmail,
		org.IsDefault,
		org.Metadata,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) Update(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET name = ?, slug = ?, support_email = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		org.Name,
		org.Slug,
		org.SupportEmail,
		org.Metadata,
		org.UpdatedAt,
		org.ID,
	).Error
}

func (r *repository) AddMember(ctx context.Context, member domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, email, display_name, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.Email,
		member.DisplayName,
		member.Role,
		member.CreatedAt,
	).Error
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.OrganizationMember, error) {
	var members []domain.OrganizationMember
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, email, display_name, role, created_at
		 FROM organization_members
		 WHERE org_id = ?
		 ORDER BY created_at ASC`,
		orgID,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repository) FindMember(ctx context.Context, orgID, memberID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		First(&member, "org_id = ? AND id = ?", orgID, memberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) DeleteMember(ctx context.Context, orgID, memberID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE org_id = ? AND id = ?`,
		orgID,
		memberID,
	).Error
}

func (r *repository) CountMembersByRole(ctx context.Context, orgID snowflake.ID, role string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationMember{}).
		Where("org_id = ? AND role = ?", orgID, role).
		Count(&count).Error
	return count, err
}
