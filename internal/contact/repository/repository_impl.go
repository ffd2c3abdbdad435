package repository

import (
	"context"
	"errors"
	"time"

	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() contactdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, contact *contactdomain.Contact) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO contacts (
			id, org_id, first_name, last_name, email, phone, company, position,
			interaction_count, last_interaction_at, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contact.ID,
		contact.OrgID,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Company,
		contact.Position,
		contact.InteractionCount,
		contact.LastInteractionAt,
		contact.Metadata,
		contact.CreatedAt,
		contact.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, contact *contactdomain.Contact) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contacts
		 SET first_name = ?, last_name = ?, email = ?, phone = ?, company = ?,
		     position = ?, metadata = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Company,
		contact.Position,
		contact.Metadata,
		contact.UpdatedAt,
		contact.OrgID,
		contact.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM contacts WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*contactdomain.Contact, error) {
	var contact contactdomain.Contact
	err := db.WithContext(ctx).
		First(&contact, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]contactdomain.Contact, error) {
	stmt := db.WithContext(ctx).
		Model(&contactdomain.Contact{}).
		Where("org_id = ?", orgID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var contacts []contactdomain.Contact
	if err := stmt.Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

func (r *repo) CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&contactdomain.Contact{}).
		Where("org_id = ?", orgID).
		Count(&count).Error
	return count, err
}

func (r *repo) IncrementInteraction(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contacts
		 SET interaction_count = interaction_count + 1,
		     last_interaction_at = ?,
		     updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		at, at, orgID, id,
	).Error
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]contactdomain.Contact, error) {
	var contacts []contactdomain.Contact
	err := db.WithContext(ctx).
		Raw(`SELECT c.* FROM contacts c
		     LEFT JOIN lead_scores ls ON ls.org_id = c.org_id AND ls.contact_id = c.id
		     WHERE ls.id IS NULL OR ls.computed_at < ?
		     ORDER BY c.updated_at DESC
		     LIMIT ?`, cutoff, limit).
		Scan(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}
