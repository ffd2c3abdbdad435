package repository

import (
	"context"
	"errors"

	orgsettingsdomain "github.com/aware88/fresh-crm/internal/orgsettings/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orgsettingsdomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, setting *orgsettingsdomain.OrganizationSetting) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_settings (org_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (org_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		setting.OrgID,
		setting.Key,
		setting.Value,
		setting.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*orgsettingsdomain.OrganizationSetting, error) {
	var setting orgsettingsdomain.OrganizationSetting
	err := db.WithContext(ctx).
		First(&setting, "org_id = ? AND key = ?", orgID, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]orgsettingsdomain.OrganizationSetting, error) {
	var settings []orgsettingsdomain.OrganizationSetting
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("key ASC").
		Find(&settings).Error
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM organization_settings WHERE org_id = ? AND key = ?`,
		orgID, key,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
