package repository

import (
	"context"
	"errors"
	"time"

	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() emailaccountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *emailaccountdomain.EmailAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO email_accounts (
			id, org_id, member_id, provider, email_address, access_token,
			refresh_token, token_expires_at, status, last_refreshed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.OrgID,
		account.MemberID,
		account.Provider,
		account.EmailAddress,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.Status,
		account.LastRefreshedAt,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *emailaccountdomain.EmailAccount) error {
	return db.WithContext(ctx).Exec(
		`UPDATE email_accounts
		 SET access_token = ?, refresh_token = ?, token_expires_at = ?,
		     status = ?, last_refreshed_at = ?, updated_at = ?
		 WHERE id = ?`,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.Status,
		account.LastRefreshedAt,
		account.UpdatedAt,
		account.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*emailaccountdomain.EmailAccount, error) {
	var account emailaccountdomain.EmailAccount
	err := db.WithContext(ctx).
		First(&account, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByAddress(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider, address string) (*emailaccountdomain.EmailAccount, error) {
	var account emailaccountdomain.EmailAccount
	err := db.WithContext(ctx).
		First(&account, "org_id = ? AND provider = ? AND email_address = ?", orgID, provider, address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]emailaccountdomain.EmailAccount, error) {
	var accounts []emailaccountdomain.EmailAccount
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) ListExpiring(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]emailaccountdomain.EmailAccount, error) {
	var accounts []emailaccountdomain.EmailAccount
	err := db.WithContext(ctx).
		Where("status = ? AND token_expires_at IS NOT NULL AND token_expires_at <= ?",
			emailaccountdomain.StatusConnected, cutoff).
		Order("token_expires_at ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
