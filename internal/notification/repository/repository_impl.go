package repository

import (
	"context"
	"errors"

	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *notificationdomain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (
			id, org_id, user_id, notification_type, title, body, metadata, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.OrgID,
		n.UserID,
		n.Type,
		n.Title,
		n.Body,
		n.Metadata,
		n.Read,
		n.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*notificationdomain.Notification, error) {
	var n notificationdomain.Notification
	err := db.WithContext(ctx).
		First(&n, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, opts ...option.QueryOption) ([]notificationdomain.Notification, error) {
	stmt := db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("org_id = ?", orgID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var notifications []notificationdomain.Notification
	if err := stmt.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications SET read = TRUE WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Error
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications SET read = TRUE WHERE org_id = ? AND read = FALSE`,
		orgID,
	)
	return result.RowsAffected, result.Error
}
