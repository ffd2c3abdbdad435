package repository

import (
	"context"
	"errors"

	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, record *paymentdomain.EventRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, provider, event_id, event_type, processed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.Provider,
		record.EventID,
		record.EventType,
		record.ProcessedAt,
	).Error
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, eventID string) (*paymentdomain.EventRecord, error) {
	var record paymentdomain.EventRecord
	err := db.WithContext(ctx).
		First(&record, "provider = ? AND event_id = ?", provider, eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
