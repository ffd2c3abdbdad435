package domain

import (
	"context"
	"net/http"

	"gorm.io/gorm"
)

// Service ingests provider webhook deliveries and dispatches parsed
// events to the billing services.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type Repository interface {
	// InsertEvent records a processed provider event. A duplicate key
	// error means the event was already handled.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) error
	FindEvent(ctx context.Context, db *gorm.DB, provider, eventID string) (*EventRecord, error)
}
