package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Emitter is the write side other services use to fan events out.
type Emitter interface {
	Emit(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error
}

type Service interface {
	Emitter

	CreateConfig(ctx context.Context, req CreateConfigRequest) (*ConfigResponse, error)
	UpdateConfig(ctx context.Context, id string, req UpdateConfigRequest) (*ConfigResponse, error)
	DeleteConfig(ctx context.Context, id string) error
	GetConfig(ctx context.Context, id string) (*ConfigResponse, error)
	ListConfigs(ctx context.Context) ([]ConfigResponse, error)
	TestPing(ctx context.Context, id string) (*DeliveryResponse, error)
	ListDeliveries(ctx context.Context, req ListDeliveriesRequest) ([]DeliveryResponse, error)

	// DeliverDue sends deliveries whose next attempt is due, applying the
	// retry backoff table. Returns the number processed.
	DeliverDue(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type CreateConfigRequest struct {
	URL        string   `json:"url"`
	Secret     string   `json:"secret"`
	EventTypes []string `json:"event_types"`
}

type UpdateConfigRequest struct {
	URL        *string  `json:"url"`
	Secret     *string  `json:"secret"`
	EventTypes []string `json:"event_types"`
	Active     *bool    `json:"active"`
}

type ListDeliveriesRequest struct {
	ConfigID string `form:"config_id"`
	Status   string `form:"status"`
	Limit    int    `form:"limit,default=50"`
}

type ConfigResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"event_types"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type DeliveryResponse struct {
	ID             string     `json:"id"`
	ConfigID       string     `json:"config_id"`
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	ResponseStatus *int       `json:"response_status,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidURL          = errors.New("invalid_url")
	ErrInvalidSecret       = errors.New("invalid_secret")
	ErrInvalidEventTypes   = errors.New("invalid_event_types")
	ErrInvalidConfig       = errors.New("invalid_webhook_config")
	ErrConfigNotFound      = errors.New("webhook_config_not_found")
)
