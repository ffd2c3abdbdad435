package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/webhook/domain"
	obsmetrics "github.com/aware88/fresh-crm/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateConfig(ctx context.Context, db *gorm.DB, config *domain.WebhookConfiguration) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_configurations (id, org_id, url, secret, event_types, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		config.ID,
		config.OrgID,
		config.URL,
		config.Secret,
		config.EventTypes,
		config.Active,
		config.CreatedAt,
		config.UpdatedAt,
	).Error
}

func (r *repo) FindConfig(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.WebhookConfiguration, error) {
	var config domain.WebhookConfiguration
	err := db.WithContext(ctx).
		First(&config, "org_id = ? AND id = ?", orgID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &config, nil
}

func (r *repo) ListConfigs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.WebhookConfiguration, error) {
	var configs []domain.WebhookConfiguration
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at asc").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repo) ListActiveConfigsForEvent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, eventType string) ([]domain.WebhookConfiguration, error) {
	configs, err := r.ListConfigs(ctx, db, orgID)
	if err != nil {
		return nil, err
	}
	matched := configs[:0]
	for _, config := range configs {
		if config.Active && subscribed(config.EventTypes, eventType) {
			matched = append(matched, config)
		}
	}
	return matched, nil
}

// subscribed supports exact matches plus trailing wildcards like "lead.*".
func subscribed(eventTypes []string, eventType string) bool {
	for _, candidate := range eventTypes {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if candidate == "*" || candidate == eventType {
			return true
		}
		if strings.HasSuffix(candidate, ".*") &&
			strings.HasPrefix(eventType, strings.TrimSuffix(candidate, "*")) {
			return true
		}
	}
	return false
}

func (r *repo) UpdateConfig(ctx context.Context, db *gorm.DB, config *domain.WebhookConfiguration) error {
	if config == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_configurations
		 SET url = ?, secret = ?, event_types = ?, active = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		config.URL,
		config.Secret,
		config.EventTypes,
		config.Active,
		config.UpdatedAt,
		config.OrgID,
		config.ID,
	).Error
}

func (r *repo) DeleteConfig(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM webhook_configurations WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repo) CreateDelivery(ctx context.Context, db *gorm.DB, delivery *domain.WebhookDelivery) error {
	return db.WithContext(ctx).Create(delivery).Error
}

func (r *repo) FindDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WebhookDelivery, error) {
	var delivery domain.WebhookDelivery
	err := db.WithContext(ctx).First(&delivery, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &delivery, nil
}

// ClaimDue marks due deliveries as delivering inside one transaction so
// concurrent scheduler instances never double-send.
func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	var claimed []domain.WebhookDelivery
	schedMetrics := obsmetrics.Scheduler()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		var due []domain.WebhookDelivery
		err := tx.Raw(
			`SELECT * FROM webhook_deliveries
			 WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			 ORDER BY next_attempt_at NULLS FIRST, id
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			domain.DeliveryStatusPending,
			now,
			limit,
		).Scan(&due).Error
		schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceWebhookDeliveriesForWork, time.Since(lockStart))
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(due))
		for _, d := range due {
			ids = append(ids, d.ID)
		}
		if err := tx.Exec(
			`UPDATE webhook_deliveries SET status = ?, updated_at = ? WHERE id IN ?`,
			domain.DeliveryStatusDelivering,
			now,
			ids,
		).Error; err != nil {
			return err
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repo) UpdateDelivery(ctx context.Context, db *gorm.DB, delivery *domain.WebhookDelivery) error {
	if delivery == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, response_status = ?, delivered_at = ?, updated_at = ?
		 WHERE id = ?`,
		delivery.Status,
		delivery.AttemptCount,
		delivery.NextAttemptAt,
		delivery.LastError,
		delivery.ResponseStatus,
		delivery.DeliveredAt,
		delivery.UpdatedAt,
		delivery.ID,
	).Error
}

func (r *repo) ListDeliveries(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListDeliveriesRequest) ([]domain.WebhookDelivery, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.WebhookDelivery{}).
		Where("org_id = ?", orgID)

	if raw := strings.TrimSpace(filter.ConfigID); raw != "" {
		configID, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, domain.ErrInvalidConfig
		}
		stmt = stmt.Where("config_id = ?", configID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	var deliveries []domain.WebhookDelivery
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
