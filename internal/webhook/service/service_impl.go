package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	obsmetrics "github.com/aware88/fresh-crm/internal/observability/metrics"
	"github.com/aware88/fresh-crm/internal/observability/tracing"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	"github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	metrics *obsmetrics.Metrics
	client  *http.Client
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("webhook.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
		client:  tracing.WrapHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	}
}

func (s *Service) CreateConfig(ctx context.Context, req domain.CreateConfigRequest) (*domain.ConfigResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	endpoint, err := normalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(req.Secret)
	if len(secret) < 16 {
		return nil, domain.ErrInvalidSecret
	}
	eventTypes := normalizeEventTypes(req.EventTypes)
	if len(eventTypes) == 0 {
		return nil, domain.ErrInvalidEventTypes
	}

	now := time.Now().UTC()
	config := domain.WebhookConfiguration{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		URL:        endpoint,
		Secret:     secret,
		EventTypes: eventTypes,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateConfig(ctx, s.db, &config); err != nil {
		return nil, err
	}
	return toConfigResponse(config), nil
}

func (s *Service) UpdateConfig(ctx context.Context, id string, req domain.UpdateConfigRequest) (*domain.ConfigResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	configID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}

	config, err := s.repo.FindConfig(ctx, s.db, orgID, configID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, domain.ErrConfigNotFound
	}

	if req.URL != nil {
		endpoint, err := normalizeURL(*req.URL)
		if err != nil {
			return nil, err
		}
		config.URL = endpoint
	}
	if req.Secret != nil {
		secret := strings.TrimSpace(*req.Secret)
		if len(secret) < 16 {
			return nil, domain.ErrInvalidSecret
		}
		config.Secret = secret
	}
	if req.EventTypes != nil {
		eventTypes := normalizeEventTypes(req.EventTypes)
		if len(eventTypes) == 0 {
			return nil, domain.ErrInvalidEventTypes
		}
		config.EventTypes = eventTypes
	}
	if req.Active != nil {
		config.Active = *req.Active
	}
	config.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateConfig(ctx, s.db, config); err != nil {
		return nil, err
	}
	return toConfigResponse(*config), nil
}

func (s *Service) DeleteConfig(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	configID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidConfig
	}
	return s.repo.DeleteConfig(ctx, s.db, orgID, configID)
}

func (s *Service) GetConfig(ctx context.Context, id string) (*domain.ConfigResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	configID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}
	config, err := s.repo.FindConfig(ctx, s.db, orgID, configID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, domain.ErrConfigNotFound
	}
	return toConfigResponse(*config), nil
}

func (s *Service) ListConfigs(ctx context.Context) ([]domain.ConfigResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	configs, err := s.repo.ListConfigs(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.ConfigResponse, 0, len(configs))
	for _, config := range configs {
		resp = append(resp, *toConfigResponse(config))
	}
	return resp, nil
}

// Emit fans the event out to every matching configuration as a pending
// delivery. The scheduler picks pending rows up on its next tick.
func (s *Service) Emit(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return domain.ErrInvalidEventTypes
	}

	configs, err := s.repo.ListActiveConfigsForEvent(ctx, s.db, orgID, eventType)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	eventID := uuid.NewString()
	for _, config := range configs {
		delivery := domain.WebhookDelivery{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			ConfigID:      config.ID,
			EventID:       eventID,
			EventType:     eventType,
			Payload:       datatypes.JSONMap(payload),
			Status:        domain.DeliveryStatusPending,
			NextAttemptAt: &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.CreateDelivery(ctx, s.db, &delivery); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) DeliverDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	claimed, err := s.repo.ClaimDue(ctx, s.db, now, batchSize)
	if err != nil {
		return 0, err
	}

	for i := range claimed {
		if ctx.Err() != nil {
			return len(claimed[:i]), ctx.Err()
		}
		s.attempt(ctx, &claimed[i], now)
	}
	return len(claimed), nil
}

func (s *Service) TestPing(ctx context.Context, id string) (*domain.DeliveryResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	configID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}
	config, err := s.repo.FindConfig(ctx, s.db, orgID, configID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, domain.ErrConfigNotFound
	}

	now := time.Now().UTC()
	delivery := domain.WebhookDelivery{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		ConfigID:  config.ID,
		EventID:   uuid.NewString(),
		EventType: "ping",
		Payload:   datatypes.JSONMap{"message": "ping"},
		Status:    domain.DeliveryStatusDelivering,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateDelivery(ctx, s.db, &delivery); err != nil {
		return nil, err
	}

	s.attempt(ctx, &delivery, now)
	resp := toDeliveryResponse(delivery)
	return &resp, nil
}

func (s *Service) ListDeliveries(ctx context.Context, req domain.ListDeliveriesRequest) ([]domain.DeliveryResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	deliveries, err := s.repo.ListDeliveries(ctx, s.db, orgID, req)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.DeliveryResponse, 0, len(deliveries))
	for _, delivery := range deliveries {
		resp = append(resp, toDeliveryResponse(delivery))
	}
	return resp, nil
}

// attempt sends one delivery and persists the outcome, applying the backoff
// table on failure. Errors are recorded on the row, never returned.
func (s *Service) attempt(ctx context.Context, delivery *domain.WebhookDelivery, now time.Time) {
	config, err := s.repo.FindConfig(ctx, s.db, delivery.OrgID, delivery.ConfigID)
	if err == nil && config == nil {
		err = domain.ErrConfigNotFound
	}

	var status int
	if err == nil {
		status, err = s.send(ctx, config, delivery)
	}

	delivery.AttemptCount++
	delivery.UpdatedAt = now
	if status != 0 {
		delivery.ResponseStatus = &status
	}

	switch {
	case err == nil:
		deliveredAt := now
		delivery.Status = domain.DeliveryStatusDelivered
		delivery.DeliveredAt = &deliveredAt
		delivery.NextAttemptAt = nil
		delivery.LastError = ""
		s.recordOutcome(ctx, delivery.OrgID, domain.DeliveryStatusDelivered)
	default:
		delivery.LastError = err.Error()
		if backoff, ok := domain.NextBackoff(delivery.AttemptCount); ok {
			next := now.Add(backoff)
			delivery.Status = domain.DeliveryStatusPending
			delivery.NextAttemptAt = &next
			s.recordOutcome(ctx, delivery.OrgID, "retrying")
		} else {
			delivery.Status = domain.DeliveryStatusFailed
			delivery.NextAttemptAt = nil
			s.recordOutcome(ctx, delivery.OrgID, domain.DeliveryStatusFailed)
		}
		s.log.Warn("webhook delivery attempt failed",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("event_type", delivery.EventType),
			zap.Int("attempt", delivery.AttemptCount),
			zap.Error(err),
		)
	}

	if err := s.repo.UpdateDelivery(ctx, s.db, delivery); err != nil {
		s.log.Error("failed to persist delivery outcome",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) send(ctx context.Context, config *domain.WebhookConfiguration, delivery *domain.WebhookDelivery) (int, error) {
	body, err := json.Marshal(map[string]any{
		"id":         delivery.EventID,
		"type":       delivery.EventType,
		"created_at": delivery.CreatedAt.Format(time.RFC3339),
		"data":       map[string]any(delivery.Payload),
	})
	if err != nil {
		return 0, err
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(config.Secret, timestamp, body))
	req.Header.Set("X-Webhook-Timestamp", timestamp)
	req.Header.Set("X-Webhook-ID", delivery.EventID)
	req.Header.Set("X-Event-Type", delivery.EventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *Service) recordOutcome(ctx context.Context, orgID snowflake.ID, status string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookDelivery(ctx, status)
	}
	cloudmetrics.RecordWebhookDelivery(orgID.String(), status)
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", domain.ErrInvalidURL
	}
	return parsed.String(), nil
}

func normalizeEventTypes(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	types := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	return types
}

func toConfigResponse(config domain.WebhookConfiguration) *domain.ConfigResponse {
	return &domain.ConfigResponse{
		ID:         config.ID.String(),
		URL:        config.URL,
		EventTypes: config.EventTypes,
		Active:     config.Active,
		CreatedAt:  config.CreatedAt,
	}
}

func toDeliveryResponse(delivery domain.WebhookDelivery) domain.DeliveryResponse {
	return domain.DeliveryResponse{
		ID:             delivery.ID.String(),
		ConfigID:       delivery.ConfigID.String(),
		EventID:        delivery.EventID,
		EventType:      delivery.EventType,
		Status:         delivery.Status,
		AttemptCount:   delivery.AttemptCount,
		NextAttemptAt:  delivery.NextAttemptAt,
		LastError:      delivery.LastError,
		ResponseStatus: delivery.ResponseStatus,
		DeliveredAt:    delivery.DeliveredAt,
		CreatedAt:      delivery.CreatedAt,
	}
}
