package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aware88/fresh-crm/internal/orgcontext"
	"github.com/aware88/fresh-crm/internal/webhook/domain"
	webhookrepo "github.com/aware88/fresh-crm/internal/webhook/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sqliteClaimRepo swaps the row-locking claim query for one sqlite can run.
type sqliteClaimRepo struct {
	domain.Repository
}

func (r sqliteClaimRepo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	var due []domain.WebhookDelivery
	err := db.WithContext(ctx).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", domain.DeliveryStatusPending, now).
		Order("id").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, err
	}
	for i := range due {
		if err := db.WithContext(ctx).Exec(
			`UPDATE webhook_deliveries SET status = ? WHERE id = ?`,
			domain.DeliveryStatusDelivering, due[i].ID,
		).Error; err != nil {
			return nil, err
		}
	}
	return due, nil
}

type webhookTestEnv struct {
	svc   domain.Service
	db    *gorm.DB
	genID *snowflake.Node
	orgID snowflake.ID
	ctx   context.Context
}

func newWebhookTestEnv(t *testing.T) *webhookTestEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&domain.WebhookConfiguration{},
		&domain.WebhookDelivery{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	orgID := node.Generate()
	svc := New(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  sqliteClaimRepo{Repository: webhookrepo.Provide()},
	})

	return &webhookTestEnv{
		svc:   svc,
		db:    gdb,
		genID: node,
		orgID: orgID,
		ctx:   orgcontext.WithOrgID(context.Background(), int64(orgID)),
	}
}

func (env *webhookTestEnv) createConfig(t *testing.T, url string, eventTypes ...string) *domain.ConfigResponse {
	t.Helper()
	resp, err := env.svc.CreateConfig(env.ctx, domain.CreateConfigRequest{
		URL:        url,
		Secret:     "whsec_0123456789abcdef",
		EventTypes: eventTypes,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateConfigValidation(t *testing.T) {
	env := newWebhookTestEnv(t)

	_, err := env.svc.CreateConfig(env.ctx, domain.CreateConfigRequest{
		URL:        "ftp://example.com/hook",
		Secret:     "whsec_0123456789abcdef",
		EventTypes: []string{"contact.created"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = env.svc.CreateConfig(env.ctx, domain.CreateConfigRequest{
		URL:        "https://example.com/hook",
		Secret:     "short",
		EventTypes: []string{"contact.created"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidSecret)

	_, err = env.svc.CreateConfig(env.ctx, domain.CreateConfigRequest{
		URL:        "https://example.com/hook",
		Secret:     "whsec_0123456789abcdef",
		EventTypes: []string{"  ", ""},
	})
	require.ErrorIs(t, err, domain.ErrInvalidEventTypes)
}

func TestCreateConfigNormalizesEventTypes(t *testing.T) {
	env := newWebhookTestEnv(t)

	resp := env.createConfig(t, "https://example.com/hook",
		"Contact.Created", "contact.created", " lead.scored ")
	require.Equal(t, []string{"contact.created", "lead.scored"}, resp.EventTypes)
	require.True(t, resp.Active)
}

func TestUpdateConfigPartial(t *testing.T) {
	env := newWebhookTestEnv(t)
	created := env.createConfig(t, "https://example.com/hook", "contact.created")

	inactive := false
	updated, err := env.svc.UpdateConfig(env.ctx, created.ID, domain.UpdateConfigRequest{
		Active: &inactive,
	})
	require.NoError(t, err)
	require.False(t, updated.Active)
	require.Equal(t, "https://example.com/hook", updated.URL)

	newURL := "https://example.com/hook/v2"
	updated, err = env.svc.UpdateConfig(env.ctx, created.ID, domain.UpdateConfigRequest{
		URL: &newURL,
	})
	require.NoError(t, err)
	require.Equal(t, newURL, updated.URL)
	require.False(t, updated.Active)

	_, err = env.svc.UpdateConfig(env.ctx, env.genID.Generate().String(), domain.UpdateConfigRequest{})
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestDeleteConfig(t *testing.T) {
	env := newWebhookTestEnv(t)
	created := env.createConfig(t, "https://example.com/hook", "contact.created")

	require.NoError(t, env.svc.DeleteConfig(env.ctx, created.ID))

	_, err := env.svc.GetConfig(env.ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestEmitFansOutToSubscribedConfigs(t *testing.T) {
	env := newWebhookTestEnv(t)

	env.createConfig(t, "https://example.com/a", "contact.created")
	env.createConfig(t, "https://example.com/b", "lead.*")
	env.createConfig(t, "https://example.com/c", "*")
	inactive := env.createConfig(t, "https://example.com/d", "contact.created")
	off := false
	_, err := env.svc.UpdateConfig(env.ctx, inactive.ID, domain.UpdateConfigRequest{Active: &off})
	require.NoError(t, err)

	require.NoError(t, env.svc.Emit(context.Background(), env.orgID, "contact.created", map[string]any{
		"contact_id": "42",
	}))

	var deliveries []domain.WebhookDelivery
	require.NoError(t, env.db.Find(&deliveries).Error)
	require.Len(t, deliveries, 2)
	for _, d := range deliveries {
		require.Equal(t, domain.DeliveryStatusPending, d.Status)
		require.Equal(t, "contact.created", d.EventType)
		require.NotNil(t, d.NextAttemptAt)
	}
	// Fan-out shares one event ID across configurations.
	require.Equal(t, deliveries[0].EventID, deliveries[1].EventID)

	require.NoError(t, env.svc.Emit(context.Background(), env.orgID, "lead.scored", nil))
	require.NoError(t, env.db.Find(&deliveries).Error)
	require.Len(t, deliveries, 4)
}

func TestEmitWithoutConfigsIsNoOp(t *testing.T) {
	env := newWebhookTestEnv(t)

	require.NoError(t, env.svc.Emit(context.Background(), env.orgID, "contact.created", nil))

	var count int64
	require.NoError(t, env.db.Model(&domain.WebhookDelivery{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeliverDueSendsSignedRequest(t *testing.T) {
	env := newWebhookTestEnv(t)

	var received atomic.Int64
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		timestamp := r.Header.Get("X-Webhook-Timestamp")
		signature := r.Header.Get("X-Webhook-Signature")
		require.True(t, VerifySignature("whsec_0123456789abcdef", timestamp, body, signature))
		require.Equal(t, "contact.created", r.Header.Get("X-Event-Type"))
		require.NotEmpty(t, r.Header.Get("X-Webhook-ID"))

		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	env.createConfig(t, receiver.URL, "contact.created")
	require.NoError(t, env.svc.Emit(context.Background(), env.orgID, "contact.created", map[string]any{
		"contact_id": "42",
	}))

	sent, err := env.svc.DeliverDue(context.Background(), time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.EqualValues(t, 1, received.Load())

	var delivery domain.WebhookDelivery
	require.NoError(t, env.db.First(&delivery).Error)
	require.Equal(t, domain.DeliveryStatusDelivered, delivery.Status)
	require.Equal(t, 1, delivery.AttemptCount)
	require.NotNil(t, delivery.DeliveredAt)
	require.Nil(t, delivery.NextAttemptAt)
	require.NotNil(t, delivery.ResponseStatus)
	require.Equal(t, http.StatusOK, *delivery.ResponseStatus)
}

func TestDeliverDueRetriesWithBackoffUntilFailed(t *testing.T) {
	env := newWebhookTestEnv(t)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer receiver.Close()

	env.createConfig(t, receiver.URL, "contact.created")
	require.NoError(t, env.svc.Emit(context.Background(), env.orgID, "contact.created", nil))

	now := time.Now().UTC().Add(time.Second)

	sent, err := env.svc.DeliverDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	var delivery domain.WebhookDelivery
	require.NoError(t, env.db.First(&delivery).Error)
	require.Equal(t, domain.DeliveryStatusPending, delivery.Status)
	require.Equal(t, 1, delivery.AttemptCount)
	require.NotNil(t, delivery.NextAttemptAt)
	require.WithinDuration(t, now.Add(5*time.Minute), *delivery.NextAttemptAt, time.Second)
	require.Contains(t, delivery.LastError, "500")

	// Not due yet.
	sent, err = env.svc.DeliverDue(context.Background(), now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Zero(t, sent)

	// Exhaust the backoff table; each pass lands after the next retry slot.
	for i := 0; i < domain.MaxAttempts-1; i++ {
		now = now.Add(25 * time.Hour)
		_, err = env.svc.DeliverDue(context.Background(), now, 10)
		require.NoError(t, err)
	}

	require.NoError(t, env.db.First(&delivery).Error)
	require.Equal(t, domain.DeliveryStatusFailed, delivery.Status)
	require.Equal(t, domain.MaxAttempts, delivery.AttemptCount)
	require.Nil(t, delivery.NextAttemptAt)
}

func TestTestPingDeliversImmediately(t *testing.T) {
	env := newWebhookTestEnv(t)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ping", r.Header.Get("X-Event-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	config := env.createConfig(t, receiver.URL, "contact.created")

	resp, err := env.svc.TestPing(env.ctx, config.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatusDelivered, resp.Status)
	require.Equal(t, "ping", resp.EventType)
	require.Equal(t, 1, resp.AttemptCount)

	_, err = env.svc.TestPing(env.ctx, env.genID.Generate().String())
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestListDeliveriesFilters(t *testing.T) {
	env := newWebhookTestEnv(t)

	okReceiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okReceiver.Close()
	badReceiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer badReceiver.Close()

	good := env.createConfig(t, okReceiver.URL, "contact.created")
	env.createConfig(t, badReceiver.URL, "contact.created")

	require.NoError(t, env.svc.Emit(context.Background(), env.orgID, "contact.created", nil))
	_, err := env.svc.DeliverDue(context.Background(), time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)

	all, err := env.svc.ListDeliveries(env.ctx, domain.ListDeliveriesRequest{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	delivered, err := env.svc.ListDeliveries(env.ctx, domain.ListDeliveriesRequest{
		Status: domain.DeliveryStatusDelivered,
	})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	require.Equal(t, good.ID, delivered[0].ConfigID)

	byConfig, err := env.svc.ListDeliveries(env.ctx, domain.ListDeliveriesRequest{
		ConfigID: good.ID,
	})
	require.NoError(t, err)
	require.Len(t, byConfig, 1)

	_, err = env.svc.ListDeliveries(env.ctx, domain.ListDeliveriesRequest{ConfigID: "nope"})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
