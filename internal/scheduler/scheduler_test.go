package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	"github.com/aware88/fresh-crm/internal/clock"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mocks for dependencies

type mockWebhookSvc struct {
	deliverFunc func(ctx context.Context, now time.Time, batchSize int) (int, error)
	calls       int
}

func (m *mockWebhookSvc) Emit(context.Context, snowflake.ID, string, map[string]any) error {
	return nil
}
func (m *mockWebhookSvc) CreateConfig(context.Context, webhookdomain.CreateConfigRequest) (*webhookdomain.ConfigResponse, error) {
	return nil, nil
}
func (m *mockWebhookSvc) UpdateConfig(context.Context, string, webhookdomain.UpdateConfigRequest) (*webhookdomain.ConfigResponse, error) {
	return nil, nil
}
func (m *mockWebhookSvc) DeleteConfig(context.Context, string) error { return nil }
func (m *mockWebhookSvc) GetConfig(context.Context, string) (*webhookdomain.ConfigResponse, error) {
	return nil, nil
}
func (m *mockWebhookSvc) ListConfigs(context.Context) ([]webhookdomain.ConfigResponse, error) {
	return nil, nil
}
func (m *mockWebhookSvc) TestPing(context.Context, string) (*webhookdomain.DeliveryResponse, error) {
	return nil, nil
}
func (m *mockWebhookSvc) ListDeliveries(context.Context, webhookdomain.ListDeliveriesRequest) ([]webhookdomain.DeliveryResponse, error) {
	return nil, nil
}
func (m *mockWebhookSvc) DeliverDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	m.calls++
	if m.deliverFunc != nil {
		return m.deliverFunc(ctx, now, batchSize)
	}
	return 0, nil
}

type mockEmailAccountSvc struct {
	refreshFunc func(ctx context.Context, now time.Time, window time.Duration, batchSize int) (int, error)
	calls       int
}

func (m *mockEmailAccountSvc) Connect(context.Context, emailaccountdomain.ConnectAccountRequest) (*emailaccountdomain.AccountResponse, error) {
	return nil, nil
}
func (m *mockEmailAccountSvc) List(context.Context) (*emailaccountdomain.ListAccountsResponse, error) {
	return nil, nil
}
func (m *mockEmailAccountSvc) GetByID(context.Context, string) (*emailaccountdomain.AccountResponse, error) {
	return nil, nil
}
func (m *mockEmailAccountSvc) AccessToken(context.Context, string) (string, error) { return "", nil }
func (m *mockEmailAccountSvc) Disconnect(context.Context, string) error            { return nil }
func (m *mockEmailAccountSvc) RefreshExpiring(ctx context.Context, now time.Time, window time.Duration, batchSize int) (int, error) {
	m.calls++
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, now, window, batchSize)
	}
	return 0, nil
}

type mockLeadSvc struct {
	recalcFunc func(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
	calls      int
}

func (m *mockLeadSvc) CalculateScore(context.Context, string) (*leaddomain.LeadScoreResponse, error) {
	return nil, nil
}
func (m *mockLeadSvc) GetScore(context.Context, string) (*leaddomain.LeadScoreResponse, error) {
	return nil, nil
}
func (m *mockLeadSvc) ListScores(context.Context, leaddomain.ListScoresRequest) (*leaddomain.ListScoresResponse, error) {
	return nil, nil
}
func (m *mockLeadSvc) BulkCalculateScores(context.Context, []string) (*leaddomain.BulkCalculateResult, error) {
	return nil, nil
}
func (m *mockLeadSvc) RecalculateStale(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	m.calls++
	if m.recalcFunc != nil {
		return m.recalcFunc(ctx, cutoff, batchSize)
	}
	return 0, nil
}

type mockAIUsageSvc struct {
	rolloverFunc func(ctx context.Context, now time.Time, batchSize int) (int, error)
	calls        int
}

func (m *mockAIUsageSvc) Record(context.Context, aiusagedomain.RecordUsageRequest) (*aiusagedomain.UsageRecordResponse, error) {
	return nil, nil
}
func (m *mockAIUsageSvc) Quota(context.Context) (*aiusagedomain.QuotaResponse, error) {
	return nil, nil
}
func (m *mockAIUsageSvc) CheckQuota(context.Context, snowflake.ID, int64) error { return nil }
func (m *mockAIUsageSvc) ListUsage(context.Context, aiusagedomain.ListUsageRequest) (*aiusagedomain.ListUsageResponse, error) {
	return nil, nil
}
func (m *mockAIUsageSvc) CreateTopUpCheckout(context.Context, aiusagedomain.CreateTopUpRequest) (*aiusagedomain.TopUpResponse, error) {
	return nil, nil
}
func (m *mockAIUsageSvc) ApplyTopUpCompleted(context.Context, string) error { return nil }
func (m *mockAIUsageSvc) ListTopUps(context.Context) (*aiusagedomain.ListTopUpsResponse, error) {
	return nil, nil
}
func (m *mockAIUsageSvc) TopUpReceipt(context.Context, string) ([]byte, error) { return nil, nil }
func (m *mockAIUsageSvc) Rollover(ctx context.Context, now time.Time, batchSize int) (int, error) {
	m.calls++
	if m.rolloverFunc != nil {
		return m.rolloverFunc(ctx, now, batchSize)
	}
	return 0, nil
}

type testMocks struct {
	webhook *mockWebhookSvc
	email   *mockEmailAccountSvc
	lead    *mockLeadSvc
	aiUsage *mockAIUsageSvc
}

func newTestScheduler(t *testing.T, cfg Config, clk clock.Clock) (*Scheduler, *testMocks) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	mocks := &testMocks{
		webhook: &mockWebhookSvc{},
		email:   &mockEmailAccountSvc{},
		lead:    &mockLeadSvc{},
		aiUsage: &mockAIUsageSvc{},
	}

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clk,
		WebhookSvc:      mocks.webhook,
		EmailAccountSvc: mocks.email,
		LeadSvc:         mocks.lead,
		AIUsageSvc:      mocks.aiUsage,
		Config:          cfg,
	})
	require.NoError(t, err)
	return sched, mocks
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sched, mocks := newTestScheduler(t, Config{}, clk)

	require.NoError(t, sched.RunOnce(context.Background()))

	require.Equal(t, 1, mocks.webhook.calls)
	require.Equal(t, 1, mocks.email.calls)
	require.Equal(t, 1, mocks.lead.calls)
	require.Equal(t, 1, mocks.aiUsage.calls)
}

func TestRunOnceDrainsFullBatches(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sched, mocks := newTestScheduler(t, Config{DeliveryBatchSize: 10}, clk)

	sizes := []int{10, 10, 3}
	mocks.webhook.deliverFunc = func(_ context.Context, _ time.Time, batchSize int) (int, error) {
		require.Equal(t, 10, batchSize)
		size := sizes[0]
		sizes = sizes[1:]
		return size, nil
	}

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 3, mocks.webhook.calls)
	require.Empty(t, sizes)
}

func TestRunOnceJobErrorDoesNotBlockOthers(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sched, mocks := newTestScheduler(t, Config{}, clk)

	deliveryErr := errors.New("connection refused")
	mocks.webhook.deliverFunc = func(context.Context, time.Time, int) (int, error) {
		return 0, deliveryErr
	}

	err := sched.RunOnce(context.Background())
	require.ErrorIs(t, err, deliveryErr)

	require.Equal(t, 1, mocks.email.calls)
	require.Equal(t, 1, mocks.lead.calls)
	require.Equal(t, 1, mocks.aiUsage.calls)
}

func TestRunOnceRespectsEnabledJobs(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sched, mocks := newTestScheduler(t, Config{
		EnabledJobs: []string{JobRolloverAIUsage},
	}, clk)

	require.NoError(t, sched.RunOnce(context.Background()))

	require.Zero(t, mocks.webhook.calls)
	require.Zero(t, mocks.email.calls)
	require.Zero(t, mocks.lead.calls)
	require.Equal(t, 1, mocks.aiUsage.calls)
}

func TestRunOnceTreatsCancelationAsSoftTimeout(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sched, mocks := newTestScheduler(t, Config{}, clk)

	mocks.webhook.deliverFunc = func(context.Context, time.Time, int) (int, error) {
		return 0, context.DeadlineExceeded
	}

	require.NoError(t, sched.RunOnce(context.Background()))
}
