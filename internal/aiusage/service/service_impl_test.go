package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	aiusagerepo "github.com/aware88/fresh-crm/internal/aiusage/repository"
	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/config"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	"github.com/aware88/fresh-crm/internal/providers/pdf"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeLimits struct {
	limits map[string]int64
}

func (f *fakeLimits) IsEnabled(context.Context, snowflake.ID, string) (bool, error) {
	return true, nil
}

func (f *fakeLimits) Entitlements(context.Context, snowflake.ID) (*subscriptiondomain.Entitlement, error) {
	return nil, nil
}

func (f *fakeLimits) Limit(_ context.Context, _ snowflake.ID, key string) (int64, bool, error) {
	limit, ok := f.limits[key]
	return limit, ok, nil
}

func (f *fakeLimits) Invalidate(snowflake.ID) {}

type fakeCheckout struct {
	sessions int
	failWith error
}

func (f *fakeCheckout) CreateSubscriptionCheckout(context.Context, paymentdomain.SubscriptionCheckoutParams) (*paymentdomain.CheckoutSession, error) {
	return nil, paymentdomain.ErrProviderNotConfigured
}

func (f *fakeCheckout) CreateTopUpCheckout(_ context.Context, params paymentdomain.TopUpCheckoutParams) (*paymentdomain.CheckoutSession, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.sessions++
	return &paymentdomain.CheckoutSession{
		SessionID: "cs_test_" + params.TopUpID.String(),
		URL:       "https://checkout.stripe.com/c/pay/cs_test_" + params.TopUpID.String(),
	}, nil
}

type fakeReceiptPDF struct{}

func (fakeReceiptPDF) GenerateReceipt(_ context.Context, receipt pdf.Receipt) (io.Reader, error) {
	return strings.NewReader("%PDF " + receipt.ReceiptNumber), nil
}

type quotaNotifier struct {
	created []notificationdomain.CreateNotificationRequest
}

func (n *quotaNotifier) Create(_ context.Context, req notificationdomain.CreateNotificationRequest) (*notificationdomain.NotificationResponse, error) {
	n.created = append(n.created, req)
	return &notificationdomain.NotificationResponse{}, nil
}

func (n *quotaNotifier) List(context.Context, notificationdomain.ListNotificationsRequest) (*notificationdomain.ListNotificationsResponse, error) {
	return nil, nil
}

func (n *quotaNotifier) MarkRead(context.Context, string) error     { return nil }
func (n *quotaNotifier) MarkAllRead(context.Context) (int64, error) { return 0, nil }

type usageTestEnv struct {
	svc      aiusagedomain.Service
	db       *gorm.DB
	genID    *snowflake.Node
	clk      *clock.FakeClock
	orgID    snowflake.ID
	ctx      context.Context
	limits   *fakeLimits
	checkout *fakeCheckout
	notifier *quotaNotifier
}

func newUsageTestEnv(t *testing.T) *usageTestEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&aiusagedomain.AIUsageRecord{},
		&aiusagedomain.AIUsagePeriod{},
		&aiusagedomain.TopUp{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	limits := &fakeLimits{limits: map[string]int64{plandomain.LimitAIMessagesPerMonth: 50}}
	checkout := &fakeCheckout{}
	notifier := &quotaNotifier{}

	orgID := node.Generate()
	svc := NewService(Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    node,
		Config:   config.Config{},
		Clock:    clk,
		Repo:     aiusagerepo.Provide(),
		Features: limits,
		Notifier: notifier,
		Checkout: checkout,
		PDF:      fakeReceiptPDF{},
	})

	return &usageTestEnv{
		svc:      svc,
		db:       gdb,
		genID:    node,
		clk:      clk,
		orgID:    orgID,
		ctx:      orgcontext.WithOrgID(context.Background(), int64(orgID)),
		limits:   limits,
		checkout: checkout,
		notifier: notifier,
	}
}

func (env *usageTestEnv) record(t *testing.T, messages int64, key string) *aiusagedomain.UsageRecordResponse {
	t.Helper()
	resp, err := env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{
		Feature:        aiusagedomain.FeatureChat,
		MessageCount:   messages,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return resp
}

func (env *usageTestEnv) insertTopUp(t *testing.T, remaining int64, status aiusagedomain.TopUpStatus) *aiusagedomain.TopUp {
	t.Helper()
	now := env.clk.Now()
	topUp := &aiusagedomain.TopUp{
		ID:               env.genID.Generate(),
		OrgID:            env.orgID,
		MessageAmount:    remaining,
		MessageRemaining: remaining,
		PriceCents:       500,
		Currency:         "usd",
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, env.db.Create(topUp).Error)
	return topUp
}

func TestRecordOpensPeriodAndAccumulates(t *testing.T) {
	env := newUsageTestEnv(t)

	first := env.record(t, 0, "")
	require.EqualValues(t, 1, first.MessageCount)

	env.record(t, 3, "")

	quota, err := env.svc.Quota(env.ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, quota.MessagesUsed)
	require.EqualValues(t, 50, quota.PlanLimit)
	require.EqualValues(t, 46, quota.Remaining)
	require.False(t, quota.Unlimited)

	// The period window is anchored to the calendar month without a sub.
	require.True(t, quota.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, quota.PeriodEnd.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRecordIdempotencyKeyReplays(t *testing.T) {
	env := newUsageTestEnv(t)

	first := env.record(t, 2, "req-abc")
	replay := env.record(t, 2, "req-abc")
	require.Equal(t, first.ID, replay.ID)

	quota, err := env.svc.Quota(env.ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, quota.MessagesUsed)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	env := newUsageTestEnv(t)

	_, err := env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{Feature: "telepathy"})
	require.ErrorIs(t, err, aiusagedomain.ErrInvalidFeature)

	_, err = env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{
		Feature:      aiusagedomain.FeatureChat,
		MessageCount: -1,
	})
	require.ErrorIs(t, err, aiusagedomain.ErrInvalidAmount)

	_, err = env.svc.Record(context.Background(), aiusagedomain.RecordUsageRequest{
		Feature: aiusagedomain.FeatureChat,
	})
	require.ErrorIs(t, err, aiusagedomain.ErrInvalidOrganization)
}

func TestRecordEnforcesPlanCeiling(t *testing.T) {
	env := newUsageTestEnv(t)
	env.limits.limits[plandomain.LimitAIMessagesPerMonth] = 5

	env.record(t, 5, "")

	_, err := env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{
		Feature: aiusagedomain.FeatureChat,
	})
	require.ErrorIs(t, err, aiusagedomain.ErrQuotaExceeded)

	// A completed top-up extends the ceiling; a pending one does not.
	env.insertTopUp(t, 10, aiusagedomain.TopUpStatusPending)
	_, err = env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{
		Feature: aiusagedomain.FeatureChat,
	})
	require.ErrorIs(t, err, aiusagedomain.ErrQuotaExceeded)

	env.insertTopUp(t, 10, aiusagedomain.TopUpStatusCompleted)
	env.record(t, 10, "")

	_, err = env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{
		Feature: aiusagedomain.FeatureChat,
	})
	require.ErrorIs(t, err, aiusagedomain.ErrQuotaExceeded)
}

func TestRecordUnlimitedPlan(t *testing.T) {
	env := newUsageTestEnv(t)
	delete(env.limits.limits, plandomain.LimitAIMessagesPerMonth)

	env.record(t, 100_000, "")

	quota, err := env.svc.Quota(env.ctx)
	require.NoError(t, err)
	require.True(t, quota.Unlimited)
	require.EqualValues(t, 100_000, quota.MessagesUsed)
}

func TestCheckQuota(t *testing.T) {
	env := newUsageTestEnv(t)
	env.limits.limits[plandomain.LimitAIMessagesPerMonth] = 10

	require.NoError(t, env.svc.CheckQuota(env.ctx, env.orgID, 10))
	require.ErrorIs(t, env.svc.CheckQuota(env.ctx, env.orgID, 11), aiusagedomain.ErrQuotaExceeded)
	require.ErrorIs(t, env.svc.CheckQuota(env.ctx, env.orgID, 0), aiusagedomain.ErrInvalidAmount)

	env.record(t, 4, "")
	require.NoError(t, env.svc.CheckQuota(env.ctx, env.orgID, 6))
	require.ErrorIs(t, env.svc.CheckQuota(env.ctx, env.orgID, 7), aiusagedomain.ErrQuotaExceeded)
}

func TestQuotaLowNotification(t *testing.T) {
	env := newUsageTestEnv(t)
	env.limits.limits[plandomain.LimitAIMessagesPerMonth] = 10

	env.record(t, 8, "")
	require.Empty(t, env.notifier.created)

	// Crossing below ten percent of the allowance raises one notification.
	env.record(t, 1, "")
	require.Len(t, env.notifier.created, 1)
	require.Equal(t, notificationdomain.TypeQuotaLow, env.notifier.created[0].Type)

	env.record(t, 1, "")
	require.Len(t, env.notifier.created, 1)
}

func TestRolloverClosesDuePeriods(t *testing.T) {
	env := newUsageTestEnv(t)

	env.record(t, 3, "")

	// Still inside the window: nothing to close.
	closed, err := env.svc.Rollover(context.Background(), env.clk.Now(), 50)
	require.NoError(t, err)
	require.Zero(t, closed)

	env.clk.Advance(31 * 24 * time.Hour)
	closed, err = env.svc.Rollover(context.Background(), env.clk.Now(), 50)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	var period aiusagedomain.AIUsagePeriod
	require.NoError(t, env.db.First(&period, "org_id = ?", env.orgID).Error)
	require.Equal(t, aiusagedomain.PeriodStatusClosed, period.Status)
	require.NotNil(t, period.ClosedAt)

	// The next Record opens a fresh window.
	env.record(t, 1, "")
	quota, err := env.svc.Quota(env.ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, quota.MessagesUsed)
}

func TestRolloverBurnsTopUpsOldestFirst(t *testing.T) {
	env := newUsageTestEnv(t)
	env.limits.limits[plandomain.LimitAIMessagesPerMonth] = 10

	older := env.insertTopUp(t, 5, aiusagedomain.TopUpStatusCompleted)
	env.clk.Advance(time.Hour)
	newer := env.insertTopUp(t, 5, aiusagedomain.TopUpStatusCompleted)

	// 17 used against a plan limit of 10: 7 burns from purchased blocks.
	env.record(t, 17, "")

	env.clk.Advance(31 * 24 * time.Hour)
	closed, err := env.svc.Rollover(context.Background(), env.clk.Now(), 50)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	var burned aiusagedomain.TopUp
	require.NoError(t, env.db.First(&burned, "id = ?", older.ID).Error)
	require.EqualValues(t, 0, burned.MessageRemaining)
	require.Equal(t, aiusagedomain.TopUpStatusConsumed, burned.Status)

	var partial aiusagedomain.TopUp
	require.NoError(t, env.db.First(&partial, "id = ?", newer.ID).Error)
	require.EqualValues(t, 3, partial.MessageRemaining)
	require.Equal(t, aiusagedomain.TopUpStatusCompleted, partial.Status)
}

func TestCreateTopUpCheckout(t *testing.T) {
	env := newUsageTestEnv(t)

	resp, err := env.svc.CreateTopUpCheckout(env.ctx, aiusagedomain.CreateTopUpRequest{
		MessageAmount: 100,
		PriceCents:    500,
	})
	require.NoError(t, err)
	require.Equal(t, 1, env.checkout.sessions)
	require.Contains(t, resp.CheckoutURL, "checkout.stripe.com")
	require.Equal(t, string(aiusagedomain.TopUpStatusPending), resp.Status)

	_, err = env.svc.CreateTopUpCheckout(env.ctx, aiusagedomain.CreateTopUpRequest{
		MessageAmount: 0,
		PriceCents:    500,
	})
	require.ErrorIs(t, err, aiusagedomain.ErrInvalidAmount)
}

func TestApplyTopUpCompleted(t *testing.T) {
	env := newUsageTestEnv(t)

	resp, err := env.svc.CreateTopUpCheckout(env.ctx, aiusagedomain.CreateTopUpRequest{
		MessageAmount: 100,
		PriceCents:    500,
	})
	require.NoError(t, err)

	var topUp aiusagedomain.TopUp
	require.NoError(t, env.db.First(&topUp, "org_id = ?", env.orgID).Error)
	require.NotNil(t, topUp.ProviderSessionID)

	require.NoError(t, env.svc.ApplyTopUpCompleted(context.Background(), *topUp.ProviderSessionID))

	// Webhook retries are harmless.
	require.NoError(t, env.svc.ApplyTopUpCompleted(context.Background(), *topUp.ProviderSessionID))

	topUps, err := env.svc.ListTopUps(env.ctx)
	require.NoError(t, err)
	require.Len(t, topUps.TopUps, 1)
	require.Equal(t, string(aiusagedomain.TopUpStatusCompleted), topUps.TopUps[0].Status)
	require.Equal(t, resp.ID, topUps.TopUps[0].ID)

	require.ErrorIs(t, env.svc.ApplyTopUpCompleted(context.Background(), "cs_unknown"), aiusagedomain.ErrTopUpNotFound)
}

func TestTopUpReceipt(t *testing.T) {
	env := newUsageTestEnv(t)

	resp, err := env.svc.CreateTopUpCheckout(env.ctx, aiusagedomain.CreateTopUpRequest{
		MessageAmount: 100,
		PriceCents:    500,
	})
	require.NoError(t, err)

	// Unpaid top-ups have no receipt.
	_, err = env.svc.TopUpReceipt(env.ctx, resp.ID)
	require.ErrorIs(t, err, aiusagedomain.ErrTopUpNotPaid)

	var topUp aiusagedomain.TopUp
	require.NoError(t, env.db.First(&topUp, "org_id = ?", env.orgID).Error)
	require.NoError(t, env.svc.ApplyTopUpCompleted(context.Background(), *topUp.ProviderSessionID))

	pdfBytes, err := env.svc.TopUpReceipt(env.ctx, resp.ID)
	require.NoError(t, err)
	require.Contains(t, string(pdfBytes), "%PDF")

	_, err = env.svc.TopUpReceipt(env.ctx, env.genID.Generate().String())
	require.ErrorIs(t, err, aiusagedomain.ErrTopUpNotFound)
}

func TestListUsageFiltersByFeature(t *testing.T) {
	env := newUsageTestEnv(t)

	env.record(t, 1, "")
	_, err := env.svc.Record(env.ctx, aiusagedomain.RecordUsageRequest{
		Feature: aiusagedomain.FeatureDraft,
	})
	require.NoError(t, err)

	all, err := env.svc.ListUsage(env.ctx, aiusagedomain.ListUsageRequest{})
	require.NoError(t, err)
	require.Len(t, all.Records, 2)

	drafts, err := env.svc.ListUsage(env.ctx, aiusagedomain.ListUsageRequest{Feature: aiusagedomain.FeatureDraft})
	require.NoError(t, err)
	require.Len(t, drafts.Records, 1)
	require.Equal(t, aiusagedomain.FeatureDraft, drafts.Records[0].Feature)

	_, err = env.svc.ListUsage(env.ctx, aiusagedomain.ListUsageRequest{Feature: "telepathy"})
	require.ErrorIs(t, err, aiusagedomain.ErrInvalidFeature)
}
