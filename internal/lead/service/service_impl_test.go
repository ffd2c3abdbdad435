package service

import (
	"context"
	"testing"
	"time"

	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/config"
	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
	contactrepo "github.com/aware88/fresh-crm/internal/contact/repository"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	leadrepo "github.com/aware88/fresh-crm/internal/lead/repository"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeFeatures struct {
	enabled map[string]bool
}

func (f *fakeFeatures) IsEnabled(_ context.Context, _ snowflake.ID, code string) (bool, error) {
	return f.enabled[code], nil
}

func (f *fakeFeatures) Entitlements(context.Context, snowflake.ID) (*subscriptiondomain.Entitlement, error) {
	return nil, nil
}

func (f *fakeFeatures) Limit(context.Context, snowflake.ID, string) (int64, bool, error) {
	return 0, false, nil
}

func (f *fakeFeatures) Invalidate(snowflake.ID) {}

type capturedEvent struct {
	eventType string
	payload   map[string]any
}

type fakeEmitter struct {
	events []capturedEvent
}

func (f *fakeEmitter) Emit(_ context.Context, _ snowflake.ID, eventType string, payload map[string]any) error {
	f.events = append(f.events, capturedEvent{eventType: eventType, payload: payload})
	return nil
}

func (f *fakeEmitter) ofType(eventType string) []capturedEvent {
	var out []capturedEvent
	for _, ev := range f.events {
		if ev.eventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fakeNotifier struct {
	created []notificationdomain.CreateNotificationRequest
}

func (f *fakeNotifier) Create(_ context.Context, req notificationdomain.CreateNotificationRequest) (*notificationdomain.NotificationResponse, error) {
	f.created = append(f.created, req)
	return &notificationdomain.NotificationResponse{}, nil
}

func (f *fakeNotifier) List(context.Context, notificationdomain.ListNotificationsRequest) (*notificationdomain.ListNotificationsResponse, error) {
	return nil, nil
}

func (f *fakeNotifier) MarkRead(context.Context, string) error     { return nil }
func (f *fakeNotifier) MarkAllRead(context.Context) (int64, error) { return 0, nil }

type leadTestEnv struct {
	svc      leaddomain.Service
	db       *gorm.DB
	genID    *snowflake.Node
	clk      *clock.FakeClock
	orgID    snowflake.ID
	ctx      context.Context
	features *fakeFeatures
	emitter  *fakeEmitter
	notifier *fakeNotifier
}

func newLeadTestEnv(t *testing.T) *leadTestEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&contactdomain.Contact{},
		&leaddomain.LeadScore{},
		&pipelinedomain.SalesOpportunity{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	features := &fakeFeatures{enabled: map[string]bool{featuredomain.CodeLeadScoring: true}}
	emitter := &fakeEmitter{}
	notifier := &fakeNotifier{}

	orgID := node.Generate()
	svc := NewService(Params{
		DB:          gdb,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        leadrepo.Provide(),
		ContactRepo: contactrepo.Provide(),
		Scoring:     config.NewStaticScoringConfigHolder(config.DefaultScoringConfig()),
		Clock:       clk,
		Features:    features,
		Emitter:     emitter,
		Notifier:    notifier,
	})

	return &leadTestEnv{
		svc:      svc,
		db:       gdb,
		genID:    node,
		clk:      clk,
		orgID:    orgID,
		ctx:      orgcontext.WithOrgID(context.Background(), int64(orgID)),
		features: features,
		emitter:  emitter,
		notifier: notifier,
	}
}

func strptr(s string) *string { return &s }

func (env *leadTestEnv) insertContact(t *testing.T, mutate func(*contactdomain.Contact)) *contactdomain.Contact {
	t.Helper()
	now := env.clk.Now()
	contact := &contactdomain.Contact{
		ID:        env.genID.Generate(),
		OrgID:     env.orgID,
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     strptr("jane@acme.io"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(contact)
	}
	require.NoError(t, env.db.Create(contact).Error)
	return contact
}

func TestCalculateScorePersistsSingleRow(t *testing.T) {
	env := newLeadTestEnv(t)
	contact := env.insertContact(t, nil)

	first, err := env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.NoError(t, err)
	require.Equal(t, contact.ID.String(), first.ContactID)
	require.Equal(t, 20, first.Score)
	require.Equal(t, leaddomain.QualificationCold, first.Qualification)

	// Enrich and recalculate; the row is replaced, not duplicated.
	require.NoError(t, env.db.Model(contact).Updates(map[string]any{
		"company":  "Acme",
		"position": "CTO",
		"phone":    "+15551234",
	}).Error)

	second, err := env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.NoError(t, err)
	require.Equal(t, 50, second.Score)
	require.Equal(t, leaddomain.QualificationWarm, second.Qualification)

	var count int64
	require.NoError(t, env.db.Model(&leaddomain.LeadScore{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCalculateScoreCountsOpenOpportunities(t *testing.T) {
	env := newLeadTestEnv(t)
	contact := env.insertContact(t, nil)

	contactID := contact.ID
	require.NoError(t, env.db.Create(&pipelinedomain.SalesOpportunity{
		ID:         env.genID.Generate(),
		OrgID:      env.orgID,
		ContactID:  &contactID,
		Title:      "Enterprise deal",
		ValueCents: 2_500_000,
		StageID:    env.genID.Generate(),
		Status:     pipelinedomain.OpportunityOpen,
		CreatedAt:  env.clk.Now(),
		UpdatedAt:  env.clk.Now(),
	}).Error)

	resp, err := env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.NoError(t, err)
	// 20 email + 10 open + 10 high value.
	require.Equal(t, 40, resp.Score)
}

func TestCalculateScoreContactNotFound(t *testing.T) {
	env := newLeadTestEnv(t)

	_, err := env.svc.CalculateScore(env.ctx, "not-a-snowflake")
	require.ErrorIs(t, err, leaddomain.ErrContactNotFound)

	_, err = env.svc.CalculateScore(env.ctx, env.genID.Generate().String())
	require.ErrorIs(t, err, leaddomain.ErrContactNotFound)
}

func TestCalculateScoreRequiresPlanFeature(t *testing.T) {
	env := newLeadTestEnv(t)
	contact := env.insertContact(t, nil)

	_, err := env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.NoError(t, err)

	// Downgrade: recalculation is refused but history stays readable.
	env.features.enabled[featuredomain.CodeLeadScoring] = false

	_, err = env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.ErrorIs(t, err, leaddomain.ErrScoringNotEnabled)

	score, err := env.svc.GetScore(env.ctx, contact.ID.String())
	require.NoError(t, err)
	require.Equal(t, contact.ID.String(), score.ContactID)
}

func TestCalculateScoreEmitsQualifiedOnceOnHotTransition(t *testing.T) {
	env := newLeadTestEnv(t)
	contact := env.insertContact(t, func(c *contactdomain.Contact) {
		c.Company = strptr("Acme")
		c.Position = strptr("CTO")
		c.Phone = strptr("+15551234")
		c.InteractionCount = 6
		last := env.clk.Now().Add(-24 * time.Hour)
		c.LastInteractionAt = &last
	})

	resp, err := env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.NoError(t, err)
	require.Equal(t, leaddomain.QualificationHot, resp.Qualification)

	require.Len(t, env.emitter.ofType("lead.scored"), 1)
	require.Len(t, env.emitter.ofType("lead.qualified"), 1)
	require.Len(t, env.notifier.created, 1)
	require.Equal(t, notificationdomain.TypeLeadHot, env.notifier.created[0].Type)

	// A second run while already hot does not re-announce.
	_, err = env.svc.CalculateScore(env.ctx, contact.ID.String())
	require.NoError(t, err)
	require.Len(t, env.emitter.ofType("lead.scored"), 2)
	require.Len(t, env.emitter.ofType("lead.qualified"), 1)
	require.Len(t, env.notifier.created, 1)
}

func TestGetScoreNotFound(t *testing.T) {
	env := newLeadTestEnv(t)
	contact := env.insertContact(t, nil)

	_, err := env.svc.GetScore(env.ctx, contact.ID.String())
	require.ErrorIs(t, err, leaddomain.ErrScoreNotFound)
}

func TestListScoresFiltersByQualificationAndMinScore(t *testing.T) {
	env := newLeadTestEnv(t)

	cold := env.insertContact(t, func(c *contactdomain.Contact) { c.Email = nil })
	warm := env.insertContact(t, func(c *contactdomain.Contact) {
		c.Company = strptr("Acme")
		c.Position = strptr("CTO")
		c.Phone = strptr("+15551234")
	})
	for _, id := range []snowflake.ID{cold.ID, warm.ID} {
		_, err := env.svc.CalculateScore(env.ctx, id.String())
		require.NoError(t, err)
	}

	all, err := env.svc.ListScores(env.ctx, leaddomain.ListScoresRequest{})
	require.NoError(t, err)
	require.Len(t, all.Scores, 2)

	warmOnly, err := env.svc.ListScores(env.ctx, leaddomain.ListScoresRequest{Qualification: "warm"})
	require.NoError(t, err)
	require.Len(t, warmOnly.Scores, 1)
	require.Equal(t, warm.ID.String(), warmOnly.Scores[0].ContactID)

	highOnly, err := env.svc.ListScores(env.ctx, leaddomain.ListScoresRequest{MinScore: 40})
	require.NoError(t, err)
	require.Len(t, highOnly.Scores, 1)

	_, err = env.svc.ListScores(env.ctx, leaddomain.ListScoresRequest{Qualification: "sizzling"})
	require.ErrorIs(t, err, leaddomain.ErrInvalidQualification)
}

func TestBulkCalculateScoresCollectsFailures(t *testing.T) {
	env := newLeadTestEnv(t)
	a := env.insertContact(t, nil)
	b := env.insertContact(t, nil)

	result, err := env.svc.BulkCalculateScores(env.ctx, []string{
		a.ID.String(),
		"garbage",
		b.ID.String(),
		env.genID.Generate().String(),
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Calculated)
	require.Len(t, result.Failed, 2)
}

func TestRecalculateStaleSkipsFreshScores(t *testing.T) {
	env := newLeadTestEnv(t)
	stale := env.insertContact(t, nil)
	fresh := env.insertContact(t, nil)

	_, err := env.svc.CalculateScore(env.ctx, stale.ID.String())
	require.NoError(t, err)

	env.clk.Advance(48 * time.Hour)
	_, err = env.svc.CalculateScore(env.ctx, fresh.ID.String())
	require.NoError(t, err)

	cutoff := env.clk.Now().Add(-24 * time.Hour)
	recomputed, err := env.svc.RecalculateStale(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Equal(t, 1, recomputed)
}
