package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aware88/fresh-crm/internal/aiusage"
	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	"github.com/aware88/fresh-crm/internal/apikey"
	apikeydomain "github.com/aware88/fresh-crm/internal/apikey/domain"
	apikeyscope "github.com/aware88/fresh-crm/internal/apikey/scope"
	"github.com/aware88/fresh-crm/internal/audit"
	"github.com/aware88/fresh-crm/internal/authorization"
	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	"github.com/aware88/fresh-crm/internal/config"
	"github.com/aware88/fresh-crm/internal/contact"
	"github.com/aware88/fresh-crm/internal/emailaccount"
	"github.com/aware88/fresh-crm/internal/feature"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	"github.com/aware88/fresh-crm/internal/lead"
	"github.com/aware88/fresh-crm/internal/migration"
	"github.com/aware88/fresh-crm/internal/notification"
	"github.com/aware88/fresh-crm/internal/observability"
	"github.com/aware88/fresh-crm/internal/organization"
	organizationdomain "github.com/aware88/fresh-crm/internal/organization/domain"
	"github.com/aware88/fresh-crm/internal/orgsettings"
	"github.com/aware88/fresh-crm/internal/payment"
	"github.com/aware88/fresh-crm/internal/pipeline"
	"github.com/aware88/fresh-crm/internal/plan"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	emailprovider "github.com/aware88/fresh-crm/internal/providers/email"
	pdfprovider "github.com/aware88/fresh-crm/internal/providers/pdf"
	"github.com/aware88/fresh-crm/internal/ratelimit"
	"github.com/aware88/fresh-crm/internal/reference"
	"github.com/aware88/fresh-crm/internal/secrets"
	"github.com/aware88/fresh-crm/internal/seed"
	"github.com/aware88/fresh-crm/internal/server"
	"github.com/aware88/fresh-crm/internal/subscription"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/aware88/fresh-crm/internal/webhook"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app        *fx.App
	server     *server.Server
	db         *gorm.DB
	genID      *snowflake.Node
	featureSvc featuredomain.Service
	webhookSvc webhookdomain.Service
	baseURL    string
	httpSrv    *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	var (
		srv        *server.Server
		dbConn     *gorm.DB
		cfg        config.Config
		genID      *snowflake.Node
		featureSvc featuredomain.Service
		webhookSvc webhookdomain.Service
	)

	app := fx.New(
		observability.Module,
		config.Module,
		db.Module,
		clock.Module,
		cloudmetrics.Module,
		secrets.Module,
		authorization.Module,
		audit.Module,
		apikey.Module,
		organization.Module,
		plan.Module,
		subscription.Module,
		feature.Module,
		payment.Module,
		contact.Module,
		lead.Module,
		pipeline.Module,
		webhook.Module,
		notification.Module,
		emailaccount.Module,
		orgsettings.Module,
		aiusage.Module,
		emailprovider.Module,
		pdfprovider.Module,
		reference.Module,
		ratelimit.Module,
		migration.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &cfg, &genID, &featureSvc, &webhookSvc),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	if strings.ToLower(strings.TrimSpace(cfg.DBType)) != "postgres" {
		_ = app.Stop(context.Background())
		return nil, fmt.Errorf("expected postgres db, got %s", cfg.DBType)
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:        app,
		server:     srv,
		db:         dbConn,
		genID:      genID,
		featureSvc: featureSvc,
		webhookSvc: webhookSvc,
		baseURL:    httpSrv.URL,
		httpSrv:    httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func TestE2E_HealthCheck(t *testing.T) {
	resetDatabase(t)

	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_APIKeyAuthentication(t *testing.T) {
	resetDatabase(t)
	orgID := defaultOrgID(t)
	key := insertAPIKey(t, orgID, apikeyscope.All())

	resp, body := doJSON(t, http.MethodGet, "/api/contacts", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing contacts, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, "/api/contacts", nil, "fc_live_key_invalid")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid key, got %d", resp.StatusCode)
	}

	readOnly := insertAPIKey(t, orgID, []string{string(apikeyscope.ScopeContactView)})
	resp, _ = doJSON(t, http.MethodPost, "/api/contacts", map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
	}, readOnly)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for out-of-scope key, got %d", resp.StatusCode)
	}
}

func TestE2E_ContactLifecycle(t *testing.T) {
	resetDatabase(t)
	orgID := defaultOrgID(t)
	key := insertAPIKey(t, orgID, apikeyscope.All())

	created := createContact(t, key, "Grace", "Hopper", "grace@example.com", "Navy Systems")

	resp, body := doJSON(t, http.MethodGet, "/api/contacts/"+created.ID, nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 getting contact, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPatch, "/api/contacts/"+created.ID, map[string]any{
		"company": "Eckert-Mauchly",
	}, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 updating contact, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, "/api/contacts/"+created.ID+"/interactions", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 recording interaction, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/contacts?search=Grace", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 searching contacts, got %d: %s", resp.StatusCode, body)
	}
	var list struct {
		Data []contactPayload `json:"data"`
	}
	decode(t, body, &list)
	if len(list.Data) != 1 || list.Data[0].ID != created.ID {
		t.Fatalf("expected the created contact in search results, got %s", body)
	}
	if list.Data[0].InteractionCount != 1 {
		t.Fatalf("expected interaction_count 1, got %d", list.Data[0].InteractionCount)
	}

	resp, _ = doJSON(t, http.MethodDelete, "/api/contacts/"+created.ID, nil, key)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 deleting contact, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, "/api/contacts/"+created.ID, nil, key)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestE2E_LeadScoringPlanGate(t *testing.T) {
	resetDatabase(t)
	orgID := defaultOrgID(t)
	key := insertAPIKey(t, orgID, apikeyscope.All())

	created := createContact(t, key, "Linus", "Torvalds", "linus@kernel.example", "Kernel Inc")

	resp, body := doJSON(t, http.MethodPost, "/api/contacts/"+created.ID+"/score", nil, key)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 scoring on starter plan, got %d: %s", resp.StatusCode, body)
	}

	subscribeOrg(t, orgID, plandomain.TierPro)

	resp, body = doJSON(t, http.MethodPost, "/api/contacts/"+created.ID+"/score", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 scoring on pro plan, got %d: %s", resp.StatusCode, body)
	}
	var scored struct {
		Data struct {
			ContactID     string `json:"contact_id"`
			Score         int    `json:"score"`
			Qualification string `json:"qualification"`
		} `json:"data"`
	}
	decode(t, body, &scored)
	if scored.Data.Score < 0 || scored.Data.Score > 100 {
		t.Fatalf("score out of range: %d", scored.Data.Score)
	}
	if scored.Data.Qualification == "" {
		t.Fatalf("expected a qualification, got %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/contacts/"+created.ID+"/score", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 reading score, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/lead-scores", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing scores, got %d: %s", resp.StatusCode, body)
	}
}

func TestE2E_PipelineFlow(t *testing.T) {
	resetDatabase(t)
	orgID := defaultOrgID(t)
	key := insertAPIKey(t, orgID, apikeyscope.All())
	subscribeOrg(t, orgID, plandomain.TierPro)

	resp, body := doJSON(t, http.MethodGet, "/api/pipeline/stages", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing stages, got %d: %s", resp.StatusCode, body)
	}
	var stages struct {
		Data []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			IsWon bool   `json:"is_won"`
		} `json:"data"`
	}
	decode(t, body, &stages)
	if len(stages.Data) != 6 {
		t.Fatalf("expected 6 seeded stages, got %d", len(stages.Data))
	}

	var leadStageID, wonStageID string
	for _, stage := range stages.Data {
		if stage.Name == "Lead" {
			leadStageID = stage.ID
		}
		if stage.IsWon {
			wonStageID = stage.ID
		}
	}
	if leadStageID == "" || wonStageID == "" {
		t.Fatalf("seeded stages missing Lead or Won: %s", body)
	}

	contact := createContact(t, key, "Margaret", "Hamilton", "margaret@apollo.example", "MIT")

	resp, body = doJSON(t, http.MethodPost, "/api/opportunities", map[string]any{
		"contact_id":  contact.ID,
		"title":       "Guidance computer contract",
		"value_cents": 2500000,
		"currency":    "usd",
		"stage_id":    leadStageID,
	}, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 creating opportunity, got %d: %s", resp.StatusCode, body)
	}
	var opp struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	decode(t, body, &opp)
	if opp.Data.Status != "open" {
		t.Fatalf("expected open opportunity, got %s", opp.Data.Status)
	}

	resp, body = doJSON(t, http.MethodPost, "/api/opportunities/"+opp.Data.ID+"/move", map[string]any{
		"stage_id": wonStageID,
	}, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 moving opportunity, got %d: %s", resp.StatusCode, body)
	}
	decode(t, body, &opp)
	if opp.Data.Status != "won" {
		t.Fatalf("expected won after moving to won stage, got %s", opp.Data.Status)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/pipeline/metrics", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 pipeline metrics on pro plan, got %d: %s", resp.StatusCode, body)
	}
}

func TestE2E_WebhookDelivery(t *testing.T) {
	resetDatabase(t)
	orgID := defaultOrgID(t)
	key := insertAPIKey(t, orgID, apikeyscope.All())

	subscribeOrg(t, orgID, plandomain.TierPro)
	resp, body := doJSON(t, http.MethodPost, "/api/webhooks", map[string]any{
		"url":         "https://example.com/hook",
		"secret":      "a-very-long-shared-secret",
		"event_types": []string{"contact.created"},
	}, key)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 configuring webhooks on pro plan, got %d: %s", resp.StatusCode, body)
	}

	subscribeOrg(t, orgID, plandomain.TierPremium)

	var received atomic.Int64
	var gotSignature atomic.Bool
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		if strings.TrimSpace(r.Header.Get("X-Webhook-Signature")) != "" {
			gotSignature.Store(true)
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	resp, body = doJSON(t, http.MethodPost, "/api/webhooks", map[string]any{
		"url":         receiver.URL,
		"secret":      "a-very-long-shared-secret",
		"event_types": []string{"contact.created"},
	}, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 configuring webhook on premium plan, got %d: %s", resp.StatusCode, body)
	}

	createContact(t, key, "Barbara", "Liskov", "barbara@mit.example", "MIT")

	ctx := context.Background()
	if _, err := env.webhookSvc.DeliverDue(ctx, time.Now().UTC().Add(time.Minute), 50); err != nil {
		t.Fatalf("deliver due: %v", err)
	}

	if received.Load() == 0 {
		t.Fatalf("expected the receiver to get a delivery")
	}
	if !gotSignature.Load() {
		t.Fatalf("expected deliveries to carry a signature header")
	}

	resp, body = doJSON(t, http.MethodGet, "/api/webhook-deliveries?status=delivered", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing deliveries, got %d: %s", resp.StatusCode, body)
	}
	var deliveries struct {
		Data []struct {
			EventType string `json:"event_type"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	decode(t, body, &deliveries)
	if len(deliveries.Data) == 0 {
		t.Fatalf("expected at least one delivered webhook, got %s", body)
	}
}

func TestE2E_AIUsageQuota(t *testing.T) {
	resetDatabase(t)
	orgID := defaultOrgID(t)
	key := insertAPIKey(t, orgID, apikeyscope.All())

	record := map[string]any{
		"feature":         aiusagedomain.FeatureChat,
		"message_count":   3,
		"token_count":     1200,
		"idempotency_key": "e2e-usage-1",
	}
	resp, body := doJSON(t, http.MethodPost, "/api/ai/usage", record, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 recording usage, got %d: %s", resp.StatusCode, body)
	}

	// A replay with the same idempotency key must not double count.
	resp, body = doJSON(t, http.MethodPost, "/api/ai/usage", record, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 replaying usage, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/ai/quota", nil, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 reading quota, got %d: %s", resp.StatusCode, body)
	}
	var quota struct {
		Data aiusagedomain.QuotaResponse `json:"data"`
	}
	decode(t, body, &quota)
	if quota.Data.MessagesUsed != 3 {
		t.Fatalf("expected 3 messages used, got %d", quota.Data.MessagesUsed)
	}
	if quota.Data.PlanLimit != 50 {
		t.Fatalf("expected starter plan limit 50, got %d", quota.Data.PlanLimit)
	}
	if quota.Data.Remaining != 47 {
		t.Fatalf("expected 47 remaining, got %d", quota.Data.Remaining)
	}
}

type contactPayload struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name"`
	InteractionCount int64  `json:"interaction_count"`
}

func createContact(t *testing.T, key, first, last, email, company string) contactPayload {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, "/api/contacts", map[string]any{
		"first_name": first,
		"last_name":  last,
		"email":      email,
		"company":    company,
	}, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create contact failed: %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Data contactPayload `json:"data"`
	}
	decode(t, body, &payload)
	if payload.Data.ID == "" {
		t.Fatalf("expected contact id in response: %s", body)
	}
	return payload.Data
}

func defaultOrgID(t *testing.T) snowflake.ID {
	t.Helper()

	var org organizationdomain.Organization
	if err := env.db.Where("slug = ?", "main").First(&org).Error; err != nil {
		t.Fatalf("query default org: %v", err)
	}
	return org.ID
}

func insertAPIKey(t *testing.T, orgID snowflake.ID, scopes []string) string {
	t.Helper()

	id := env.genID.Generate()
	keyID := "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
	plain := fmt.Sprintf("fc_live_key_%s_%d", keyID, time.Now().UnixNano())
	now := time.Now().UTC()

	key := apikeydomain.APIKey{
		ID:        id,
		OrgID:     orgID,
		KeyID:     keyID,
		Name:      "e2e",
		Scopes:    pq.StringArray(scopes),
		KeyHash:   apikeydomain.HashAPIKey(plain),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := env.db.Create(&key).Error; err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	return plain
}

func subscribeOrg(t *testing.T, orgID snowflake.ID, planSlug string) {
	t.Helper()

	var plan plandomain.SubscriptionPlan
	if err := env.db.Where("slug = ?", planSlug).First(&plan).Error; err != nil {
		t.Fatalf("query plan %s: %v", planSlug, err)
	}

	now := time.Now().UTC()
	if err := env.db.Exec(
		`DELETE FROM organization_subscriptions WHERE org_id = ?`, orgID,
	).Error; err != nil {
		t.Fatalf("clear subscriptions: %v", err)
	}

	sub := subscriptiondomain.OrganizationSubscription{
		ID:                     env.genID.Generate(),
		OrgID:                  orgID,
		PlanID:                 plan.ID,
		Provider:               "stripe",
		ProviderSubscriptionID: fmt.Sprintf("sub_e2e_%d", env.genID.Generate()),
		Status:                 subscriptiondomain.SubscriptionStatusActive,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := env.db.Create(&sub).Error; err != nil {
		t.Fatalf("insert subscription: %v", err)
	}
	env.featureSvc.Invalidate(orgID)
}

func resetDatabase(t *testing.T) {
	t.Helper()
	if err := truncateAllTables(env.db); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if err := seed.EnsureDefaults(env.db); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}
	env.featureSvc.Invalidate(defaultOrgID(t))
}

func truncateAllTables(dbConn *gorm.DB) error {
	type tableRow struct {
		Name string `gorm:"column:tablename"`
	}
	var rows []tableRow
	if err := dbConn.Raw(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`,
	).Scan(&rows).Error; err != nil {
		return err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Name) == "" {
			continue
		}
		tables = append(tables, `"`+row.Name+`"`)
	}
	if len(tables) == 0 {
		return nil
	}

	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	return dbConn.Exec(stmt).Error
}

func doJSON(t *testing.T, method, path string, payload any, apiKey string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, body
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response %s: %v", body, err)
	}
}
