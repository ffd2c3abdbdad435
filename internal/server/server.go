package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aware88/fresh-crm/internal/aiusage"
	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	"github.com/aware88/fresh-crm/internal/apikey"
	apikeydomain "github.com/aware88/fresh-crm/internal/apikey/domain"
	"github.com/aware88/fresh-crm/internal/audit"
	auditdomain "github.com/aware88/fresh-crm/internal/audit/domain"
	"github.com/aware88/fresh-crm/internal/authorization"
	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	"github.com/aware88/fresh-crm/internal/config"
	"github.com/aware88/fresh-crm/internal/contact"
	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
	"github.com/aware88/fresh-crm/internal/emailaccount"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
	"github.com/aware88/fresh-crm/internal/feature"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	"github.com/aware88/fresh-crm/internal/lead"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	"github.com/aware88/fresh-crm/internal/notification"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/observability"
	obsmiddleware "github.com/aware88/fresh-crm/internal/observability/logger"
	obsmetrics "github.com/aware88/fresh-crm/internal/observability/metrics"
	obstracing "github.com/aware88/fresh-crm/internal/observability/tracing"
	"github.com/aware88/fresh-crm/internal/organization"
	organizationdomain "github.com/aware88/fresh-crm/internal/organization/domain"
	"github.com/aware88/fresh-crm/internal/orgsettings"
	orgsettingsdomain "github.com/aware88/fresh-crm/internal/orgsettings/domain"
	"github.com/aware88/fresh-crm/internal/payment"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	"github.com/aware88/fresh-crm/internal/pipeline"
	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
	"github.com/aware88/fresh-crm/internal/plan"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	"github.com/aware88/fresh-crm/internal/providers"
	"github.com/aware88/fresh-crm/internal/ratelimit"
	"github.com/aware88/fresh-crm/internal/reference"
	referencedomain "github.com/aware88/fresh-crm/internal/reference/domain"
	"github.com/aware88/fresh-crm/internal/secrets"
	"github.com/aware88/fresh-crm/internal/subscription"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/aware88/fresh-crm/internal/webhook"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	cloudmetrics.Module,
	fx.Provide(registerGin),
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
	providers.Module,
	reference.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	apiKeySvc     apikeydomain.Service
	apiKeyLimiter *rateLimiter
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service

	organizationSvc organizationdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	featureSvc      featuredomain.Service
	paymentSvc      paymentdomain.Service
	checkoutClient  paymentdomain.CheckoutClient
	contactSvc      contactdomain.Service
	leadSvc         leaddomain.Service
	pipelineSvc     pipelinedomain.Service
	webhookSvc      webhookdomain.Service
	notificationSvc notificationdomain.Service
	emailAccountSvc emailaccountdomain.Service
	orgSettingsSvc  orgsettingsdomain.Service
	aiUsageSvc      aiusagedomain.Service
	refrepo         referencedomain.Repository

	obsMetrics *obsmetrics.Metrics
	aiLimiter  *ratelimit.AIUsageLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	APIKeySvc apikeydomain.Service
	AuthzSvc  authorization.Service
	AuditSvc  auditdomain.Service

	OrganizationSvc organizationdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	FeatureSvc      featuredomain.Service
	PaymentSvc      paymentdomain.Service
	CheckoutClient  paymentdomain.CheckoutClient
	ContactSvc      contactdomain.Service
	LeadSvc         leaddomain.Service
	PipelineSvc     pipelinedomain.Service
	WebhookSvc      webhookdomain.Service
	NotificationSvc notificationdomain.Service
	EmailAccountSvc emailaccountdomain.Service
	OrgSettingsSvc  orgsettingsdomain.Service
	AIUsageSvc      aiusagedomain.Service
	Refrepo         referencedomain.Repository

	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
	AILimiter  *ratelimit.AIUsageLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		apiKeySvc:       p.APIKeySvc,
		apiKeyLimiter:   newRateLimiter(5, 10*time.Minute),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		featureSvc:      p.FeatureSvc,
		paymentSvc:      p.PaymentSvc,
		checkoutClient:  p.CheckoutClient,
		contactSvc:      p.ContactSvc,
		leadSvc:         p.LeadSvc,
		pipelineSvc:     p.PipelineSvc,
		webhookSvc:      p.WebhookSvc,
		notificationSvc: p.NotificationSvc,
		emailAccountSvc: p.EmailAccountSvc,
		orgSettingsSvc:  p.OrgSettingsSvc,
		aiUsageSvc:      p.AIUsageSvc,
		refrepo:         p.Refrepo,
		obsMetrics:      p.ObsMetrics,
		aiLimiter:       p.AILimiter,
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerPublicRoutes wires endpoints reachable without an API key:
// reference data and inbound provider webhooks, which carry their own
// signature verification.
func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.GET("/countries", s.ListCountries)
	api.GET("/timezones", s.ListTimezones)
	api.GET("/currencies", s.ListCurrencies)

	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired())

	// -------- Organization --------
	api.POST("/organizations", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationManage), s.CreateOrganization)
	api.GET("/organization", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganization)
	api.PATCH("/organization", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationManage), s.UpdateOrganization)
	api.GET("/organization/members", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationMembers), s.ListMembers)
	api.POST("/organization/members", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationMembers), s.AddMember)
	api.DELETE("/organization/members/:member_id", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationMembers), s.RemoveMember)

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)
	api.GET("/plans/:id", s.GetPlanByID)
	api.POST("/plans", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.CreatePlan)
	api.PATCH("/plans/:id", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.UpdatePlan)
	api.POST("/plans/:id/deactivate", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.DeactivatePlan)

	// -------- Billing --------
	api.GET("/billing/subscription", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingView), s.GetCurrentSubscription)
	api.GET("/billing/subscriptions", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingView), s.ListSubscriptions)
	api.GET("/billing/entitlements", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingView), s.GetEntitlements)
	api.POST("/billing/checkout", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.CreateSubscriptionCheckout)
	api.POST("/billing/subscription/cancel", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.CancelSubscription)

	// -------- Contacts --------
	api.GET("/contacts", s.authorizeOrgAction(authorization.ObjectContact, authorization.ActionContactView), s.ListContacts)
	api.POST("/contacts", s.authorizeOrgAction(authorization.ObjectContact, authorization.ActionContactCreate), s.CreateContact)
	api.GET("/contacts/:id", s.authorizeOrgAction(authorization.ObjectContact, authorization.ActionContactView), s.GetContactByID)
	api.PATCH("/contacts/:id", s.authorizeOrgAction(authorization.ObjectContact, authorization.ActionContactUpdate), s.UpdateContact)
	api.DELETE("/contacts/:id", s.authorizeOrgAction(authorization.ObjectContact, authorization.ActionContactDelete), s.DeleteContact)
	api.POST("/contacts/:id/interactions", s.authorizeOrgAction(authorization.ObjectContact, authorization.ActionContactUpdate), s.RecordContactInteraction)

	// -------- Lead scores --------
	api.GET("/contacts/:id/score", s.authorizeOrgAction(authorization.ObjectLeadScore, authorization.ActionLeadScoreView), s.GetLeadScore)
	api.POST("/contacts/:id/score", s.authorizeOrgAction(authorization.ObjectLeadScore, authorization.ActionLeadScoreCalculate), s.CalculateLeadScore)
	api.GET("/lead-scores", s.authorizeOrgAction(authorization.ObjectLeadScore, authorization.ActionLeadScoreView), s.ListLeadScores)
	api.POST("/lead-scores/bulk", s.authorizeOrgAction(authorization.ObjectLeadScore, authorization.ActionLeadScoreCalculate), s.BulkCalculateLeadScores)

	// -------- Pipeline --------
	api.GET("/pipeline/stages", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionPipelineView), s.ListStages)
	api.POST("/pipeline/stages", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionPipelineManage), s.CreateStage)
	api.PATCH("/pipeline/stages/:id", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionPipelineManage), s.UpdateStage)
	api.DELETE("/pipeline/stages/:id", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionPipelineManage), s.DeleteStage)
	api.GET("/pipeline/metrics", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionPipelineView), s.GetPipelineMetrics)

	// -------- Opportunities --------
	api.GET("/opportunities", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityView), s.ListOpportunities)
	api.POST("/opportunities", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityCreate), s.CreateOpportunity)
	api.GET("/opportunities/:id", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityView), s.GetOpportunityByID)
	api.PATCH("/opportunities/:id", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityUpdate), s.UpdateOpportunity)
	api.DELETE("/opportunities/:id", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityDelete), s.DeleteOpportunity)
	api.POST("/opportunities/:id/move", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityMove), s.MoveOpportunityStage)
	api.POST("/opportunities/bulk", s.authorizeOrgAction(authorization.ObjectOpportunity, authorization.ActionOpportunityUpdate), s.BulkUpdateOpportunities)

	// -------- Webhooks --------
	api.GET("/webhooks", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookView), s.ListWebhookConfigs)
	api.POST("/webhooks", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookManage), s.CreateWebhookConfig)
	api.GET("/webhooks/:id", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookView), s.GetWebhookConfig)
	api.PATCH("/webhooks/:id", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookManage), s.UpdateWebhookConfig)
	api.DELETE("/webhooks/:id", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookManage), s.DeleteWebhookConfig)
	api.POST("/webhooks/:id/test", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookTest), s.TestWebhookConfig)
	api.GET("/webhook-deliveries", s.authorizeOrgAction(authorization.ObjectWebhook, authorization.ActionWebhookView), s.ListWebhookDeliveries)

	// -------- Notifications --------
	api.GET("/notifications", s.authorizeOrgAction(authorization.ObjectNotification, authorization.ActionNotificationView), s.ListNotifications)
	api.POST("/notifications/:id/read", s.authorizeOrgAction(authorization.ObjectNotification, authorization.ActionNotificationManage), s.MarkNotificationRead)
	api.POST("/notifications/read-all", s.authorizeOrgAction(authorization.ObjectNotification, authorization.ActionNotificationManage), s.MarkAllNotificationsRead)

	// -------- Email accounts --------
	api.GET("/email-accounts", s.authorizeOrgAction(authorization.ObjectEmailAccount, authorization.ActionEmailAccountView), s.ListEmailAccounts)
	api.POST("/email-accounts", s.authorizeOrgAction(authorization.ObjectEmailAccount, authorization.ActionEmailAccountConnect), s.ConnectEmailAccount)
	api.GET("/email-accounts/:id", s.authorizeOrgAction(authorization.ObjectEmailAccount, authorization.ActionEmailAccountView), s.GetEmailAccountByID)
	api.DELETE("/email-accounts/:id", s.authorizeOrgAction(authorization.ObjectEmailAccount, authorization.ActionEmailAccountDisconnect), s.DisconnectEmailAccount)

	// -------- AI usage --------
	api.POST("/ai/usage", s.authorizeOrgAction(authorization.ObjectAIUsage, authorization.ActionAIUsageRecord), s.AIUsageRateLimit(), s.RecordAIUsage)
	api.GET("/ai/usage", s.authorizeOrgAction(authorization.ObjectAIUsage, authorization.ActionAIUsageView), s.ListAIUsage)
	api.GET("/ai/quota", s.authorizeOrgAction(authorization.ObjectAIUsage, authorization.ActionAIUsageView), s.GetAIQuota)
	api.GET("/ai/topups", s.authorizeOrgAction(authorization.ObjectAIUsage, authorization.ActionAIUsageView), s.ListAITopUps)
	api.POST("/ai/topups", s.authorizeOrgAction(authorization.ObjectAIUsage, authorization.ActionAIUsageTopUp), s.CreateAITopUpCheckout)
	api.GET("/ai/topups/:id/receipt", s.authorizeOrgAction(authorization.ObjectAIUsage, authorization.ActionAIUsageView), s.GetAITopUpReceipt)

	// -------- Settings --------
	api.GET("/settings", s.authorizeOrgAction(authorization.ObjectOrgSettings, authorization.ActionOrgSettingsView), s.ListOrgSettings)
	api.GET("/settings/:key", s.authorizeOrgAction(authorization.ObjectOrgSettings, authorization.ActionOrgSettingsView), s.GetOrgSetting)
	api.PUT("/settings/:key", s.authorizeOrgAction(authorization.ObjectOrgSettings, authorization.ActionOrgSettingsManage), s.UpsertOrgSetting)
	api.DELETE("/settings/:key", s.authorizeOrgAction(authorization.ObjectOrgSettings, authorization.ActionOrgSettingsManage), s.DeleteOrgSetting)

	// -------- API keys --------
	api.GET("/api-keys/scopes", s.authorizeOrgAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeyScopes)
	api.GET("/api-keys", s.authorizeOrgAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	api.POST("/api-keys", s.authorizeOrgAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	api.POST("/api-keys/:key_id/rotate", s.authorizeOrgAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
	api.POST("/api-keys/:key_id/revoke", s.authorizeOrgAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	if s.cfg.Environment != "production" {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}
