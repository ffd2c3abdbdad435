package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/aware88/fresh-crm/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectContact      = "contact"
	ObjectLeadScore    = "lead_score"
	ObjectPipeline     = "pipeline"
	ObjectOpportunity  = "opportunity"
	ObjectWebhook      = "webhook"
	ObjectNotification = "notification"
	ObjectEmailAccount = "email_account"
	ObjectOrgSettings  = "org_settings"
	ObjectAIUsage      = "ai_usage"
	ObjectBilling      = "billing"
	ObjectAPIKey       = "api_key"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionOrganizationView    = "organization.view"
	ActionOrganizationManage  = "organization.manage"
	ActionOrganizationMembers = "organization.members"

	ActionContactView   = "contact.view"
	ActionContactCreate = "contact.create"
	ActionContactUpdate = "contact.update"
	ActionContactDelete = "contact.delete"

	ActionLeadScoreView      = "lead_score.view"
	ActionLeadScoreCalculate = "lead_score.calculate"

	ActionPipelineView   = "pipeline.view"
	ActionPipelineManage = "pipeline.manage"

	ActionOpportunityView   = "opportunity.view"
	ActionOpportunityCreate = "opportunity.create"
	ActionOpportunityUpdate = "opportunity.update"
	ActionOpportunityDelete = "opportunity.delete"
	ActionOpportunityMove   = "opportunity.move"

	ActionWebhookView   = "webhook.view"
	ActionWebhookManage = "webhook.manage"
	ActionWebhookTest   = "webhook.test"

	ActionNotificationView   = "notification.view"
	ActionNotificationManage = "notification.manage"

	ActionEmailAccountView       = "email_account.view"
	ActionEmailAccountConnect    = "email_account.connect"
	ActionEmailAccountDisconnect = "email_account.disconnect"

	ActionOrgSettingsView   = "org_settings.view"
	ActionOrgSettingsManage = "org_settings.manage"

	ActionAIUsageView   = "ai_usage.view"
	ActionAIUsageRecord = "ai_usage.record"
	ActionAIUsageTopUp  = "ai_usage.topup"

	ActionBillingView   = "billing.view"
	ActionBillingManage = "billing.manage"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, orgID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, string, string, *string, error) {
	if actor == "system" {
		roleName := "role:system"
		return actor, roleName, "system", nil, nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		// API keys carry their own scope list; the role exists so the
		// enforcer can answer for them uniformly.
		apiKeyIDRaw := strings.TrimPrefix(actor, "api_key:")
		apiKeyID, err := snowflake.ParseString(apiKeyIDRaw)
		if err != nil || apiKeyID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		apiKeyIDStr := apiKeyID.String()
		roleName := "role:system"
		return actor, roleName, "api_key", &apiKeyIDStr, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		parsedOrgID, err := snowflake.ParseString(orgID)
		userIDStr := userID.String()
		if err != nil || parsedOrgID == 0 {
			return actor, "", "user", &userIDStr, ErrInvalidOrganization
		}
		role, err := s.roleForMember(ctx, parsedOrgID, userID)
		if err != nil {
			return actor, "", "user", &userIDStr, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionAPIKeyRotate, ActionAPIKeyRevoke, ActionBillingManage, ActionWebhookManage:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	memberRead := [][]string{
		{"role:member", ObjectContact, ActionContactView},
		{"role:member", ObjectContact, ActionContactCreate},
		{"role:member", ObjectContact, ActionContactUpdate},
		{"role:member", ObjectLeadScore, ActionLeadScoreView},
		{"role:member", ObjectLeadScore, ActionLeadScoreCalculate},
		{"role:member", ObjectPipeline, ActionPipelineView},
		{"role:member", ObjectOpportunity, ActionOpportunityView},
		{"role:member", ObjectOpportunity, ActionOpportunityCreate},
		{"role:member", ObjectOpportunity, ActionOpportunityUpdate},
		{"role:member", ObjectOpportunity, ActionOpportunityMove},
		{"role:member", ObjectNotification, ActionNotificationView},
		{"role:member", ObjectNotification, ActionNotificationManage},
		{"role:member", ObjectEmailAccount, ActionEmailAccountView},
		{"role:member", ObjectEmailAccount, ActionEmailAccountConnect},
		{"role:member", ObjectAIUsage, ActionAIUsageView},
		{"role:member", ObjectAIUsage, ActionAIUsageRecord},
		{"role:member", ObjectOrganization, ActionOrganizationView},
	}

	adminExtra := [][]string{
		{"role:admin", ObjectContact, ActionContactDelete},
		{"role:admin", ObjectPipeline, ActionPipelineManage},
		{"role:admin", ObjectOpportunity, ActionOpportunityDelete},
		{"role:admin", ObjectWebhook, ActionWebhookView},
		{"role:admin", ObjectWebhook, ActionWebhookManage},
		{"role:admin", ObjectWebhook, ActionWebhookTest},
		{"role:admin", ObjectEmailAccount, ActionEmailAccountDisconnect},
		{"role:admin", ObjectOrgSettings, ActionOrgSettingsView},
		{"role:admin", ObjectOrgSettings, ActionOrgSettingsManage},
		{"role:admin", ObjectAIUsage, ActionAIUsageTopUp},
		{"role:admin", ObjectBilling, ActionBillingView},
		{"role:admin", ObjectOrganization, ActionOrganizationManage},
		{"role:admin", ObjectOrganization, ActionOrganizationMembers},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRotate},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}

	ownerExtra := [][]string{
		{"role:owner", ObjectBilling, ActionBillingManage},
		{"role:owner", ObjectAPIKey, ActionAPIKeyRevoke},
	}

	policies := make([][]string, 0, len(memberRead)*3+len(adminExtra)*2+len(ownerExtra)+24)
	policies = append(policies, memberRead...)
	// Admin and owner inherit the member surface; flat policies keep the
	// enforcer free of cross-role links.
	for _, p := range memberRead {
		policies = append(policies, []string{"role:admin", p[1], p[2]})
		policies = append(policies, []string{"role:owner", p[1], p[2]})
	}
	policies = append(policies, adminExtra...)
	for _, p := range adminExtra {
		policies = append(policies, []string{"role:owner", p[1], p[2]})
	}
	policies = append(policies, ownerExtra...)

	// System role backs API keys and scheduler-driven writes.
	systemActions := map[string][]string{
		ObjectContact:      {ActionContactView, ActionContactCreate, ActionContactUpdate, ActionContactDelete},
		ObjectLeadScore:    {ActionLeadScoreView, ActionLeadScoreCalculate},
		ObjectPipeline:     {ActionPipelineView, ActionPipelineManage},
		ObjectOpportunity:  {ActionOpportunityView, ActionOpportunityCreate, ActionOpportunityUpdate, ActionOpportunityDelete, ActionOpportunityMove},
		ObjectWebhook:      {ActionWebhookView, ActionWebhookManage, ActionWebhookTest},
		ObjectNotification: {ActionNotificationView, ActionNotificationManage},
		ObjectEmailAccount: {ActionEmailAccountView, ActionEmailAccountConnect, ActionEmailAccountDisconnect},
		ObjectOrgSettings:  {ActionOrgSettingsView, ActionOrgSettingsManage},
		ObjectAIUsage:      {ActionAIUsageView, ActionAIUsageRecord, ActionAIUsageTopUp},
		ObjectBilling:      {ActionBillingView, ActionBillingManage},
		ObjectOrganization: {ActionOrganizationView, ActionOrganizationManage, ActionOrganizationMembers},
		ObjectAPIKey:       {ActionAPIKeyView, ActionAPIKeyCreate, ActionAPIKeyRotate, ActionAPIKeyRevoke},
		ObjectAuditLog:     {ActionAuditLogView},
	}
	for object, actions := range systemActions {
		for _, action := range actions {
			policies = append(policies, []string{"role:system", object, action})
		}
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
