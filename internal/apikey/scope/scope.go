package scope

import (
	"errors"
	"strings"

	"github.com/aware88/fresh-crm/internal/authorization"
)

type Scope string

var ErrInvalidScope = errors.New("invalid_scope")

const (
	ScopeContactView   Scope = "contact:view"
	ScopeContactCreate Scope = "contact:create"
	ScopeContactUpdate Scope = "contact:update"
	ScopeContactDelete Scope = "contact:delete"

	ScopeLeadScoreView      Scope = "lead_score:view"
	ScopeLeadScoreCalculate Scope = "lead_score:calculate"

	ScopePipelineView   Scope = "pipeline:view"
	ScopePipelineManage Scope = "pipeline:manage"

	ScopeOpportunityView   Scope = "opportunity:view"
	ScopeOpportunityCreate Scope = "opportunity:create"
	ScopeOpportunityUpdate Scope = "opportunity:update"
	ScopeOpportunityDelete Scope = "opportunity:delete"
	ScopeOpportunityMove   Scope = "opportunity:move"

	ScopeWebhookView   Scope = "webhook:view"
	ScopeWebhookManage Scope = "webhook:manage"
	ScopeWebhookTest   Scope = "webhook:test"

	ScopeNotificationView   Scope = "notification:view"
	ScopeNotificationManage Scope = "notification:manage"

	ScopeEmailAccountView       Scope = "email_account:view"
	ScopeEmailAccountConnect    Scope = "email_account:connect"
	ScopeEmailAccountDisconnect Scope = "email_account:disconnect"

	ScopeOrgSettingsView   Scope = "org_settings:view"
	ScopeOrgSettingsManage Scope = "org_settings:manage"

	ScopeAIUsageView   Scope = "ai_usage:view"
	ScopeAIUsageRecord Scope = "ai_usage:record"
	ScopeAIUsageTopUp  Scope = "ai_usage:topup"

	ScopeBillingView   Scope = "billing:view"
	ScopeBillingManage Scope = "billing:manage"

	ScopeOrganizationView    Scope = "organization:view"
	ScopeOrganizationManage  Scope = "organization:manage"
	ScopeOrganizationMembers Scope = "organization:members"

	ScopeAPIKeyView   Scope = "api_key:view"
	ScopeAPIKeyCreate Scope = "api_key:create"
	ScopeAPIKeyRotate Scope = "api_key:rotate"
	ScopeAPIKeyRevoke Scope = "api_key:revoke"

	ScopeAuditLogView Scope = "audit_log:view"
)

type authzKey struct {
	object string
	action string
}

var authzScopeMap = map[authzKey]Scope{
	{normalize(authorization.ObjectContact), normalize(authorization.ActionContactView)}:   ScopeContactView,
	{normalize(authorization.ObjectContact), normalize(authorization.ActionContactCreate)}: ScopeContactCreate,
	{normalize(authorization.ObjectContact), normalize(authorization.ActionContactUpdate)}: ScopeContactUpdate,
	{normalize(authorization.ObjectContact), normalize(authorization.ActionContactDelete)}: ScopeContactDelete,

	{normalize(authorization.ObjectLeadScore), normalize(authorization.ActionLeadScoreView)}:      ScopeLeadScoreView,
	{normalize(authorization.ObjectLeadScore), normalize(authorization.ActionLeadScoreCalculate)}: ScopeLeadScoreCalculate,

	{normalize(authorization.ObjectPipeline), normalize(authorization.ActionPipelineView)}:   ScopePipelineView,
	{normalize(authorization.ObjectPipeline), normalize(authorization.ActionPipelineManage)}: ScopePipelineManage,

	{normalize(authorization.ObjectOpportunity), normalize(authorization.ActionOpportunityView)}:   ScopeOpportunityView,
	{normalize(authorization.ObjectOpportunity), normalize(authorization.ActionOpportunityCreate)}: ScopeOpportunityCreate,
	{normalize(authorization.ObjectOpportunity), normalize(authorization.ActionOpportunityUpdate)}: ScopeOpportunityUpdate,
	{normalize(authorization.ObjectOpportunity), normalize(authorization.ActionOpportunityDelete)}: ScopeOpportunityDelete,
	{normalize(authorization.ObjectOpportunity), normalize(authorization.ActionOpportunityMove)}:   ScopeOpportunityMove,

	{normalize(authorization.ObjectWebhook), normalize(authorization.ActionWebhookView)}:   ScopeWebhookView,
	{normalize(authorization.ObjectWebhook), normalize(authorization.ActionWebhookManage)}: ScopeWebhookManage,
	{normalize(authorization.ObjectWebhook), normalize(authorization.ActionWebhookTest)}:   ScopeWebhookTest,

	{normalize(authorization.ObjectNotification), normalize(authorization.ActionNotificationView)}:   ScopeNotificationView,
	{normalize(authorization.ObjectNotification), normalize(authorization.ActionNotificationManage)}: ScopeNotificationManage,

	{normalize(authorization.ObjectEmailAccount), normalize(authorization.ActionEmailAccountView)}:       ScopeEmailAccountView,
	{normalize(authorization.ObjectEmailAccount), normalize(authorization.ActionEmailAccountConnect)}:    ScopeEmailAccountConnect,
	{normalize(authorization.ObjectEmailAccount), normalize(authorization.ActionEmailAccountDisconnect)}: ScopeEmailAccountDisconnect,

	{normalize(authorization.ObjectOrgSettings), normalize(authorization.ActionOrgSettingsView)}:   ScopeOrgSettingsView,
	{normalize(authorization.ObjectOrgSettings), normalize(authorization.ActionOrgSettingsManage)}: ScopeOrgSettingsManage,

	{normalize(authorization.ObjectAIUsage), normalize(authorization.ActionAIUsageView)}:   ScopeAIUsageView,
	{normalize(authorization.ObjectAIUsage), normalize(authorization.ActionAIUsageRecord)}: ScopeAIUsageRecord,
	{normalize(authorization.ObjectAIUsage), normalize(authorization.ActionAIUsageTopUp)}:  ScopeAIUsageTopUp,

	{normalize(authorization.ObjectBilling), normalize(authorization.ActionBillingView)}:   ScopeBillingView,
	{normalize(authorization.ObjectBilling), normalize(authorization.ActionBillingManage)}: ScopeBillingManage,

	{normalize(authorization.ObjectOrganization), normalize(authorization.ActionOrganizationView)}:    ScopeOrganizationView,
	{normalize(authorization.ObjectOrganization), normalize(authorization.ActionOrganizationManage)}:  ScopeOrganizationManage,
	{normalize(authorization.ObjectOrganization), normalize(authorization.ActionOrganizationMembers)}: ScopeOrganizationMembers,

	{normalize(authorization.ObjectAPIKey), normalize(authorization.ActionAPIKeyView)}:   ScopeAPIKeyView,
	{normalize(authorization.ObjectAPIKey), normalize(authorization.ActionAPIKeyCreate)}: ScopeAPIKeyCreate,
	{normalize(authorization.ObjectAPIKey), normalize(authorization.ActionAPIKeyRotate)}: ScopeAPIKeyRotate,
	{normalize(authorization.ObjectAPIKey), normalize(authorization.ActionAPIKeyRevoke)}: ScopeAPIKeyRevoke,

	{normalize(authorization.ObjectAuditLog), normalize(authorization.ActionAuditLogView)}: ScopeAuditLogView,
}

var allScopes = []Scope{
	ScopeContactView,
	ScopeContactCreate,
	ScopeContactUpdate,
	ScopeContactDelete,
	ScopeLeadScoreView,
	ScopeLeadScoreCalculate,
	ScopePipelineView,
	ScopePipelineManage,
	ScopeOpportunityView,
	ScopeOpportunityCreate,
	ScopeOpportunityUpdate,
	ScopeOpportunityDelete,
	ScopeOpportunityMove,
	ScopeWebhookView,
	ScopeWebhookManage,
	ScopeWebhookTest,
	ScopeNotificationView,
	ScopeNotificationManage,
	ScopeEmailAccountView,
	ScopeEmailAccountConnect,
	ScopeEmailAccountDisconnect,
	ScopeOrgSettingsView,
	ScopeOrgSettingsManage,
	ScopeAIUsageView,
	ScopeAIUsageRecord,
	ScopeAIUsageTopUp,
	ScopeBillingView,
	ScopeBillingManage,
	ScopeOrganizationView,
	ScopeOrganizationManage,
	ScopeOrganizationMembers,
	ScopeAPIKeyView,
	ScopeAPIKeyCreate,
	ScopeAPIKeyRotate,
	ScopeAPIKeyRevoke,
	ScopeAuditLogView,
}

var validScopes = func() map[string]struct{} {
	lookup := make(map[string]struct{}, len(allScopes))
	for _, scope := range allScopes {
		lookup[normalize(string(scope))] = struct{}{}
	}
	return lookup
}()

func All() []string {
	values := make([]string, len(allScopes))
	for i, scope := range allScopes {
		values[i] = string(scope)
	}
	return values
}

func FromAuthz(object string, action string) Scope {
	key := authzKey{object: normalize(object), action: normalize(action)}
	if scope, ok := authzScopeMap[key]; ok {
		return scope
	}
	return ""
}

func Has(scopes []string, required Scope) bool {
	requiredScope := normalize(string(required))
	if requiredScope == "" {
		return false
	}

	requiredObject := strings.SplitN(requiredScope, ":", 2)[0]

	for _, scope := range scopes {
		normalized := normalize(scope)
		if normalized == "" {
			continue
		}
		if normalized == "*" {
			return true
		}
		if normalized == requiredScope {
			return true
		}
		if requiredObject != "" && (normalized == requiredObject+":*" || normalized == requiredObject+".*") {
			return true
		}
	}
	return false
}

func Validate(scopes []string) error {
	normalized := Normalize(scopes)
	for _, scope := range normalized {
		if IsValid(scope) {
			continue
		}
		// Object wildcards ("contact:*") are granted but not enumerated.
		if strings.HasSuffix(scope, ":*") || strings.HasSuffix(scope, ".*") {
			continue
		}
		return ErrInvalidScope
	}
	return nil
}

func Normalize(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(scopes))
	normalized := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		value := normalize(scope)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	return normalized
}

func IsValid(scope string) bool {
	_, ok := validScopes[normalize(scope)]
	return ok
}

func normalize(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(normalized, ".", ":")
}
