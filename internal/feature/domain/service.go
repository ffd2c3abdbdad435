// Package domain defines the feature gate resolved from subscription plans.
package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
)

// Feature codes gated by plan tier.
const (
	CodeAIAssistant     = "ai_assistant"
	CodeLeadScoring     = "lead_scoring"
	CodeEmailSync       = "email_sync"
	CodeWebhooks        = "webhooks"
	CodePipelineMetrics = "pipeline_metrics"
)

type Service interface {
	// IsEnabled reports whether the org's plan enables the feature code.
	IsEnabled(ctx context.Context, orgID snowflake.ID, code string) (bool, error)

	// Entitlements returns the org's resolved plan entitlement.
	Entitlements(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Entitlement, error)

	// Limit returns the plan limit for the key; ok=false when the plan
	// does not define it.
	Limit(ctx context.Context, orgID snowflake.ID, key string) (int64, bool, error)

	// Invalidate drops the cached entitlement for the org.
	Invalidate(orgID snowflake.ID)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrFeatureNotEnabled   = errors.New("feature_not_enabled")
)
