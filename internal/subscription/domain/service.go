package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CheckoutCompleted is a provider checkout session that finished successfully
// for a plan subscription.
type CheckoutCompleted struct {
	Provider               string
	OrgID                  snowflake.ID
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PriceID                string
}

// ProviderSubscriptionEvent carries the subset of a provider subscription
// object the service applies on created/updated events.
type ProviderSubscriptionEvent struct {
	Provider               string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PriceID                string
	ProviderStatus         string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// InvoicePaymentEvent reports the outcome of a provider invoice payment.
type InvoicePaymentEvent struct {
	Provider               string
	ProviderSubscriptionID string
	AmountCents            int64
	Currency               string
}

type SubscriptionResponse struct {
	ID                     string             `json:"id"`
	OrgID                  string             `json:"org_id"`
	PlanID                 string             `json:"plan_id"`
	PlanSlug               string             `json:"plan_slug,omitempty"`
	Provider               string             `json:"provider"`
	ProviderSubscriptionID string             `json:"provider_subscription_id"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	CreatedAt              time.Time          `json:"created_at"`
}

// Entitlement is the resolved plan access for an organization. Organizations
// without an entitled subscription fall back to the starter plan.
type Entitlement struct {
	OrgID    snowflake.ID
	PlanID   snowflake.ID
	PlanSlug string
	Tier     string
	Status   SubscriptionStatus
	Features map[string]any
	Limits   map[string]any
}

// FeatureEnabled reads a boolean flag from the resolved plan features.
func (e Entitlement) FeatureEnabled(code string) bool {
	raw, ok := e.Features[code]
	if !ok {
		return false
	}
	enabled, ok := raw.(bool)
	return ok && enabled
}

// Limit reads a numeric limit from the resolved plan limits.
func (e Entitlement) Limit(key string) (int64, bool) {
	raw, ok := e.Limits[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

type Service interface {
	// Tenant-facing reads; org comes from the request context.
	GetCurrent(ctx context.Context) (*SubscriptionResponse, error)
	List(ctx context.Context) ([]SubscriptionResponse, error)
	CancelAtPeriodEnd(ctx context.Context) (*SubscriptionResponse, error)

	// Entitlement resolution, consumed by the feature gate.
	Entitlements(ctx context.Context, orgID snowflake.ID) (*Entitlement, error)

	// Provider event application, driven by the payment webhook dispatcher.
	ApplyCheckoutCompleted(ctx context.Context, evt CheckoutCompleted) error
	ApplySubscriptionEvent(ctx context.Context, evt ProviderSubscriptionEvent) error
	ApplySubscriptionDeleted(ctx context.Context, provider, providerSubscriptionID string) error
	ApplyInvoicePaymentSucceeded(ctx context.Context, evt InvoicePaymentEvent) error
	ApplyInvoicePaymentFailed(ctx context.Context, evt InvoicePaymentEvent) error
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrAlreadyCanceled      = errors.New("subscription_already_canceled")
)
