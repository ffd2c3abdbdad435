// Package domain contains persistence models for organization subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusPaused     SubscriptionStatus = "paused"
)

// StatusFromProvider maps a payment-provider subscription status onto the
// internal lifecycle. The mapping is fixed; unknown statuses report ok=false.
func StatusFromProvider(providerStatus string) (SubscriptionStatus, bool) {
	switch providerStatus {
	case "active":
		return SubscriptionStatusActive, true
	case "trialing":
		return SubscriptionStatusTrialing, true
	case "past_due":
		return SubscriptionStatusPastDue, true
	case "canceled":
		return SubscriptionStatusCanceled, true
	case "unpaid":
		return SubscriptionStatusPastDue, true
	case "incomplete":
		return SubscriptionStatusIncomplete, true
	case "incomplete_expired":
		return SubscriptionStatusCanceled, true
	case "paused":
		return SubscriptionStatusPaused, true
	default:
		return "", false
	}
}

// Entitled reports whether the status grants access to paid features.
func (s SubscriptionStatus) Entitled() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// OrganizationSubscription links an organization to a plan via a payment
// provider subscription. At most one row exists per provider subscription id.
type OrganizationSubscription struct {
	ID                     snowflake.ID       `json:"id" gorm:"primaryKey"`
	OrgID                  snowflake.ID       `json:"org_id" gorm:"not null;index:ix_org_subscriptions_org"`
	PlanID                 snowflake.ID       `json:"plan_id" gorm:"not null"`
	Provider               string             `json:"provider" gorm:"type:text;not null;default:'stripe';uniqueIndex:ux_org_subscriptions_provider_sub"`
	ProviderSubscriptionID string             `json:"provider_subscription_id" gorm:"type:text;not null;uniqueIndex:ux_org_subscriptions_provider_sub"`
	ProviderCustomerID     string             `json:"provider_customer_id" gorm:"type:text"`
	Status                 SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CreatedAt              time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrganizationSubscription) TableName() string { return "organization_subscriptions" }
