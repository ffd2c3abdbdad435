// Package domain contains persistence models for subscription plans.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	TierStarter = "starter"
	TierPro     = "pro"
	TierPremium = "premium"
)

// ValidTier reports whether the tier name is known.
func ValidTier(tier string) bool {
	switch tier {
	case TierStarter, TierPro, TierPremium:
		return true
	default:
		return false
	}
}

// Limit keys stored in the Limits JSON blob.
const (
	LimitAIMessagesPerMonth = "ai_messages_per_month"
	LimitContacts           = "contacts"
	LimitUsers              = "users"
)

// SubscriptionPlan is a named tier gating feature flags and numeric limits.
type SubscriptionPlan struct {
	ID                   snowflake.ID      `json:"id" gorm:"primaryKey"`
	Slug                 string            `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_subscription_plans_slug"`
	Name                 string            `json:"name" gorm:"type:text;not null"`
	Tier                 string            `json:"tier" gorm:"type:text;not null"`
	MonthlyPriceCents    int64             `json:"monthly_price_cents" gorm:"not null;default:0"`
	AnnualPriceCents     int64             `json:"annual_price_cents" gorm:"not null;default:0"`
	Currency             string            `json:"currency" gorm:"type:text;not null;default:'usd'"`
	StripeMonthlyPriceID string            `json:"stripe_monthly_price_id" gorm:"type:text;column:stripe_monthly_price_id"`
	StripeAnnualPriceID  string            `json:"stripe_annual_price_id" gorm:"type:text;column:stripe_annual_price_id"`
	Features             datatypes.JSONMap `json:"features" gorm:"type:jsonb;not null;default:'{}'"`
	Limits               datatypes.JSONMap `json:"limits" gorm:"type:jsonb;not null;default:'{}'"`
	Active               bool              `json:"active" gorm:"not null;default:true"`
	CreatedAt            time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// FeatureEnabled reads a boolean flag from the Features blob.
func (p SubscriptionPlan) FeatureEnabled(code string) bool {
	raw, ok := p.Features[code]
	if !ok {
		return false
	}
	enabled, ok := raw.(bool)
	return ok && enabled
}

// Limit reads a numeric limit from the Limits blob. JSON numbers decode as
// float64; integers stored directly are handled too.
func (p SubscriptionPlan) Limit(key string) (int64, bool) {
	raw, ok := p.Limits[key]
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
