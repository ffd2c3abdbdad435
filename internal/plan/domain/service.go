package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	ListActive(ctx context.Context) ([]PlanResponse, error)
	GetByID(ctx context.Context, id string) (*PlanResponse, error)
	GetBySlug(ctx context.Context, slug string) (*PlanResponse, error)

	// Admin surface.
	Create(ctx context.Context, req CreatePlanRequest) (*PlanResponse, error)
	Update(ctx context.Context, id string, req UpdatePlanRequest) (*PlanResponse, error)
	Deactivate(ctx context.Context, id string) error
}

type CreatePlanRequest struct {
	Name                 string           `json:"name"`
	Tier                 string           `json:"tier"`
	MonthlyPriceCents    int64            `json:"monthly_price_cents"`
	AnnualPriceCents     int64            `json:"annual_price_cents"`
	Currency             string           `json:"currency"`
	StripeMonthlyPriceID string           `json:"stripe_monthly_price_id"`
	StripeAnnualPriceID  string           `json:"stripe_annual_price_id"`
	Features             map[string]any   `json:"features"`
	Limits               map[string]int64 `json:"limits"`
}

type UpdatePlanRequest struct {
	Name                 *string          `json:"name"`
	MonthlyPriceCents    *int64           `json:"monthly_price_cents"`
	AnnualPriceCents     *int64           `json:"annual_price_cents"`
	StripeMonthlyPriceID *string          `json:"stripe_monthly_price_id"`
	StripeAnnualPriceID  *string          `json:"stripe_annual_price_id"`
	Features             map[string]any   `json:"features"`
	Limits               map[string]int64 `json:"limits"`
	Active               *bool            `json:"active"`
}

type PlanResponse struct {
	ID                   string         `json:"id"`
	Slug                 string         `json:"slug"`
	Name                 string         `json:"name"`
	Tier                 string         `json:"tier"`
	MonthlyPriceCents    int64          `json:"monthly_price_cents"`
	AnnualPriceCents     int64          `json:"annual_price_cents"`
	Currency             string         `json:"currency"`
	StripeMonthlyPriceID string         `json:"stripe_monthly_price_id,omitempty"`
	StripeAnnualPriceID  string         `json:"stripe_annual_price_id,omitempty"`
	Features             map[string]any `json:"features"`
	Limits               map[string]any `json:"limits"`
	Active               bool           `json:"active"`
	CreatedAt            time.Time      `json:"created_at"`
}

var (
	ErrInvalidPlan     = errors.New("invalid_plan")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidTier     = errors.New("invalid_tier")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrPlanExists      = errors.New("plan_exists")
	ErrPlanNotFound    = errors.New("plan_not_found")
)
