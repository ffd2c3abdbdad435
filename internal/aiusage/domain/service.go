package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordUsageRequest struct {
	Feature        string `json:"feature"`
	MessageCount   int64  `json:"message_count"`
	TokenCount     int64  `json:"token_count"`
	IdempotencyKey string `json:"idempotency_key"`
}

type UsageRecordResponse struct {
	ID             string    `json:"id"`
	Feature        string    `json:"feature"`
	MessageCount   int64     `json:"message_count"`
	TokenCount     int64     `json:"token_count"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// QuotaResponse reports the current period position. Remaining is
// plan limit plus active top-up messages minus period usage, floored at
// zero. Unlimited is set when the plan carries no AI message limit.
type QuotaResponse struct {
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	MessagesUsed    int64     `json:"messages_used"`
	TokensUsed      int64     `json:"tokens_used"`
	PlanLimit       int64     `json:"plan_limit"`
	TopUpRemaining  int64     `json:"topup_remaining"`
	Remaining       int64     `json:"remaining"`
	Unlimited       bool      `json:"unlimited"`
}

type CreateTopUpRequest struct {
	MessageAmount int64  `json:"message_amount"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
}

type TopUpResponse struct {
	ID               string    `json:"id"`
	MessageAmount    int64     `json:"message_amount"`
	MessageRemaining int64     `json:"message_remaining"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	CheckoutURL      string    `json:"checkout_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type ListUsageRequest struct {
	Feature   string `form:"feature"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListUsageResponse struct {
	Records       []UsageRecordResponse `json:"records"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type ListTopUpsResponse struct {
	TopUps []TopUpResponse `json:"topups"`
}

type Service interface {
	// Record meters one AI interaction and enforces the message quota.
	// An idempotency key makes retries return the original record.
	Record(ctx context.Context, req RecordUsageRequest) (*UsageRecordResponse, error)

	// Quota returns current-period totals and remaining messages.
	Quota(ctx context.Context) (*QuotaResponse, error)

	// CheckQuota fails with ErrQuotaExceeded when the org cannot spend
	// the requested number of messages.
	CheckQuota(ctx context.Context, orgID snowflake.ID, messages int64) error

	ListUsage(ctx context.Context, req ListUsageRequest) (*ListUsageResponse, error)

	// CreateTopUpCheckout opens a pending top-up and a provider checkout
	// session for it.
	CreateTopUpCheckout(ctx context.Context, req CreateTopUpRequest) (*TopUpResponse, error)

	// ApplyTopUpCompleted activates the top-up tied to a completed
	// checkout session. Called from payment webhook dispatch.
	ApplyTopUpCompleted(ctx context.Context, providerSessionID string) error

	ListTopUps(ctx context.Context) (*ListTopUpsResponse, error)

	// TopUpReceipt renders a PDF receipt for a paid top-up.
	TopUpReceipt(ctx context.Context, id string) ([]byte, error)

	// Rollover closes open periods whose window ended before now,
	// burning top-up messages against overflow. Returns periods closed.
	Rollover(ctx context.Context, now time.Time, batchSize int) (int, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidFeature      = errors.New("invalid_feature")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrQuotaExceeded       = errors.New("quota_exceeded")
	ErrRateLimited         = errors.New("rate_limited")
	ErrTopUpNotFound       = errors.New("topup_not_found")
	ErrTopUpNotPaid        = errors.New("topup_not_paid")
	ErrReceiptUnavailable  = errors.New("receipt_unavailable")
)
