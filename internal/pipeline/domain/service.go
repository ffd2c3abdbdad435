package domain

import (
	"context"
	"errors"
	"time"
)

type CreateStageRequest struct {
	Name               string `json:"name"`
	Position           int    `json:"position"`
	DefaultProbability int    `json:"default_probability"`
	IsWon              bool   `json:"is_won"`
	IsLost             bool   `json:"is_lost"`
}

type UpdateStageRequest struct {
	Name               *string `json:"name,omitempty"`
	Position           *int    `json:"position,omitempty"`
	DefaultProbability *int    `json:"default_probability,omitempty"`
}

type StageResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Position           int       `json:"position"`
	DefaultProbability int       `json:"default_probability"`
	IsWon              bool      `json:"is_won"`
	IsLost             bool      `json:"is_lost"`
	CreatedAt          time.Time `json:"created_at"`
}

type CreateOpportunityRequest struct {
	ContactID         string     `json:"contact_id"`
	Title             string     `json:"title"`
	ValueCents        int64      `json:"value_cents"`
	Currency          string     `json:"currency"`
	StageID           string     `json:"stage_id"`
	Probability       *int       `json:"probability,omitempty"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
}

type UpdateOpportunityRequest struct {
	Title             *string    `json:"title,omitempty"`
	ValueCents        *int64     `json:"value_cents,omitempty"`
	Probability       *int       `json:"probability,omitempty"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
}

// MoveStageRequest moves an opportunity to a new stage. Probability follows
// the stage default unless overridden.
type MoveStageRequest struct {
	StageID     string `json:"stage_id"`
	Probability *int   `json:"probability,omitempty"`
}

// BulkOpportunityUpdate pairs an opportunity with its update; the bulk path
// applies them one at a time.
type BulkOpportunityUpdate struct {
	OpportunityID string                   `json:"opportunity_id"`
	Update        UpdateOpportunityRequest `json:"update"`
}

type BulkUpdateResult struct {
	Updated int               `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Fail records a per-opportunity failure reason.
func (r *BulkUpdateResult) Fail(opportunityID, reason string) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[opportunityID] = reason
}

type ListOpportunitiesRequest struct {
	StageID   string
	Status    string
	PageToken string
	PageSize  int32
}

type OpportunityResponse struct {
	ID                 string            `json:"id"`
	ContactID          string            `json:"contact_id,omitempty"`
	Title              string            `json:"title"`
	ValueCents         int64             `json:"value_cents"`
	Currency           string            `json:"currency"`
	StageID            string            `json:"stage_id"`
	Probability        int               `json:"probability"`
	WeightedValueCents int64             `json:"weighted_value_cents"`
	ExpectedCloseDate  *time.Time        `json:"expected_close_date,omitempty"`
	Status             OpportunityStatus `json:"status"`
	ClosedAt           *time.Time        `json:"closed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type ListOpportunitiesResponse struct {
	Opportunities []OpportunityResponse `json:"opportunities"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

// StageMetrics aggregates the open opportunities sitting in one stage.
type StageMetrics struct {
	StageID            string `json:"stage_id"`
	StageName          string `json:"stage_name"`
	Count              int64  `json:"count"`
	TotalValueCents    int64  `json:"total_value_cents"`
	WeightedValueCents int64  `json:"weighted_value_cents"`
}

// PipelineMetrics is the funnel summary: per-stage totals over the open
// set plus the all-time win rate.
type PipelineMetrics struct {
	Stages             []StageMetrics `json:"stages"`
	OpenCount          int64          `json:"open_count"`
	TotalValueCents    int64          `json:"total_value_cents"`
	WeightedValueCents int64          `json:"weighted_value_cents"`
	WonCount           int64          `json:"won_count"`
	LostCount          int64          `json:"lost_count"`
	WinRate            float64        `json:"win_rate"`
}

type Service interface {
	ListStages(ctx context.Context) ([]StageResponse, error)
	CreateStage(ctx context.Context, req CreateStageRequest) (*StageResponse, error)
	UpdateStage(ctx context.Context, id string, req UpdateStageRequest) (*StageResponse, error)
	DeleteStage(ctx context.Context, id string) error

	CreateOpportunity(ctx context.Context, req CreateOpportunityRequest) (*OpportunityResponse, error)
	GetOpportunity(ctx context.Context, id string) (*OpportunityResponse, error)
	UpdateOpportunity(ctx context.Context, id string, req UpdateOpportunityRequest) (*OpportunityResponse, error)
	DeleteOpportunity(ctx context.Context, id string) error
	ListOpportunities(ctx context.Context, req ListOpportunitiesRequest) (*ListOpportunitiesResponse, error)

	MoveStage(ctx context.Context, id string, req MoveStageRequest) (*OpportunityResponse, error)
	BulkUpdateOpportunities(ctx context.Context, updates []BulkOpportunityUpdate) (*BulkUpdateResult, error)

	Metrics(ctx context.Context) (*PipelineMetrics, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrInvalidValue        = errors.New("invalid_value")
	ErrInvalidProbability  = errors.New("invalid_probability")
	ErrInvalidContact      = errors.New("invalid_contact")
	ErrInvalidStage        = errors.New("invalid_stage")
	ErrStageExists         = errors.New("stage_exists")
	ErrStageNotFound       = errors.New("stage_not_found")
	ErrStageInUse          = errors.New("stage_in_use")
	ErrOpportunityNotFound = errors.New("opportunity_not_found")
	ErrOpportunityClosed   = errors.New("opportunity_closed")
)
