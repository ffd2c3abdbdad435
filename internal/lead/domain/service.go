package domain

import (
	"context"
	"errors"
	"time"
)

type ListScoresRequest struct {
	Qualification string
	MinScore      int
	PageToken     string
	PageSize      int32
}

type LeadScoreResponse struct {
	ContactID     string         `json:"contact_id"`
	Score         int            `json:"score"`
	Qualification string         `json:"qualification"`
	Breakdown     map[string]any `json:"breakdown"`
	ComputedAt    time.Time      `json:"computed_at"`
}

type ListScoresResponse struct {
	Scores        []LeadScoreResponse `json:"scores"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

// BulkCalculateResult reports per-contact outcomes; the bulk path is
// sequential and keeps going past individual failures.
type BulkCalculateResult struct {
	Calculated int               `json:"calculated"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Fail records a per-contact failure reason.
func (r *BulkCalculateResult) Fail(contactID, reason string) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[contactID] = reason
}

type Service interface {
	CalculateScore(ctx context.Context, contactID string) (*LeadScoreResponse, error)
	GetScore(ctx context.Context, contactID string) (*LeadScoreResponse, error)
	ListScores(ctx context.Context, req ListScoresRequest) (*ListScoresResponse, error)
	BulkCalculateScores(ctx context.Context, contactIDs []string) (*BulkCalculateResult, error)

	// RecalculateStale recomputes scores missing or older than the cutoff.
	// Driven by the nightly scheduler job; returns the number recomputed.
	RecalculateStale(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidQualification = errors.New("invalid_qualification")
	ErrContactNotFound      = errors.New("contact_not_found")
	ErrScoreNotFound        = errors.New("score_not_found")
	ErrScoringNotEnabled    = errors.New("lead_scoring_not_enabled")
)
