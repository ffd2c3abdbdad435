package domain

import (
	"context"
	"errors"
	"time"
)

type CreateContactRequest struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Company   string         `json:"company"`
	Position  string         `json:"position"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type UpdateContactRequest struct {
	FirstName *string        `json:"first_name,omitempty"`
	LastName  *string        `json:"last_name,omitempty"`
	Email     *string        `json:"email,omitempty"`
	Phone     *string        `json:"phone,omitempty"`
	Company   *string        `json:"company,omitempty"`
	Position  *string        `json:"position,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type ListContactsRequest struct {
	Search    string
	Company   string
	SortBy    string
	OrderBy   string
	PageToken string
	PageSize  int32
}

type ContactResponse struct {
	ID                string         `json:"id"`
	FirstName         string         `json:"first_name"`
	LastName          string         `json:"last_name"`
	Email             string         `json:"email,omitempty"`
	Phone             string         `json:"phone,omitempty"`
	Company           string         `json:"company,omitempty"`
	Position          string         `json:"position,omitempty"`
	InteractionCount  int64          `json:"interaction_count"`
	LastInteractionAt *time.Time     `json:"last_interaction_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type ListContactsResponse struct {
	Contacts      []ContactResponse `json:"contacts"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateContactRequest) (*ContactResponse, error)
	GetByID(ctx context.Context, id string) (*ContactResponse, error)
	Update(ctx context.Context, id string, req UpdateContactRequest) (*ContactResponse, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req ListContactsRequest) (*ListContactsResponse, error)

	// RecordInteraction bumps the interaction counter and timestamp that
	// feed lead scoring.
	RecordInteraction(ctx context.Context, id string) (*ContactResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrContactExists       = errors.New("contact_exists")
	ErrContactNotFound     = errors.New("contact_not_found")
	ErrContactLimitReached = errors.New("contact_limit_reached")
)
