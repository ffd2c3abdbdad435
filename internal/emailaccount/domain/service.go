package domain

import (
	"context"
	"errors"
	"time"
)

type ConnectAccountRequest struct {
	Provider     string     `json:"provider"`
	EmailAddress string     `json:"email_address"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MemberID     string     `json:"member_id,omitempty"`
}

type AccountResponse struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	EmailAddress    string     `json:"email_address"`
	Status          string     `json:"status"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type ListAccountsResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

type Service interface {
	// Connect stores or replaces the mailbox tokens for the org.
	// Reconnecting an existing address resets it to connected.
	Connect(ctx context.Context, req ConnectAccountRequest) (*AccountResponse, error)

	List(ctx context.Context) (*ListAccountsResponse, error)
	GetByID(ctx context.Context, id string) (*AccountResponse, error)

	// AccessToken returns a usable access token, refreshing it first
	// when it expires within five minutes.
	AccessToken(ctx context.Context, id string) (string, error)

	// Disconnect clears tokens and marks the account disconnected.
	Disconnect(ctx context.Context, id string) error

	// RefreshExpiring refreshes connected accounts whose tokens expire
	// within the window. Returns the number refreshed.
	RefreshExpiring(ctx context.Context, now time.Time, window time.Duration, batchSize int) (int, error)
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrInvalidToken          = errors.New("invalid_token")
	ErrAccountNotFound       = errors.New("account_not_found")
	ErrAccountDisconnected   = errors.New("account_disconnected")
	ErrReauthRequired        = errors.New("reauth_required")
	ErrRefreshFailed         = errors.New("token_refresh_failed")
	ErrProviderNotConfigured = errors.New("email_provider_not_configured")
)
