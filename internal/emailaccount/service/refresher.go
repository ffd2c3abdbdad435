package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/config"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
)

const (
	googleTokenEndpoint    = "https://oauth2.googleapis.com/token"
	microsoftTokenEndpoint = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
)

type refreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher exchanges a refresh token for a fresh access token at
// the provider's OAuth endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, provider, refreshToken string) (*refreshedToken, error)
}

type oauthRefresher struct {
	http      *http.Client
	google    config.OAuthClientConfig
	microsoft config.OAuthClientConfig

	googleEndpoint    string
	microsoftEndpoint string
}

func NewTokenRefresher(cfg config.Config) TokenRefresher {
	tenant := strings.TrimSpace(cfg.Microsoft.TenantID)
	if tenant == "" {
		tenant = "common"
	}
	return &oauthRefresher{
		http:              &http.Client{Timeout: 15 * time.Second},
		google:            cfg.Google,
		microsoft:         cfg.Microsoft,
		googleEndpoint:    googleTokenEndpoint,
		microsoftEndpoint: fmt.Sprintf(microsoftTokenEndpoint, tenant),
	}
}

func (r *oauthRefresher) Refresh(ctx context.Context, provider, refreshToken string) (*refreshedToken, error) {
	var endpoint string
	var client config.OAuthClientConfig

	switch provider {
	case emailaccountdomain.ProviderGoogle:
		endpoint = r.googleEndpoint
		client = r.google
	case emailaccountdomain.ProviderMicrosoft:
		endpoint = r.microsoftEndpoint
		client = r.microsoft
	default:
		return nil, emailaccountdomain.ErrInvalidProvider
	}
	if client.ClientID == "" || client.ClientSecret == "" {
		return nil, emailaccountdomain.ErrProviderNotConfigured
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", client.ClientID)
	form.Set("client_secret", client.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", emailaccountdomain.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", emailaccountdomain.ErrRefreshFailed, resp.StatusCode)
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: malformed response", emailaccountdomain.ErrRefreshFailed)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", emailaccountdomain.ErrRefreshFailed)
	}

	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return &refreshedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
