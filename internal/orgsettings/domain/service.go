package domain

import (
	"context"
	"errors"
	"time"
)

type SettingResponse struct {
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type ListSettingsResponse struct {
	Settings []SettingResponse `json:"settings"`
}

type Service interface {
	Get(ctx context.Context, key string) (*SettingResponse, error)
	List(ctx context.Context) (*ListSettingsResponse, error)

	// Upsert replaces the value blob for the key.
	Upsert(ctx context.Context, key string, value map[string]any) (*SettingResponse, error)

	Delete(ctx context.Context, key string) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidKey          = errors.New("invalid_key")
	ErrSettingNotFound     = errors.New("setting_not_found")
)
