package service

import (
	"context"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/orgcontext"
	orgsettingsdomain "github.com/aware88/fresh-crm/internal/orgsettings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxKeyLength = 128

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo orgsettingsdomain.Repository
}

type service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo orgsettingsdomain.Repository
}

func NewService(p Params) orgsettingsdomain.Service {
	return &service{
		db:   p.DB,
		log:  p.Log.Named("orgsettings.service"),
		repo: p.Repo,
	}
}

func (s *service) Get(ctx context.Context, key string) (*orgsettingsdomain.SettingResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, orgsettingsdomain.ErrInvalidOrganization
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	setting, err := s.repo.Find(ctx, s.db, orgID, key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, orgsettingsdomain.ErrSettingNotFound
	}
	resp := toSettingResponse(*setting)
	return &resp, nil
}

func (s *service) List(ctx context.Context) (*orgsettingsdomain.ListSettingsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, orgsettingsdomain.ErrInvalidOrganization
	}
	settings, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	resp := &orgsettingsdomain.ListSettingsResponse{}
	for _, setting := range settings {
		resp.Settings = append(resp.Settings, toSettingResponse(setting))
	}
	return resp, nil
}

func (s *service) Upsert(ctx context.Context, key string, value map[string]any) (*orgsettingsdomain.SettingResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, orgsettingsdomain.ErrInvalidOrganization
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	setting := orgsettingsdomain.OrganizationSetting{
		OrgID:     orgID,
		Key:       key,
		Value:     toJSONMap(value),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, s.db, &setting); err != nil {
		return nil, err
	}
	resp := toSettingResponse(setting)
	return &resp, nil
}

func (s *service) Delete(ctx context.Context, key string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return orgsettingsdomain.ErrInvalidOrganization
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, s.db, orgID, key)
	if err != nil {
		return err
	}
	if !deleted {
		return orgsettingsdomain.ErrSettingNotFound
	}
	return nil
}

func normalizeKey(key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || len(key) > maxKeyLength {
		return "", orgsettingsdomain.ErrInvalidKey
	}
	return key, nil
}

func toSettingResponse(setting orgsettingsdomain.OrganizationSetting) orgsettingsdomain.SettingResponse {
	return orgsettingsdomain.SettingResponse{
		Key:       setting.Key,
		Value:     setting.Value,
		UpdatedAt: setting.UpdatedAt,
	}
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
