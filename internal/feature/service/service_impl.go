package service

import (
	"context"
	"strings"

	"github.com/aware88/fresh-crm/internal/cache"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Subscriptions subscriptiondomain.Service
	Cache         cache.EntitlementCache
}

type service struct {
	log           *zap.Logger
	subscriptions subscriptiondomain.Service
	cache         cache.EntitlementCache
}

func NewService(p Params) featuredomain.Service {
	return &service{
		log:           p.Log.Named("feature.service"),
		subscriptions: p.Subscriptions,
		cache:         p.Cache,
	}
}

func (s *service) IsEnabled(ctx context.Context, orgID snowflake.ID, code string) (bool, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return false, featuredomain.ErrInvalidCode
	}
	entitlement, err := s.Entitlements(ctx, orgID)
	if err != nil {
		return false, err
	}
	return entitlement.FeatureEnabled(code), nil
}

func (s *service) Entitlements(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Entitlement, error) {
	if orgID == 0 {
		return nil, featuredomain.ErrInvalidOrganization
	}
	if cached, ok := s.cache.Get(orgID); ok {
		return cached, nil
	}
	entitlement, err := s.subscriptions.Entitlements(ctx, orgID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(orgID, entitlement)
	return entitlement, nil
}

func (s *service) Limit(ctx context.Context, orgID snowflake.ID, key string) (int64, bool, error) {
	entitlement, err := s.Entitlements(ctx, orgID)
	if err != nil {
		return 0, false, err
	}
	limit, ok := entitlement.Limit(key)
	return limit, ok, nil
}

func (s *service) Invalidate(orgID snowflake.ID) {
	s.cache.Invalidate(orgID)
}
