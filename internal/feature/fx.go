package feature

import (
	"github.com/aware88/fresh-crm/internal/cache"
	"github.com/aware88/fresh-crm/internal/feature/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feature.service",
	fx.Provide(cache.NewEntitlementCache),
	fx.Provide(service.NewService),
)
