package subscription

import (
	"github.com/aware88/fresh-crm/internal/subscription/repository"
	"github.com/aware88/fresh-crm/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
