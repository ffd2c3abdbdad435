package organization

import (
	"github.com/aware88/fresh-crm/internal/organization/repository"
	"github.com/aware88/fresh-crm/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
