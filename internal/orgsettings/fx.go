package orgsettings

import (
	"github.com/aware88/fresh-crm/internal/orgsettings/repository"
	"github.com/aware88/fresh-crm/internal/orgsettings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orgsettings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
