package lead

import (
	"github.com/aware88/fresh-crm/internal/lead/repository"
	"github.com/aware88/fresh-crm/internal/lead/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lead.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
