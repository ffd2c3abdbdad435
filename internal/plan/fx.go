package plan

import (
	"github.com/aware88/fresh-crm/internal/plan/repository"
	"github.com/aware88/fresh-crm/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
