package aiusage

import (
	"github.com/aware88/fresh-crm/internal/aiusage/repository"
	"github.com/aware88/fresh-crm/internal/aiusage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aiusage.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
