package audit

import (
	"github.com/aware88/fresh-crm/internal/audit/repository"
	"github.com/aware88/fresh-crm/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
