package pipeline

import (
	"github.com/aware88/fresh-crm/internal/pipeline/repository"
	"github.com/aware88/fresh-crm/internal/pipeline/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
