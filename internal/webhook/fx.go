package webhook

import (
	"github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/internal/webhook/repository"
	"github.com/aware88/fresh-crm/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Emitter { return svc }),
)
