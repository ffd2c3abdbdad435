package notification

import (
	"github.com/aware88/fresh-crm/internal/notification/repository"
	"github.com/aware88/fresh-crm/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
