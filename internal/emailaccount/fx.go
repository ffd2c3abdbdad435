package emailaccount

import (
	"github.com/aware88/fresh-crm/internal/emailaccount/repository"
	"github.com/aware88/fresh-crm/internal/emailaccount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("emailaccount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewTokenRefresher),
	fx.Provide(service.NewService),
)
