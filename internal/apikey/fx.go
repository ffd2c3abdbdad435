package apikey

import (
	"github.com/aware88/fresh-crm/internal/apikey/repository"
	"github.com/aware88/fresh-crm/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
