package contact

import (
	"github.com/aware88/fresh-crm/internal/contact/repository"
	"github.com/aware88/fresh-crm/internal/contact/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contact.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
