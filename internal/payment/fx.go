package payment

import (
	"github.com/aware88/fresh-crm/internal/payment/adapters"
	"github.com/aware88/fresh-crm/internal/payment/adapters/stripe"
	"github.com/aware88/fresh-crm/internal/payment/repository"
	paymentservice "github.com/aware88/fresh-crm/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(stripe.NewClient),
	fx.Provide(paymentservice.NewService),
)
