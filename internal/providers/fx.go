package providers

import (
	"github.com/aware88/fresh-crm/internal/providers/email"
	"github.com/aware88/fresh-crm/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
