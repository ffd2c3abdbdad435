package pdf

import "go.uber.org/fx"

var Module = fx.Module("provider.pdf",
	fx.Provide(New),
)
