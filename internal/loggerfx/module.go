package loggerfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		Logger,
		DefaultLoggerAdapter,
	),
	fx.Invoke(ConfigureLogger),
)
