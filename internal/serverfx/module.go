package serverfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(HttpServerConfigProvider),
	fx.Provide(HttpServer),
	fx.Provide(HttpRouter),
	fx.Provide(Listener),
	fx.Invoke(RunServer),

	fx.Provide(BackupHandler),
	fx.Provide(ServiceHandler),
	fx.Invoke(RegisterHandlers),
	fx.Invoke(RegisterMetricsHandler),
)
