package sqlfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(SqliteConfigProvider),
	fx.Provide(OpenSqliteDatabase),
	fx.Invoke(CloseSqliteDatabase),

	fx.Provide(OpenSiteDatabase),
	fx.Invoke(CloseSiteDatabase),

	fx.Provide(BackupsRepository),
	fx.Provide(ServicesRepository),
	fx.Provide(LeasesRepository),
)
