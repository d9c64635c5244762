package transferfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(Workdir),
	fx.Provide(Catalog),
	fx.Provide(Codec),
	fx.Provide(CredentialStore),
	fx.Provide(TransferManager),
)
