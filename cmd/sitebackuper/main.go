package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/yurykabanov/sitebackuper/internal/configfx"
	"github.com/yurykabanov/sitebackuper/internal/domainfx"
	"github.com/yurykabanov/sitebackuper/internal/loggerfx"
	"github.com/yurykabanov/sitebackuper/internal/serverfx"
	"github.com/yurykabanov/sitebackuper/internal/sqlfx"
	"github.com/yurykabanov/sitebackuper/internal/transferfx"
)

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(15*time.Second),
		fx.StopTimeout(30*time.Second),

		fx.Logger(logger),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		transferfx.Module,
		domainfx.Module,
		serverfx.Module,
	)

	app.Run()
}
