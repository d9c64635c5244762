package domainfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(FingerprintProvider),
	fx.Provide(Archiver),
	fx.Provide(Dumper),
	fx.Provide(Replayer),
	fx.Provide(LeaseManager),
	fx.Provide(Metrics),
	fx.Provide(Notifier),

	fx.Provide(LeaseConfigProvider),
	fx.Provide(BackupService),
	fx.Provide(RestoreService),

	fx.Provide(ScheduleConfigProvider),
	fx.Provide(Scheduler),
	fx.Invoke(RunScheduler),
)
