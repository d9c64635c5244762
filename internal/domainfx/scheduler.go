package domainfx

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/http/handler"
	"github.com/yurykabanov/sitebackuper/pkg/metrics"
	"github.com/yurykabanov/sitebackuper/pkg/schedule"
	"github.com/yurykabanov/sitebackuper/pkg/storage"
)

const (
	ConfigScheduleEnabled  = "schedule.enabled"
	ConfigScheduleInterval = "schedule.interval"
	ConfigScheduleStart    = "schedule.start"
	ConfigScheduleService  = "schedule.service"
)

var allowedIntervals = map[time.Duration]bool{
	6 * time.Hour:   true,
	12 * time.Hour:  true,
	24 * time.Hour:  true,
	168 * time.Hour: true,
}

type ScheduleConfig struct {
	Enabled  bool
	Interval time.Duration
	Start    string
	Service  string
}

func ScheduleConfigProvider(v *viper.Viper) (*ScheduleConfig, error) {
	config := &ScheduleConfig{
		Enabled:  v.GetBool(ConfigScheduleEnabled),
		Interval: v.GetDuration(ConfigScheduleInterval),
		Start:    v.GetString(ConfigScheduleStart),
		Service:  v.GetString(ConfigScheduleService),
	}

	if config.Enabled && !allowedIntervals[config.Interval] {
		return nil, errors.Errorf("%s must be one of 6h, 12h, 24h or 168h, got %s", ConfigScheduleInterval, config.Interval)
	}

	return config, nil
}

func Scheduler(logger *logrus.Logger) (*schedule.Scheduler, handler.Scheduler) {
	s := schedule.New(logger, schedule.DefaultQueueSize)

	return s, s
}

// RunScheduler aborts records left active by a previous process, registers the
// recurring backup and starts the worker.
func RunScheduler(
	lc fx.Lifecycle,
	logger *logrus.Logger,
	config *ScheduleConfig,
	scheduler *schedule.Scheduler,
	backups *domain.BackupService,
	repo *storage.BackupRepository,
	collector *metrics.Collector,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := backups.AbortUnfinished(ctx); err != nil {
				return errors.Wrap(err, "Unable to abort unfinished backups")
			}

			if latest, err := repo.LatestCompleted(ctx); err == nil {
				collector.SetLastCompleted(latest.ModifiedAt)
			}

			if config.Enabled {
				start, err := schedule.FirstRun(time.Now(), config.Start)
				if err != nil {
					return err
				}

				err = scheduler.ScheduleRecurring(handler.BackupJobId, config.Interval, start, func(ctx context.Context) {
					_, err := backups.CreateBackup(ctx, domain.CreateBackupRequest{ServiceName: config.Service})
					if err != nil {
						logger.WithError(err).WithField("service", config.Service).Warn("Scheduled backup was not started")
					}
				})
				if err != nil {
					return err
				}
			} else {
				scheduler.Unschedule(handler.BackupJobId)
				logger.Info("Recurring backup is disabled")
			}

			scheduler.Start()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
