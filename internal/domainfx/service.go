package domainfx

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/sitebackuper/internal/configfx"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/http/handler"
)

const (
	ConfigLeaseBackupTTL  = "lease.backup_ttl"
	ConfigLeaseRestoreTTL = "lease.restore_ttl"
)

type LeaseConfig struct {
	BackupTTL  time.Duration
	RestoreTTL time.Duration
}

func LeaseConfigProvider(v *viper.Viper) *LeaseConfig {
	return &LeaseConfig{
		BackupTTL:  v.GetDuration(ConfigLeaseBackupTTL),
		RestoreTTL: v.GetDuration(ConfigLeaseRestoreTTL),
	}
}

func BackupService(
	logger *logrus.Logger,
	repository domain.BackupRepository,
	dumper domain.Dumper,
	archiver domain.Archiver,
	workdir domain.Workdir,
	transfers domain.TransferManager,
	leases domain.LeaseManager,
	observer domain.Observer,
	config *LeaseConfig,
) (*domain.BackupService, handler.BackupService) {
	svc := domain.NewBackupService(logger, repository, dumper, archiver, workdir, transfers, leases, observer, config.BackupTTL)

	return svc, svc
}

func RestoreService(
	logger *logrus.Logger,
	repository domain.BackupRepository,
	archiver domain.Archiver,
	replayer domain.Replayer,
	workdir domain.Workdir,
	transfers domain.TransferManager,
	leases domain.LeaseManager,
	observer domain.Observer,
	site *configfx.SiteConfig,
	config *LeaseConfig,
) (*domain.RestoreService, handler.RestoreService) {
	svc := domain.NewRestoreService(logger, repository, archiver, replayer, workdir, transfers, leases, observer, site.Root, config.RestoreTTL)

	return svc, svc
}
