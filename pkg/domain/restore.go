package domain

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/artifact"
)

type RestoreService struct {
	logger logrus.FieldLogger

	repo      BackupRepository
	archiver  Archiver
	replayer  Replayer
	workdir   Workdir
	transfers TransferManager
	leases    LeaseManager
	observer  Observer

	siteRoot string
	leaseTTL time.Duration
	now      func() time.Time
}

func NewRestoreService(
	logger logrus.FieldLogger,
	repo BackupRepository,
	archiver Archiver,
	replayer Replayer,
	workdir Workdir,
	transfers TransferManager,
	leases LeaseManager,
	observer Observer,
	siteRoot string,
	leaseTTL time.Duration,
) *RestoreService {
	return &RestoreService{
		logger:    logger,
		repo:      repo,
		archiver:  archiver,
		replayer:  replayer,
		workdir:   workdir,
		transfers: transfers,
		leases:    leases,
		observer:  observer,
		siteRoot:  siteRoot,
		leaseTTL:  leaseTTL,
		now:       time.Now,
	}
}

// Running reports whether a restore currently holds the restore lease.
func (s *RestoreService) Running(ctx context.Context) (bool, error) {
	return s.leases.Active(ctx, LeaseRestoreRunning)
}

// RestoreBackup puts the site files and database back to the state captured
// by the backup. As with CreateBackup, pipeline failures are recorded in the
// backup record rather than returned.
func (s *RestoreService) RestoreBackup(ctx context.Context, id int64) (Backup, error) {
	ctx = appcontext.WithBackupId(appcontext.WithJob(ctx, JobRestore), id)
	logger := appcontext.LoggerFromContext(s.logger, ctx)

	release, err := s.leases.Acquire(ctx, LeaseRestoreRunning, s.leaseTTL)
	if errors.Cause(err) == ErrLeaseHeld {
		return Backup{}, ErrRestoreRunning
	}
	if err != nil {
		return Backup{}, err
	}
	defer release()

	backup, err := s.repo.FindById(ctx, id)
	if err != nil {
		logger.WithError(err).Warn("Unable to find backup to restore")
		return backup, err
	}

	if err := s.ensureNoBackup(ctx, backup); err != nil {
		return backup, err
	}

	archiveName, dumpName, err := artifact.NamesFromURL(backup.URL())
	if err != nil {
		return backup, errors.Wrap(ErrBackupNotRestorable, err.Error())
	}

	info, err := s.transfers.Info(backup.ServiceType)
	if err != nil {
		return backup, err
	}

	ctx = appcontext.WithService(ctx, info.Name)
	logger = appcontext.LoggerFromContext(s.logger, ctx)

	startAt := s.now()
	logger.Info("Restore started")

	defer func() {
		s.observer.JobFinished(JobRestore, info.Name, backup.Status.Label(), s.now().Sub(startAt))
	}()

	if !info.IsRemote() {
		backup = s.restoreLocal(ctx, backup, archiveName, dumpName)
	} else {
		backup = s.restoreRemote(ctx, backup, archiveName, dumpName)
	}

	if backup.Status == StatusRestored {
		logger.Info("Restore finished")
	}

	return backup, nil
}

func (s *RestoreService) ensureNoBackup(ctx context.Context, backup Backup) error {
	if backup.Status.IsActive() {
		return ErrJobActive
	}

	running, err := s.leases.Active(ctx, LeaseBackupJob)
	if err != nil {
		return err
	}
	if running {
		return ErrJobActive
	}

	return nil
}

func (s *RestoreService) restoreLocal(ctx context.Context, backup Backup, archiveName, dumpName string) Backup {
	archivePath := s.workdir.Path(archiveName)
	dumpPath := s.workdir.Path(dumpName)

	if !s.workdir.Exists(archivePath) || !s.workdir.Exists(dumpPath) {
		return s.fail(ctx, backup, ErrArtifactsUnavailable)
	}

	if err := s.apply(ctx, archivePath, dumpPath); err != nil {
		return s.fail(ctx, backup, err)
	}

	backup, err := s.transition(ctx, backup, StatusRestored)
	if err != nil {
		return s.fail(ctx, backup, err)
	}

	return backup
}

func (s *RestoreService) restoreRemote(ctx context.Context, backup Backup, archiveName, dumpName string) Backup {
	logger := appcontext.LoggerFromContext(s.logger, ctx)

	backup, err := s.transition(ctx, backup, StatusDownloading)
	if err != nil {
		return s.fail(ctx, backup, err)
	}

	transfer, err := s.transfers.Open(ctx, backup.ServiceType)
	if err != nil {
		return s.fail(ctx, backup, err)
	}

	if err := s.workdir.Ensure(); err != nil {
		return s.fail(ctx, backup, err)
	}

	archivePath := s.workdir.Path(archiveName)

	if err := transfer.Download(ctx, backup.Path(), archivePath); err != nil {
		return s.fail(ctx, backup, err)
	}

	// the dump is stored inside the archive, it reappears once extracted
	if err := s.archiver.Extract(ctx, archivePath, s.siteRoot); err != nil {
		return s.fail(ctx, backup, err)
	}

	dumpPath := s.locateDump(dumpName)
	if dumpPath == "" {
		return s.fail(ctx, backup, ErrArtifactsUnavailable)
	}

	if err := s.replayer.Restore(ctx, dumpPath); err != nil {
		return s.fail(ctx, backup, err)
	}

	backup, err = s.transition(ctx, backup, StatusRestored)
	if err != nil {
		return s.fail(ctx, backup, err)
	}

	if err := s.workdir.Remove(archivePath, dumpPath); err != nil {
		logger.WithError(err).Warn("Unable to remove downloaded artifacts")
	}

	return backup
}

func (s *RestoreService) apply(ctx context.Context, archivePath, dumpPath string) error {
	if err := s.archiver.Extract(ctx, archivePath, s.siteRoot); err != nil {
		return err
	}

	return s.replayer.Restore(ctx, dumpPath)
}

// locateDump finds the extracted dump: inside the working directory when it
// lives under the site root, at the root otherwise.
func (s *RestoreService) locateDump(dumpName string) string {
	for _, p := range []string{s.workdir.Path(dumpName), filepath.Join(s.siteRoot, dumpName)} {
		if s.workdir.Exists(p) {
			return p
		}
	}
	return ""
}

func (s *RestoreService) transition(ctx context.Context, backup Backup, status Status) (Backup, error) {
	return transition(ctx, s.repo, s.now, backup, status)
}

func (s *RestoreService) fail(ctx context.Context, backup Backup, cause error) Backup {
	return fail(ctx, s.logger, s.repo, s.now, backup, cause)
}
