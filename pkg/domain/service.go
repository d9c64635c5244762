package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/artifact"
)

const (
	JobBackup  = "backup"
	JobRestore = "restore"

	interruptedMessage = "Job was interrupted before it finished"
)

type BackupRepository interface {
	Create(context.Context, Backup) (Backup, error)
	Update(context.Context, Backup) error
	FindById(context.Context, int64) (Backup, error)
	FindActive(context.Context) ([]Backup, error)
	MarkDeleted(ctx context.Context, id int64, at time.Time) error
}

type Dumper interface {
	Dump(ctx context.Context, timestamp string) (artifact.File, error)
}

type Archiver interface {
	Archive(ctx context.Context, extraFile, timestamp string) (artifact.File, error)
	Extract(ctx context.Context, archivePath, dest string) error
}

type Replayer interface {
	Restore(ctx context.Context, dumpPath string) error
}

type Workdir interface {
	Ensure() error
	Path(name string) string
	Remove(paths ...string) error
	Exists(path string) bool
}

// Observer receives the outcome of every finished job.
type Observer interface {
	JobFinished(kind, service, status string, d time.Duration)
	SetLastCompleted(at time.Time)
}

// CompletionFunc is invoked once a backup reaches Completed with its final url.
type CompletionFunc func(ctx context.Context, backupUrl string)

type CreateBackupRequest struct {
	ServiceName string
	UserId      int64

	// optional
	OnComplete CompletionFunc
}

type BackupService struct {
	logger logrus.FieldLogger

	repo      BackupRepository
	dumper    Dumper
	archiver  Archiver
	workdir   Workdir
	transfers TransferManager
	leases    LeaseManager
	observer  Observer

	leaseTTL time.Duration
	now      func() time.Time
}

func NewBackupService(
	logger logrus.FieldLogger,
	repo BackupRepository,
	dumper Dumper,
	archiver Archiver,
	workdir Workdir,
	transfers TransferManager,
	leases LeaseManager,
	observer Observer,
	leaseTTL time.Duration,
) *BackupService {
	return &BackupService{
		logger:    logger,
		repo:      repo,
		dumper:    dumper,
		archiver:  archiver,
		workdir:   workdir,
		transfers: transfers,
		leases:    leases,
		observer:  observer,
		leaseTTL:  leaseTTL,
		now:       time.Now,
	}
}

// Admit performs the synchronous checks of CreateBackup without starting anything,
// so callers can refuse a request before scheduling it.
func (s *BackupService) Admit(ctx context.Context, serviceName string) (ServiceInfo, error) {
	info, err := s.transfers.Lookup(serviceName)
	if err != nil {
		return info, err
	}

	if _, err := s.transfers.Open(ctx, info.Type); err != nil {
		return info, err
	}

	held, err := s.leases.Active(ctx, LeaseBackupJob)
	if err != nil {
		return info, err
	}
	if held {
		return info, ErrJobActive
	}

	return info, s.ensureIdle(ctx)
}

// CreateBackup runs the whole backup pipeline. Configuration and admission
// problems are returned as errors and leave no record behind; failures of
// the pipeline itself end up in the record and are not returned.
func (s *BackupService) CreateBackup(ctx context.Context, req CreateBackupRequest) (Backup, error) {
	ctx = appcontext.WithJob(ctx, JobBackup)

	info, err := s.transfers.Lookup(req.ServiceName)
	if err != nil {
		return Backup{}, err
	}

	ctx = appcontext.WithService(ctx, info.Name)

	transfer, err := s.transfers.Open(ctx, info.Type)
	if err != nil {
		return Backup{}, err
	}

	release, err := s.leases.Acquire(ctx, LeaseBackupJob, s.leaseTTL)
	if errors.Cause(err) == ErrLeaseHeld {
		return Backup{}, ErrJobActive
	}
	if err != nil {
		return Backup{}, err
	}
	defer release()

	if err := s.ensureIdle(ctx); err != nil {
		return Backup{}, err
	}

	now := s.now()

	backup, err := s.repo.Create(ctx, Backup{
		CreatorUserId: req.UserId,
		ServiceType:   info.Type,
		Status:        StatusInProgress,
		CreatedAt:     now,
		ModifiedAt:    now,
	})
	if err != nil {
		return backup, errors.Wrap(err, "Unable to create backup record")
	}

	ctx = appcontext.WithBackupId(ctx, backup.Id)

	return s.run(ctx, backup, info, transfer, req.OnComplete), nil
}

func (s *BackupService) ensureIdle(ctx context.Context) error {
	restoring, err := s.leases.Active(ctx, LeaseRestoreRunning)
	if err != nil {
		return err
	}
	if restoring {
		return ErrRestoreRunning
	}

	active, err := s.repo.FindActive(ctx)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return ErrJobActive
	}

	return nil
}

func (s *BackupService) run(ctx context.Context, backup Backup, info ServiceInfo, transfer Transfer, onComplete CompletionFunc) Backup {
	logger := appcontext.LoggerFromContext(s.logger, ctx)
	startAt := s.now()

	logger.Info("Backup started")

	defer func() {
		s.observer.JobFinished(JobBackup, info.Name, backup.Status.Label(), s.now().Sub(startAt))

		if backup.Status != StatusCompleted {
			return
		}

		s.observer.SetLastCompleted(backup.ModifiedAt)
		logger.WithField("url", backup.URL()).Info("Backup completed")

		if onComplete != nil {
			onComplete(ctx, backup.URL())
		}
	}()

	timestamp := artifact.Timestamp(startAt)

	if err := s.workdir.Ensure(); err != nil {
		backup = s.fail(ctx, backup, err)
		return backup
	}

	dump, err := s.dumper.Dump(ctx, timestamp)
	if err != nil {
		backup = s.fail(ctx, backup, err)
		return backup
	}

	archive, err := s.archiver.Archive(ctx, dump.Path, timestamp)
	if err != nil {
		backup = s.fail(ctx, backup, err)
		return backup
	}

	if !info.IsRemote() {
		backup.BackupUrl = StringPtr(archive.Url)
		backup.BackupPath = StringPtr(archive.Path)

		backup, err = s.transition(ctx, backup, StatusCompleted)
		if err != nil {
			backup = s.fail(ctx, backup, err)
		}
		return backup
	}

	backup, err = s.transition(ctx, backup, StatusUploading)
	if err != nil {
		backup = s.fail(ctx, backup, err)
		return backup
	}

	result, err := transfer.Upload(ctx, archive.Path)
	if err != nil {
		backup = s.fail(ctx, backup, err)
		return backup
	}

	backup.BackupUrl = StringPtr(result.Url)
	backup.BackupPath = StringPtr(result.Path)

	backup, err = s.transition(ctx, backup, StatusCompleted)
	if err != nil {
		backup = s.fail(ctx, backup, err)
		return backup
	}

	if err := s.workdir.Remove(dump.Path, archive.Path); err != nil {
		logger.WithError(err).Warn("Unable to remove uploaded artifacts")
	}

	return backup
}

// AbortUnfinished marks every record left active by a previous process as failed.
func (s *BackupService) AbortUnfinished(ctx context.Context) error {
	logger := appcontext.LoggerFromContext(s.logger, ctx)

	active, err := s.repo.FindActive(ctx)
	if err != nil {
		return err
	}

	if len(active) > 0 {
		logger.WithField("total_unfinished_backups", len(active)).Warn("Aborting unfinished backups")
	}

	for _, backup := range active {
		bctx := appcontext.WithBackupId(ctx, backup.Id)

		backup.Message = StringPtr(interruptedMessage)
		if _, err := s.transition(bctx, backup, StatusError); err != nil {
			return err
		}
	}

	return nil
}

// DeleteBackup soft deletes the record. Local artifacts are removed from disk,
// remote ones are removed when the service supports it.
func (s *BackupService) DeleteBackup(ctx context.Context, id int64) error {
	ctx = appcontext.WithBackupId(ctx, id)
	logger := appcontext.LoggerFromContext(s.logger, ctx)

	backup, err := s.repo.FindById(ctx, id)
	if err != nil {
		return err
	}

	if backup.Status.IsActive() {
		return ErrJobActive
	}

	info, err := s.transfers.Info(backup.ServiceType)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Backup belongs to unknown service, artifacts are left as is")
	case info.IsRemote():
		s.removeRemote(appcontext.WithService(ctx, info.Name), backup)
	default:
		if err := s.removeLocal(backup); err != nil {
			return err
		}
	}

	if err := s.repo.MarkDeleted(ctx, id, s.now()); err != nil {
		return err
	}

	logger.Info("Backup deleted")

	return nil
}

func (s *BackupService) removeLocal(backup Backup) error {
	if backup.URL() == "" {
		return nil
	}

	archivePath, dumpPath, err := ArtifactPaths(s.workdir, backup)
	if err != nil {
		return err
	}

	return errors.Wrap(s.workdir.Remove(archivePath, dumpPath), "Unable to remove backup artifacts")
}

func (s *BackupService) removeRemote(ctx context.Context, backup Backup) {
	logger := appcontext.LoggerFromContext(s.logger, ctx)

	if backup.Path() == "" {
		return
	}

	transfer, err := s.transfers.Open(ctx, backup.ServiceType)
	if err != nil {
		logger.WithError(err).Warn("Unable to open service to remove remote backup")
		return
	}

	remover, ok := transfer.(Remover)
	if !ok {
		logger.Debug("Service does not support removal, remote backup is left as is")
		return
	}

	if err := remover.Remove(ctx, backup.Path()); err != nil {
		logger.WithError(err).Warn("Unable to remove remote backup")
	}
}

func (s *BackupService) transition(ctx context.Context, backup Backup, status Status) (Backup, error) {
	return transition(ctx, s.repo, s.now, backup, status)
}

func (s *BackupService) fail(ctx context.Context, backup Backup, cause error) Backup {
	return fail(ctx, s.logger, s.repo, s.now, backup, cause)
}

// ArtifactPaths maps a backup url onto the archive and dump inside the working directory.
func ArtifactPaths(workdir Workdir, backup Backup) (archivePath, dumpPath string, err error) {
	archiveName, dumpName, err := artifact.NamesFromURL(backup.URL())
	if err != nil {
		return "", "", err
	}

	return workdir.Path(archiveName), workdir.Path(dumpName), nil
}

func transition(ctx context.Context, repo BackupRepository, now func() time.Time, backup Backup, status Status) (Backup, error) {
	backup.Status = status
	backup.ModifiedAt = now()

	// bookkeeping must not be skipped because the caller gave up
	err := repo.Update(context.WithoutCancel(ctx), backup)
	if err != nil {
		return backup, errors.Wrapf(err, "Unable to mark backup as %s", status.Label())
	}

	return backup, nil
}

func fail(ctx context.Context, logger logrus.FieldLogger, repo BackupRepository, now func() time.Time, backup Backup, cause error) Backup {
	logger = appcontext.LoggerFromContext(logger, ctx)

	logger.WithError(cause).WithField("status", backup.Status.Label()).Error("Job step failed")

	backup.Message = StringPtr(cause.Error())

	backup, err := transition(ctx, repo, now, backup, StatusError)
	if err != nil {
		logger.WithError(err).Error("Unable to mark backup failed")
	}

	return backup
}
