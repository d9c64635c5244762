package domain

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/sitebackuper/pkg/artifact"
	"github.com/yurykabanov/sitebackuper/pkg/workdir"
)

// region backupRepositoryMock
type backupRepositoryMock struct {
	mock.Mock
}

func (m *backupRepositoryMock) Create(ctx context.Context, backup Backup) (Backup, error) {
	args := m.Called(ctx, backup)
	return args.Get(0).(Backup), args.Error(1)
}

func (m *backupRepositoryMock) Update(ctx context.Context, backup Backup) error {
	args := m.Called(ctx, backup)
	return args.Error(0)
}

func (m *backupRepositoryMock) FindById(ctx context.Context, id int64) (Backup, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Backup), args.Error(1)
}

func (m *backupRepositoryMock) FindActive(ctx context.Context) ([]Backup, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Backup), args.Error(1)
}

func (m *backupRepositoryMock) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// endregion

// region dumperMock
type dumperMock struct {
	mock.Mock
}

func (m *dumperMock) Dump(ctx context.Context, timestamp string) (artifact.File, error) {
	args := m.Called(ctx, timestamp)
	return args.Get(0).(artifact.File), args.Error(1)
}

// endregion

// region archiverMock
type archiverMock struct {
	mock.Mock
}

func (m *archiverMock) Archive(ctx context.Context, extraFile, timestamp string) (artifact.File, error) {
	args := m.Called(ctx, extraFile, timestamp)
	return args.Get(0).(artifact.File), args.Error(1)
}

func (m *archiverMock) Extract(ctx context.Context, archivePath, dest string) error {
	args := m.Called(ctx, archivePath, dest)
	return args.Error(0)
}

// endregion

// region replayerMock
type replayerMock struct {
	mock.Mock
}

func (m *replayerMock) Restore(ctx context.Context, dumpPath string) error {
	args := m.Called(ctx, dumpPath)
	return args.Error(0)
}

// endregion

// region transferManagerMock
type transferManagerMock struct {
	mock.Mock
}

func (m *transferManagerMock) Lookup(name string) (ServiceInfo, error) {
	args := m.Called(name)
	return args.Get(0).(ServiceInfo), args.Error(1)
}

func (m *transferManagerMock) Info(t ServiceType) (ServiceInfo, error) {
	args := m.Called(t)
	return args.Get(0).(ServiceInfo), args.Error(1)
}

func (m *transferManagerMock) Open(ctx context.Context, t ServiceType) (Transfer, error) {
	args := m.Called(ctx, t)

	if tr := args.Get(0); tr != nil {
		return tr.(Transfer), args.Error(1)
	}

	return nil, args.Error(1)
}

// endregion

// region transferMock
type transferMock struct {
	mock.Mock
}

func (m *transferMock) Upload(ctx context.Context, localPath string) (TransferResult, error) {
	args := m.Called(ctx, localPath)
	return args.Get(0).(TransferResult), args.Error(1)
}

func (m *transferMock) Download(ctx context.Context, remotePath, localDest string) error {
	args := m.Called(ctx, remotePath, localDest)
	return args.Error(0)
}

func (m *transferMock) Remove(ctx context.Context, remotePath string) error {
	args := m.Called(ctx, remotePath)
	return args.Error(0)
}

// endregion

// region leaseManagerMock
type leaseManagerMock struct {
	mock.Mock
}

func (m *leaseManagerMock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, name, ttl)

	if release := args.Get(0); release != nil {
		return release.(func()), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *leaseManagerMock) Active(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

// endregion

// region observerStub
type finishedJob struct {
	kind, service, status string
}

type observerStub struct {
	mu            sync.Mutex
	jobs          []finishedJob
	lastCompleted time.Time
}

func (o *observerStub) JobFinished(kind, service, status string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, finishedJob{kind, service, status})
}

func (o *observerStub) SetLastCompleted(at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastCompleted = at
}

// endregion

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard

	return logger
}

const (
	fingerprint = "fp"
	leaseTTL    = time.Hour
)

var (
	fixedNow  = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	timestamp = artifact.Timestamp(fixedNow)

	localInfo = ServiceInfo{Type: ServiceTypeLocal, Name: "Localhost"}
	ftpInfo   = ServiceInfo{Type: ServiceTypeFTP, Name: "FTP"}
)

type fixture struct {
	root    string
	workdir *workdir.Manager

	repo      *backupRepositoryMock
	dumper    *dumperMock
	archiver  *archiverMock
	replayer  *replayerMock
	transfers *transferManagerMock
	transfer  *transferMock
	leases    *leaseManagerMock
	observer  *observerStub

	statuses []Status
	released int
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()

	return &fixture{
		root:      root,
		workdir:   workdir.New(root+"/backup", "https://example.com/backup/"),
		repo:      &backupRepositoryMock{},
		dumper:    &dumperMock{},
		archiver:  &archiverMock{},
		replayer:  &replayerMock{},
		transfers: &transferManagerMock{},
		transfer:  &transferMock{},
		leases:    &leaseManagerMock{},
		observer:  &observerStub{},
	}
}

func (f *fixture) backupService() *BackupService {
	svc := NewBackupService(discardLogger(), f.repo, f.dumper, f.archiver, f.workdir, f.transfers, f.leases, f.observer, leaseTTL)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func (f *fixture) restoreService() *RestoreService {
	svc := NewRestoreService(discardLogger(), f.repo, f.archiver, f.replayer, f.workdir, f.transfers, f.leases, f.observer, f.root, leaseTTL)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func (f *fixture) recordUpdates() {
	f.repo.On("Update", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		f.statuses = append(f.statuses, args.Get(1).(Backup).Status)
	}).Return(nil)
}

func (f *fixture) grantLease(name string) {
	f.leases.On("Acquire", mock.Anything, name, leaseTTL).Return(func() { f.released++ }, nil)
}

// expectAdmission sets up a successful admission for a backup on the given service.
func (f *fixture) expectAdmission(info ServiceInfo) {
	f.transfers.On("Lookup", info.Name).Return(info, nil)
	f.transfers.On("Open", mock.Anything, info.Type).Return(f.transfer, nil)
	f.grantLease(LeaseBackupJob)
	f.leases.On("Active", mock.Anything, LeaseRestoreRunning).Return(false, nil)
	f.repo.On("FindActive", mock.Anything).Return([]Backup{}, nil)
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(b Backup) bool {
		return b.Status == StatusInProgress && b.ServiceType == info.Type && b.CreatorUserId == 1
	})).Return(Backup{Id: 7, CreatorUserId: 1, ServiceType: info.Type, Status: StatusInProgress}, nil)
}

// expectArtifacts makes dumper and archiver produce real files inside the working directory.
func (f *fixture) expectArtifacts(t *testing.T) (dump, archive artifact.File) {
	require.NoError(t, f.workdir.Ensure())

	dumpName := artifact.DumpName(fingerprint, timestamp)
	archiveName := artifact.ArchiveName(fingerprint, timestamp)

	dump = artifact.File{Name: dumpName, Path: f.workdir.Path(dumpName), Url: f.workdir.URL(dumpName)}
	archive = artifact.File{Name: archiveName, Path: f.workdir.Path(archiveName), Url: f.workdir.URL(archiveName)}

	f.dumper.On("Dump", mock.Anything, timestamp).Run(func(mock.Arguments) {
		require.NoError(t, os.WriteFile(dump.Path, []byte("INSERT INTO users VALUES (1);\n"), 0644))
	}).Return(dump, nil)

	f.archiver.On("Archive", mock.Anything, dump.Path, timestamp).Run(func(mock.Arguments) {
		require.NoError(t, os.WriteFile(archive.Path, []byte("zip"), 0644))
	}).Return(archive, nil)

	return dump, archive
}

// region Test: CreateBackup
func TestBackupService_CreateBackup_Local(t *testing.T) {
	f := newFixture(t)
	f.expectAdmission(localInfo)
	f.recordUpdates()
	dump, archive := f.expectArtifacts(t)

	var notified []string
	onComplete := func(ctx context.Context, url string) { notified = append(notified, url) }

	backup, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{
		ServiceName: "Localhost",
		UserId:      1,
		OnComplete:  onComplete,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, backup.Status)
	assert.Equal(t, ServiceTypeLocal, backup.ServiceType)
	assert.Equal(t, "https://example.com/backup/"+archive.Name, backup.URL())
	assert.Equal(t, archive.Path, backup.Path())
	assert.Equal(t, fixedNow, backup.ModifiedAt)

	assert.Equal(t, []Status{StatusCompleted}, f.statuses)
	assert.Equal(t, []string{backup.URL()}, notified)
	assert.Equal(t, 1, f.released)

	// local artifacts stay where they are, restore needs both
	assert.FileExists(t, dump.Path)
	assert.FileExists(t, archive.Path)

	assert.Equal(t, []finishedJob{{JobBackup, "Localhost", "Completed"}}, f.observer.jobs)
	assert.Equal(t, fixedNow, f.observer.lastCompleted)

	f.transfer.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestBackupService_CreateBackup_Remote(t *testing.T) {
	f := newFixture(t)
	f.expectAdmission(ftpInfo)
	f.recordUpdates()
	dump, archive := f.expectArtifacts(t)

	f.transfer.On("Upload", mock.Anything, archive.Path).
		Return(TransferResult{Url: "ftp://ftp.example.com/backups/" + archive.Name, Path: "/backups/" + archive.Name}, nil)

	backup, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "FTP", UserId: 1})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, backup.Status)
	assert.Equal(t, "ftp://ftp.example.com/backups/"+archive.Name, backup.URL())
	assert.Equal(t, "/backups/"+archive.Name, backup.Path())

	assert.Equal(t, []Status{StatusUploading, StatusCompleted}, f.statuses)

	assert.NoFileExists(t, dump.Path)
	assert.NoFileExists(t, archive.Path)
}

func TestBackupService_CreateBackup_UploadFailure(t *testing.T) {
	f := newFixture(t)
	f.expectAdmission(ftpInfo)
	f.recordUpdates()
	_, archive := f.expectArtifacts(t)

	f.transfer.On("Upload", mock.Anything, archive.Path).
		Return(TransferResult{}, errors.New("550 Permission denied"))

	notified := false

	backup, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{
		ServiceName: "FTP",
		UserId:      1,
		OnComplete:  func(context.Context, string) { notified = true },
	})

	require.NoError(t, err)
	assert.Equal(t, StatusError, backup.Status)
	assert.Equal(t, "550 Permission denied", backup.MessageText())
	assert.Equal(t, "", backup.URL())

	assert.Equal(t, []Status{StatusUploading, StatusError}, f.statuses)
	assert.False(t, notified)
	assert.Equal(t, 1, f.released)
	assert.Equal(t, []finishedJob{{JobBackup, "FTP", "Error"}}, f.observer.jobs)
}

func TestBackupService_CreateBackup_DumpFailure(t *testing.T) {
	f := newFixture(t)
	f.expectAdmission(localInfo)
	f.recordUpdates()

	f.dumper.On("Dump", mock.Anything, timestamp).
		Return(artifact.File{}, errors.New("Access denied for user 'wp'@'localhost'"))

	backup, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "Localhost", UserId: 1})

	require.NoError(t, err)
	assert.Equal(t, StatusError, backup.Status)
	assert.Equal(t, "Access denied for user 'wp'@'localhost'", backup.MessageText())
	assert.Equal(t, []Status{StatusError}, f.statuses)

	f.archiver.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything, mock.Anything)
}

func TestBackupService_CreateBackup_ArchiveFailure(t *testing.T) {
	f := newFixture(t)
	f.expectAdmission(ftpInfo)
	f.recordUpdates()

	f.dumper.On("Dump", mock.Anything, timestamp).Return(artifact.File{Path: "/tmp/dump.sql"}, nil)
	f.archiver.On("Archive", mock.Anything, "/tmp/dump.sql", timestamp).
		Return(artifact.File{}, errors.New("Error while creating archive file"))

	backup, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "FTP", UserId: 1})

	require.NoError(t, err)
	assert.Equal(t, StatusError, backup.Status)
	assert.Equal(t, []Status{StatusError}, f.statuses)

	f.transfer.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestBackupService_CreateBackup_RefusedWhileJobActive(t *testing.T) {
	f := newFixture(t)

	f.transfers.On("Lookup", "Localhost").Return(localInfo, nil)
	f.transfers.On("Open", mock.Anything, ServiceTypeLocal).Return(f.transfer, nil)
	f.grantLease(LeaseBackupJob)
	f.leases.On("Active", mock.Anything, LeaseRestoreRunning).Return(false, nil)
	f.repo.On("FindActive", mock.Anything).Return([]Backup{{Id: 3, Status: StatusUploading}}, nil)

	_, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "Localhost", UserId: 1})

	assert.Equal(t, ErrJobActive, err)
	assert.Equal(t, 1, f.released)

	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.dumper.AssertNotCalled(t, "Dump", mock.Anything, mock.Anything)
}

func TestBackupService_CreateBackup_RefusedWhileLeaseHeld(t *testing.T) {
	f := newFixture(t)

	f.transfers.On("Lookup", "Localhost").Return(localInfo, nil)
	f.transfers.On("Open", mock.Anything, ServiceTypeLocal).Return(f.transfer, nil)
	f.leases.On("Acquire", mock.Anything, LeaseBackupJob, leaseTTL).
		Return(nil, errors.Wrap(ErrLeaseHeld, LeaseBackupJob))

	_, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "Localhost", UserId: 1})

	assert.Equal(t, ErrJobActive, err)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBackupService_CreateBackup_RefusedWhileRestoring(t *testing.T) {
	f := newFixture(t)

	f.transfers.On("Lookup", "Localhost").Return(localInfo, nil)
	f.transfers.On("Open", mock.Anything, ServiceTypeLocal).Return(f.transfer, nil)
	f.grantLease(LeaseBackupJob)
	f.leases.On("Active", mock.Anything, LeaseRestoreRunning).Return(true, nil)

	_, err := f.backupService().CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "Localhost", UserId: 1})

	assert.Equal(t, ErrRestoreRunning, err)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBackupService_CreateBackup_ConfigurationErrors(t *testing.T) {
	f := newFixture(t)

	f.transfers.On("Lookup", "Dropbox").Return(ServiceInfo{}, errors.Wrap(ErrInvalidService, "Dropbox"))
	f.transfers.On("Lookup", "FTP").Return(ftpInfo, nil)
	f.transfers.On("Open", mock.Anything, ServiceTypeFTP).Return(nil, errors.Wrap(ErrMissingCredentials, "FTP"))

	svc := f.backupService()

	_, err := svc.CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "Dropbox", UserId: 1})
	assert.Equal(t, ErrInvalidService, errors.Cause(err))

	_, err = svc.CreateBackup(context.Background(), CreateBackupRequest{ServiceName: "FTP", UserId: 1})
	assert.Equal(t, ErrMissingCredentials, errors.Cause(err))

	f.leases.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBackupService_Admit(t *testing.T) {
	f := newFixture(t)

	f.transfers.On("Lookup", "Localhost").Return(localInfo, nil)
	f.transfers.On("Open", mock.Anything, ServiceTypeLocal).Return(f.transfer, nil)
	f.leases.On("Active", mock.Anything, LeaseBackupJob).Return(false, nil).Once()
	f.leases.On("Active", mock.Anything, LeaseRestoreRunning).Return(false, nil)
	f.repo.On("FindActive", mock.Anything).Return([]Backup{}, nil)

	svc := f.backupService()

	info, err := svc.Admit(context.Background(), "Localhost")
	require.NoError(t, err)
	assert.Equal(t, localInfo, info)

	f.leases.On("Active", mock.Anything, LeaseBackupJob).Return(true, nil)

	_, err = svc.Admit(context.Background(), "Localhost")
	assert.Equal(t, ErrJobActive, err)
}

// endregion

// region Test: AbortUnfinished
func TestBackupService_AbortUnfinished(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindActive", mock.Anything).Return([]Backup{
		{Id: 1, Status: StatusInProgress},
		{Id: 2, Status: StatusUploading},
	}, nil)

	var aborted []Backup
	f.repo.On("Update", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		aborted = append(aborted, args.Get(1).(Backup))
	}).Return(nil)

	require.NoError(t, f.backupService().AbortUnfinished(context.Background()))

	require.Len(t, aborted, 2)
	for _, b := range aborted {
		assert.Equal(t, StatusError, b.Status)
		assert.Equal(t, interruptedMessage, b.MessageText())
	}
}

// endregion

// region Test: DeleteBackup
func TestBackupService_DeleteBackup_Local(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.workdir.Ensure())

	archiveName := artifact.ArchiveName(fingerprint, timestamp)
	dumpName := artifact.DumpName(fingerprint, timestamp)
	require.NoError(t, os.WriteFile(f.workdir.Path(archiveName), []byte("zip"), 0644))
	require.NoError(t, os.WriteFile(f.workdir.Path(dumpName), []byte("sql"), 0644))

	f.repo.On("FindById", mock.Anything, int64(5)).Return(Backup{
		Id:          5,
		ServiceType: ServiceTypeLocal,
		Status:      StatusCompleted,
		BackupUrl:   StringPtr(f.workdir.URL(archiveName)),
	}, nil)
	f.transfers.On("Info", ServiceTypeLocal).Return(localInfo, nil)
	f.repo.On("MarkDeleted", mock.Anything, int64(5), fixedNow).Return(nil)

	require.NoError(t, f.backupService().DeleteBackup(context.Background(), 5))

	assert.NoFileExists(t, f.workdir.Path(archiveName))
	assert.NoFileExists(t, f.workdir.Path(dumpName))
	f.repo.AssertExpectations(t)
}

func TestBackupService_DeleteBackup_Remote(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindById", mock.Anything, int64(5)).Return(Backup{
		Id:          5,
		ServiceType: ServiceTypeFTP,
		Status:      StatusCompleted,
		BackupUrl:   StringPtr("ftp://ftp.example.com/backups/a.zip"),
		BackupPath:  StringPtr("/backups/a.zip"),
	}, nil)
	f.transfers.On("Info", ServiceTypeFTP).Return(ftpInfo, nil)
	f.transfers.On("Open", mock.Anything, ServiceTypeFTP).Return(f.transfer, nil)
	f.transfer.On("Remove", mock.Anything, "/backups/a.zip").Return(errors.New("550 No such file"))
	f.repo.On("MarkDeleted", mock.Anything, int64(5), fixedNow).Return(nil)

	// remote removal is best effort
	require.NoError(t, f.backupService().DeleteBackup(context.Background(), 5))

	f.transfer.AssertExpectations(t)
	f.repo.AssertExpectations(t)
}

func TestBackupService_DeleteBackup_Refused(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindById", mock.Anything, int64(5)).Return(Backup{Id: 5, Status: StatusUploading}, nil)
	f.repo.On("FindById", mock.Anything, int64(6)).Return(Backup{}, ErrBackupNotFound)

	svc := f.backupService()

	assert.Equal(t, ErrJobActive, svc.DeleteBackup(context.Background(), 5))
	assert.Equal(t, ErrBackupNotFound, svc.DeleteBackup(context.Background(), 6))

	f.repo.AssertNotCalled(t, "MarkDeleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestArtifactPaths(t *testing.T) {
	wd := workdir.New("/srv/site/backup", "https://example.com/backup")

	archivePath, dumpPath, err := ArtifactPaths(wd, Backup{
		BackupUrl: StringPtr("https://example.com/backup/oping_archive_fp_20240102030405.zip"),
	})

	require.NoError(t, err)
	assert.Equal(t, "/srv/site/backup/oping_archive_fp_20240102030405.zip", archivePath)
	assert.Equal(t, "/srv/site/backup/oping_db_fp_20240102030405.sql", dumpPath)

	_, _, err = ArtifactPaths(wd, Backup{BackupUrl: StringPtr("https://example.com/backup/other.zip")})
	assert.Error(t, err)
}

// endregion
