package domain

import (
	"context"
	"time"
)

type TransferResult struct {
	// locator of the uploaded archive
	Url string
	// path of the archive inside the service, used by Download and Remove
	Path string
}

// Transfer moves archives between the working directory and a storage service.
type Transfer interface {
	Upload(ctx context.Context, localPath string) (TransferResult, error)
	Download(ctx context.Context, remotePath, localDest string) error
}

// Remover is implemented by transfers that can delete what they uploaded.
type Remover interface {
	Remove(ctx context.Context, remotePath string) error
}

type TransferManager interface {
	Lookup(name string) (ServiceInfo, error)
	Info(ServiceType) (ServiceInfo, error)
	Open(context.Context, ServiceType) (Transfer, error)
}

const (
	LeaseBackupJob      = "backup-job"
	LeaseRestoreRunning = "restore-running"
)

// LeaseManager hands out named, time-boxed exclusive markers.
type LeaseManager interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
	Active(ctx context.Context, name string) (bool, error)
}
