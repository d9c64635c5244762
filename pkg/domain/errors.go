package domain

import "github.com/pkg/errors"

var (
	ErrInvalidService       = errors.New("invalid service")
	ErrUnknownServiceType   = errors.New("unrecognized service type")
	ErrMissingCredentials   = errors.New("service is not configured")
	ErrJobActive            = errors.New("there is an active backup job")
	ErrRestoreRunning       = errors.New("restore is running")
	ErrBackupNotFound       = errors.New("backup not found")
	ErrServiceNotFound      = errors.New("service config not found")
	ErrServiceConfigExists  = errors.New("service is already configured")
	ErrBackupNotRestorable  = errors.New("backup has no artifact to restore")
	ErrArtifactsUnavailable = errors.New("backup artifacts not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrLeaseHeld            = errors.New("lease is held")
)
