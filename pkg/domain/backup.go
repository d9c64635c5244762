package domain

import "time"

type Status int

const (
	// Some step of the job failed, see Message
	StatusError Status = iota

	// Record created, dump and archive are being produced
	StatusInProgress

	// Archive is being transferred to a remote service
	StatusUploading

	// Archive is being fetched back from a remote service
	StatusDownloading

	// Archive exists and its location is stored in BackupUrl/BackupPath
	StatusCompleted

	// Archive has been restored over the live site
	StatusRestored
)

// Statuses which hold the backup working directory.
var StatusActive = []Status{StatusInProgress, StatusUploading, StatusDownloading}

var statusLabels = map[Status]string{
	StatusError:       "Error",
	StatusInProgress:  "In Progress",
	StatusUploading:   "Uploading",
	StatusDownloading: "Downloading",
	StatusCompleted:   "Completed",
	StatusRestored:    "Restored",
}

func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return statusLabels[StatusError]
}

func (s Status) IsActive() bool {
	for _, active := range StatusActive {
		if s == active {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

type Backup struct {
	Id int64

	CreatorUserId int64

	ServiceType ServiceType

	// locator of the archive, nil until the archive exists
	BackupUrl *string

	// on-disk or remote path of the archive, nil until the archive exists
	BackupPath *string

	Status Status

	// diagnostic of the failed step
	Message *string

	IsDeleted bool

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// URL returns backup url or empty string when the archive is not yet available.
func (b Backup) URL() string {
	if b.BackupUrl == nil {
		return ""
	}
	return *b.BackupUrl
}

func (b Backup) Path() string {
	if b.BackupPath == nil {
		return ""
	}
	return *b.BackupPath
}

func (b Backup) MessageText() string {
	if b.Message == nil {
		return ""
	}
	return *b.Message
}

type BackupFilter struct {
	Id          int64
	Status      *Status
	ServiceType ServiceType

	// column name, see storage for the allowed set
	OrderBy string
	// "asc" or "desc"
	Order string
}

func StringPtr(s string) *string {
	return &s
}
