package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/storage"
)

const (
	BackupJob      = domain.LeaseBackupJob
	RestoreRunning = domain.LeaseRestoreRunning
)

var ErrHeld = domain.ErrLeaseHeld

type Repository interface {
	Acquire(ctx context.Context, name, holder string, now, expiresAt time.Time) (bool, error)
	Renew(ctx context.Context, name, holder string, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, name, holder string) error
	Find(ctx context.Context, name string) (storage.Lease, error)
}

// Manager hands out named leases backed by the ledger database.
// A held lease is renewed at half its ttl until released, so a crashed
// holder blocks others for one ttl at most.
type Manager struct {
	logger logrus.FieldLogger
	repo   Repository

	now func() time.Time
}

func NewManager(logger logrus.FieldLogger, repo Repository) *Manager {
	return &Manager{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

// Acquire takes the lease or fails with ErrHeld. The returned release
// stops renewal and drops the lease; calling it more than once is fine.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	logger := appcontext.LoggerFromContext(m.logger, ctx).WithField("lease", name)

	holder := uuid.NewString()
	now := m.now()

	ok, err := m.repo.Acquire(ctx, name, holder, now, now.Add(ttl))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to acquire lease %s", name)
	}
	if !ok {
		return nil, errors.Wrap(ErrHeld, name)
	}

	logger.WithField("ttl", ttl).Debug("Lease acquired")

	stop := make(chan struct{})
	done := make(chan struct{})

	go m.renew(logger, name, holder, ttl, stop, done)

	var once sync.Once

	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := m.repo.Release(ctx, name, holder); err != nil {
				logger.WithError(err).Error("Unable to release lease")
				return
			}

			logger.Debug("Lease released")
		})
	}, nil
}

func (m *Manager) renew(logger logrus.FieldLogger, name, holder string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := ttl / 2
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			ok, err := m.repo.Renew(ctx, name, holder, m.now().Add(ttl))
			cancel()

			if err != nil {
				logger.WithError(err).Warn("Unable to renew lease")
				continue
			}
			if !ok {
				logger.Warn("Lease was lost before release")
				return
			}
		}
	}
}

// Active reports whether someone holds an unexpired lease with this name.
func (m *Manager) Active(ctx context.Context, name string) (bool, error) {
	l, err := m.repo.Find(ctx, name)
	if err == storage.ErrLeaseNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return l.ExpiresAt.After(m.now()), nil
}

// Lookup returns the current expiry of an active lease.
func (m *Manager) Lookup(ctx context.Context, name string) (time.Time, bool, error) {
	l, err := m.repo.Find(ctx, name)
	if err == storage.ErrLeaseNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	if !l.ExpiresAt.After(m.now()) {
		return time.Time{}, false, nil
	}

	return l.ExpiresAt, true, nil
}
