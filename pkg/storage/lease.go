package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	// the conflicting row is taken over only when it has expired
	leaseAcquireQuery = `
		INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE leases.expires_at <= ?
	`

	leaseRenewQuery   = `UPDATE leases SET expires_at = ? WHERE name = ? AND holder = ?`
	leaseReleaseQuery = `DELETE FROM leases WHERE name = ? AND holder = ?`
	leaseSelectQuery  = `SELECT name, holder, expires_at FROM leases WHERE name = ?`
)

var ErrLeaseNotFound = errors.New("lease not found")

type Lease struct {
	Name      string
	Holder    string
	ExpiresAt time.Time
}

type leaseRow struct {
	Name      string
	Holder    string
	ExpiresAt int64
}

type LeaseRepository struct {
	db *sqlx.DB
}

func NewLeaseRepository(db *sqlx.DB) *LeaseRepository {
	return &LeaseRepository{
		db: db,
	}
}

// Acquire atomically takes the lease when it is free or expired.
func (r *LeaseRepository) Acquire(ctx context.Context, name, holder string, now, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, leaseAcquireQuery, name, holder, millis(expiresAt), millis(now))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *LeaseRepository) Renew(ctx context.Context, name, holder string, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, leaseRenewQuery, millis(expiresAt), name, holder)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *LeaseRepository) Release(ctx context.Context, name, holder string) error {
	_, err := r.db.ExecContext(ctx, leaseReleaseQuery, name, holder)
	return err
}

func (r *LeaseRepository) Find(ctx context.Context, name string) (Lease, error) {
	var row leaseRow

	err := r.db.GetContext(ctx, &row, leaseSelectQuery, name)
	if err == sql.ErrNoRows {
		return Lease{}, ErrLeaseNotFound
	}
	if err != nil {
		return Lease{}, err
	}

	return Lease{
		Name:      row.Name,
		Holder:    row.Holder,
		ExpiresAt: time.UnixMilli(row.ExpiresAt),
	}, nil
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
