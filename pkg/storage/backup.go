package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

const (
	backupColumns = `
		id, creator_user_id, service_type,
		backup_url, backup_path, status, message,
		is_deleted, created_at, modified_at
	`

	backupInsertQuery = `
		INSERT INTO backups (
			creator_user_id, service_type,
			backup_url, backup_path, status, message,
			is_deleted, created_at, modified_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	backupUpdateQuery = `
		UPDATE backups SET
			creator_user_id = ?, service_type = ?,
			backup_url = ?, backup_path = ?, status = ?, message = ?,
			is_deleted = ?, modified_at = ?
		WHERE id = ?
	`

	backupSelectById = `SELECT ` + backupColumns + ` FROM backups WHERE id = ? AND is_deleted = 0`

	backupSelectActive = `SELECT ` + backupColumns + ` FROM backups WHERE status IN (?) ORDER BY id`

	backupSelectLatestCompleted = `
		SELECT ` + backupColumns + ` FROM backups
		WHERE status = ? AND backup_url IS NOT NULL AND is_deleted = 0
		ORDER BY id DESC
		LIMIT 1
	`

	backupMarkDeleted = `UPDATE backups SET is_deleted = 1, modified_at = ? WHERE id = ? AND is_deleted = 0`
)

var backupOrderColumns = map[string]bool{
	"id":              true,
	"creator_user_id": true,
	"service_type":    true,
	"backup_url":      true,
	"backup_path":     true,
	"status":          true,
	"message":         true,
	"created_at":      true,
	"modified_at":     true,
}

var ErrInvalidOrder = errors.New("invalid order")

type BackupRepository struct {
	db *sqlx.DB
}

func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{
		db: db,
	}
}

func (r *BackupRepository) Create(ctx context.Context, backup domain.Backup) (domain.Backup, error) {
	res, err := r.db.ExecContext(
		ctx,
		backupInsertQuery,
		backup.CreatorUserId, backup.ServiceType,
		backup.BackupUrl, backup.BackupPath, backup.Status, backup.Message,
		backup.IsDeleted, backup.CreatedAt, backup.ModifiedAt,
	)
	if err != nil {
		return backup, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return backup, err
	}

	backup.Id = id

	return backup, nil
}

func (r *BackupRepository) Update(ctx context.Context, backup domain.Backup) error {
	_, err := r.db.ExecContext(
		ctx,
		backupUpdateQuery,
		backup.CreatorUserId, backup.ServiceType,
		backup.BackupUrl, backup.BackupPath, backup.Status, backup.Message,
		backup.IsDeleted, backup.ModifiedAt,
		backup.Id,
	)

	return err
}

// Get lists records matching the filter. Soft deleted records are never returned.
func (r *BackupRepository) Get(ctx context.Context, filter domain.BackupFilter) ([]domain.Backup, error) {
	var (
		where = []string{"is_deleted = 0"}
		args  []interface{}
	)

	if filter.Id != 0 {
		where = append(where, "id = ?")
		args = append(args, filter.Id)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.ServiceType != 0 {
		where = append(where, "service_type = ?")
		args = append(args, filter.ServiceType)
	}

	orderBy := "id"
	if filter.OrderBy != "" {
		if !backupOrderColumns[filter.OrderBy] {
			return nil, errors.Wrapf(ErrInvalidOrder, "column %q", filter.OrderBy)
		}
		orderBy = filter.OrderBy
	}

	order := "DESC"
	switch strings.ToLower(filter.Order) {
	case "":
	case "asc":
		order = "ASC"
	case "desc":
	default:
		return nil, errors.Wrapf(ErrInvalidOrder, "direction %q", filter.Order)
	}

	query := `SELECT ` + backupColumns + ` FROM backups WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + orderBy + ` ` + order

	var backups []domain.Backup

	err := r.db.SelectContext(ctx, &backups, query, args...)
	if err != nil {
		return nil, err
	}

	return backups, nil
}

func (r *BackupRepository) FindById(ctx context.Context, id int64) (domain.Backup, error) {
	var backup domain.Backup

	err := r.db.GetContext(ctx, &backup, backupSelectById, id)
	if err == sql.ErrNoRows {
		return backup, errors.Wrapf(domain.ErrBackupNotFound, "id %d", id)
	}

	return backup, err
}

func (r *BackupRepository) FindActive(ctx context.Context) ([]domain.Backup, error) {
	query, args, err := sqlx.In(backupSelectActive, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var backups []domain.Backup

	err = r.db.SelectContext(ctx, &backups, query, args...)
	if err != nil {
		return nil, err
	}

	return backups, nil
}

func (r *BackupRepository) LatestCompleted(ctx context.Context) (domain.Backup, error) {
	var backup domain.Backup

	err := r.db.GetContext(ctx, &backup, backupSelectLatestCompleted, domain.StatusCompleted)
	if err == sql.ErrNoRows {
		return backup, domain.ErrBackupNotFound
	}

	return backup, err
}

func (r *BackupRepository) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, backupMarkDeleted, at, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrBackupNotFound, "id %d", id)
	}

	return nil
}
