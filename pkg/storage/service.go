package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

const (
	serviceColumns = `id, creator_user_id, service_name, service_type, credential_blob, created_at, modified_at`

	serviceInsertQuery = `
		INSERT INTO backup_services (creator_user_id, service_name, service_type, credential_blob, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	serviceUpdateQuery = `
		UPDATE backup_services SET service_name = ?, credential_blob = ?, modified_at = ?
		WHERE id = ?
	`

	serviceDeleteQuery = `DELETE FROM backup_services WHERE id = ?`

	serviceSelectById   = `SELECT ` + serviceColumns + ` FROM backup_services WHERE id = ?`
	serviceSelectByType = `SELECT ` + serviceColumns + ` FROM backup_services WHERE service_type = ?`
	serviceSelectAll    = `SELECT ` + serviceColumns + ` FROM backup_services ORDER BY service_type`
)

type ServiceRepository struct {
	db *sqlx.DB
}

func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{
		db: db,
	}
}

func (r *ServiceRepository) Create(ctx context.Context, cfg domain.ServiceConfig) (domain.ServiceConfig, error) {
	res, err := r.db.ExecContext(
		ctx,
		serviceInsertQuery,
		cfg.CreatorUserId, cfg.ServiceName, cfg.ServiceType, cfg.CredentialBlob, cfg.CreatedAt, cfg.ModifiedAt,
	)
	if isConstraintViolation(err) {
		return cfg, domain.ErrServiceConfigExists
	}
	if err != nil {
		return cfg, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return cfg, err
	}

	cfg.Id = id

	return cfg, nil
}

func (r *ServiceRepository) Update(ctx context.Context, cfg domain.ServiceConfig) error {
	res, err := r.db.ExecContext(ctx, serviceUpdateQuery, cfg.ServiceName, cfg.CredentialBlob, cfg.ModifiedAt, cfg.Id)
	if err != nil {
		return err
	}

	return expectAffected(res, cfg.Id)
}

func (r *ServiceRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, serviceDeleteQuery, id)
	if err != nil {
		return err
	}

	return expectAffected(res, id)
}

func (r *ServiceRepository) FindById(ctx context.Context, id int64) (domain.ServiceConfig, error) {
	var cfg domain.ServiceConfig

	err := r.db.GetContext(ctx, &cfg, serviceSelectById, id)
	if err == sql.ErrNoRows {
		return cfg, errors.Wrapf(domain.ErrServiceNotFound, "id %d", id)
	}

	return cfg, err
}

func (r *ServiceRepository) FindByType(ctx context.Context, t domain.ServiceType) (domain.ServiceConfig, error) {
	var cfg domain.ServiceConfig

	err := r.db.GetContext(ctx, &cfg, serviceSelectByType, t)
	if err == sql.ErrNoRows {
		return cfg, errors.Wrapf(domain.ErrServiceNotFound, "type %d", t)
	}

	return cfg, err
}

func (r *ServiceRepository) FindAll(ctx context.Context) ([]domain.ServiceConfig, error) {
	var configs []domain.ServiceConfig

	err := r.db.SelectContext(ctx, &configs, serviceSelectAll)
	if err != nil {
		return nil, err
	}

	return configs, nil
}

func expectAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrServiceNotFound, "id %d", id)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
