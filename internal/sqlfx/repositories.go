package sqlfx

import (
	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/sitebackuper/pkg/credentials"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/http/handler"
	"github.com/yurykabanov/sitebackuper/pkg/lease"
	"github.com/yurykabanov/sitebackuper/pkg/storage"
)

func BackupsRepository(db *sqlx.DB) (
	*storage.BackupRepository,
	domain.BackupRepository,
	handler.BackupRepository,
) {
	repo := storage.NewBackupRepository(db)

	return repo, repo, repo
}

func ServicesRepository(db *sqlx.DB) credentials.Repository {
	return storage.NewServiceRepository(db)
}

func LeasesRepository(db *sqlx.DB) lease.Repository {
	return storage.NewLeaseRepository(db)
}
