package sqlfx

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sitebackuper/pkg/storage"
)

const (
	ConfigDbDsn          = "db.dsn"
	ConfigDbMaxOpenConns = "db.max_open_conns"

	databaseName = "sitebackuper"
)

// LedgerTables are the tables the ledger schema creates.
var LedgerTables = []string{"backups", "backup_services", "leases", "schema_migrations"}

// sqlite keeps these next to the database file while it is open
var sqliteSidecars = []string{"-journal", "-wal", "-shm"}

type SqliteConfig struct {
	DSN          string
	MaxOpenConns int
}

func SqliteConfigProvider(v *viper.Viper) (*SqliteConfig, error) {
	return &SqliteConfig{
		DSN:          v.GetString(ConfigDbDsn),
		MaxOpenConns: v.GetInt(ConfigDbMaxOpenConns),
	}, nil
}

// Path is the absolute path of the ledger file, empty for in-memory databases.
func (c *SqliteConfig) Path() string {
	return sqlitePath(c.DSN)
}

// Files lists the ledger file and the sidecar files sqlite may create for it.
func (c *SqliteConfig) Files() []string {
	path := c.Path()
	if path == "" {
		return nil
	}

	files := []string{path}
	for _, suffix := range sqliteSidecars {
		files = append(files, path+suffix)
	}

	return files
}

func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	if path == "" || path == ":memory:" {
		return ""
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	return abs
}

// OpenSqliteDatabase opens the ledger database and applies pending migrations.
func OpenSqliteDatabase(config *SqliteConfig, logger *logrus.Logger) (*sqlx.DB, error) {
	logger.WithField("dsn", config.DSN).Debug("Connecting to DB with DSN")

	db, err := storage.Open(config.DSN)
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	if err := storage.Migrate(db, databaseName); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func CloseSqliteDatabase(lc fx.Lifecycle, db *sqlx.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
