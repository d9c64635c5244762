package sitedb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

var ErrUnsupportedDriver = errors.New("unsupported site database driver")

// Dialect hides the catalog queries and literal syntax of the site database engine.
type Dialect interface {
	Name() string
	Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error)
	CreateStatement(ctx context.Context, q sqlx.QueryerContext, table string) (string, error)
	TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error)
	Truncate(table string) string
	QuoteIdent(name string) string
	QuoteString(s string) string

	// whether a backslash escapes the next character inside string literals
	BackslashEscapes() bool
}

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return MySQL{}, nil
	case DriverSQLite:
		return SQLite{}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedDriver, "%q", driver)
}

// Open connects to the site database. MySQL DSNs are validated up front.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid site database DSN")
		}

		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to create site database connector")
		}

		return sqlx.NewDb(sql.OpenDB(connector), DriverMySQL), nil
	case DriverSQLite:
		db, err := sqlx.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to open site database")
		}
		return db, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedDriver, "%q", driver)
}

type MySQL struct{}

func (MySQL) Name() string {
	return DriverMySQL
}

func (MySQL) Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var tables []string

	err := sqlx.SelectContext(ctx, q, &tables, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)

	return tables, err
}

func (d MySQL) CreateStatement(ctx context.Context, q sqlx.QueryerContext, table string) (string, error) {
	var name, stmt string

	err := q.QueryRowxContext(ctx, "SHOW CREATE TABLE "+d.QuoteIdent(table)).Scan(&name, &stmt)

	return stmt, err
}

func (MySQL) TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error) {
	var count int

	err := sqlx.GetContext(ctx, q, &count, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?
	`, table)

	return count > 0, err
}

func (d MySQL) Truncate(table string) string {
	return "TRUNCATE TABLE " + d.QuoteIdent(table)
}

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func (MySQL) QuoteString(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

func (MySQL) BackslashEscapes() bool {
	return true
}

type SQLite struct{}

func (SQLite) Name() string {
	return DriverSQLite
}

func (SQLite) Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var tables []string

	err := sqlx.SelectContext(ctx, q, &tables, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)

	return tables, err
}

func (SQLite) CreateStatement(ctx context.Context, q sqlx.QueryerContext, table string) (string, error) {
	var stmt string

	err := sqlx.GetContext(ctx, q, &stmt, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table)

	return stmt, err
}

func (SQLite) TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error) {
	var count int

	err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)

	return count > 0, err
}

func (d SQLite) Truncate(table string) string {
	return "DELETE FROM " + d.QuoteIdent(table)
}

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (SQLite) BackslashEscapes() bool {
	return false
}
