package sitedb

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/artifact"
)

const rowsPerInsert = 100

type Workdir interface {
	Path(name string) string
	URL(name string) string
}

// Dumper writes a logical dump (schema and data) of the site database.
type Dumper struct {
	logger logrus.FieldLogger

	db          *sqlx.DB
	dialect     Dialect
	workdir     Workdir
	fingerprint string
}

func NewDumper(logger logrus.FieldLogger, db *sqlx.DB, dialect Dialect, workdir Workdir, fingerprint string) *Dumper {
	return &Dumper{
		logger:      logger,
		db:          db,
		dialect:     dialect,
		workdir:     workdir,
		fingerprint: fingerprint,
	}
}

// Dump errors carry the database error text unchanged.
func (d *Dumper) Dump(ctx context.Context, timestamp string) (artifact.File, error) {
	logger := appcontext.LoggerFromContext(d.logger, ctx)

	name := artifact.DumpName(d.fingerprint, timestamp)
	path := d.workdir.Path(name)

	tables, err := d.dialect.Tables(ctx, d.db)
	if err != nil {
		return artifact.File{}, errors.WithStack(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return artifact.File{}, errors.WithStack(err)
	}

	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "-- Site database dump\n-- Engine: %s\n-- Generated: %s\n\n", d.dialect.Name(), time.Now().UTC().Format(time.RFC3339))

	for _, table := range tables {
		err = d.dumpTable(ctx, w, table)
		if err != nil {
			break
		}
		logger.WithField("table", table).Debug("Table dumped")
	}

	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return artifact.File{}, errors.WithStack(err)
	}

	return artifact.File{
		Name: name,
		Path: path,
		Url:  d.workdir.URL(name),
	}, nil
}

func (d *Dumper) dumpTable(ctx context.Context, w *bufio.Writer, table string) error {
	create, err := d.dialect.CreateStatement(ctx, d.db, table)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--\n-- Table %s\n--\n\n%s;\n\n", table, strings.TrimRight(create, "; \n"))

	rows, err := d.db.QueryxContext(ctx, "SELECT * FROM "+d.dialect.QuoteIdent(table))
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.ColumnTypes()
	if err != nil {
		return err
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.dialect.QuoteIdent(c.Name())
	}
	prefix := "INSERT INTO " + d.dialect.QuoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES\n"

	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	batch := 0
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return err
		}

		if batch == 0 {
			w.WriteString(prefix)
		} else {
			w.WriteString(",\n")
		}

		w.WriteString("(")
		for i, v := range values {
			if i > 0 {
				w.WriteString(", ")
			}
			w.WriteString(d.literal(v, columns[i]))
		}
		w.WriteString(")")

		batch++
		if batch == rowsPerInsert {
			w.WriteString(";\n")
			batch = 0
		}
	}
	if batch > 0 {
		w.WriteString(";\n")
	}
	w.WriteString("\n")

	return rows.Err()
}

func (d *Dumper) literal(v interface{}, column *sql.ColumnType) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return d.dialect.QuoteString(val.Format("2006-01-02 15:04:05"))
	case string:
		return d.dialect.QuoteString(val)
	case []byte:
		typ := strings.ToUpper(column.DatabaseTypeName())
		switch {
		case isBinaryType(typ):
			if len(val) == 0 {
				return "''"
			}
			return "X'" + hex.EncodeToString(val) + "'"
		case isNumericType(typ) && isNumber(string(val)):
			return string(val)
		}
		return d.dialect.QuoteString(string(val))
	}

	return d.dialect.QuoteString(fmt.Sprint(v))
}

func isBinaryType(typ string) bool {
	return strings.Contains(typ, "BLOB") || strings.Contains(typ, "BINARY")
}

func isNumericType(typ string) bool {
	switch strings.TrimPrefix(typ, "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL":
		return true
	}
	return false
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
