package sitedb

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
)

type ReplayResult struct {
	Created   int
	Truncated int
	Inserted  int
	Skipped   int
	Ignored   int
}

// Replayer applies a dump produced by Dumper (or a compatible tool) to the site database.
// Only CREATE TABLE and INSERT INTO statements are applied.
type Replayer struct {
	logger logrus.FieldLogger

	db        *sqlx.DB
	dialect   Dialect
	protected map[string]struct{}
}

// NewReplayer never touches the protected tables, whatever the dump contains.
func NewReplayer(logger logrus.FieldLogger, db *sqlx.DB, dialect Dialect, protected ...string) *Replayer {
	p := make(map[string]struct{}, len(protected))
	for _, name := range protected {
		p[strings.ToLower(name)] = struct{}{}
	}

	return &Replayer{
		logger:    logger,
		db:        db,
		dialect:   dialect,
		protected: p,
	}
}

func (r *Replayer) Replay(ctx context.Context, path string) (ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayResult{}, errors.Wrap(err, "Unable to open dump")
	}
	defer f.Close()

	return r.ReplayReader(ctx, f)
}

// Restore replays the dump file and logs what was applied.
func (r *Replayer) Restore(ctx context.Context, path string) error {
	result, err := r.Replay(ctx, path)
	if err != nil {
		return err
	}

	appcontext.LoggerFromContext(r.logger, ctx).WithFields(logrus.Fields{
		"created":   result.Created,
		"truncated": result.Truncated,
		"inserted":  result.Inserted,
		"skipped":   result.Skipped,
		"ignored":   result.Ignored,
	}).Info("Dump replayed")

	return nil
}

func (r *Replayer) ReplayReader(ctx context.Context, in io.Reader) (ReplayResult, error) {
	var result ReplayResult

	t := newTokenizer(r.dialect.BackslashEscapes())
	br := bufio.NewReader(in)

	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return result, errors.Wrap(readErr, "Unable to read dump")
		}

		for _, stmt := range t.feed(line) {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := r.apply(ctx, stmt, &result); err != nil {
				return result, err
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	if rest := t.rest(); rest != "" {
		appcontext.LoggerFromContext(r.logger, ctx).
			WithField("statement", preview(rest)).
			Warn("Dump ends with an unterminated statement, ignoring it")
	}

	return result, nil
}

func (r *Replayer) apply(ctx context.Context, stmt string, result *ReplayResult) error {
	logger := appcontext.LoggerFromContext(r.logger, ctx)

	kind, table := classify(stmt)

	if kind == stmtOther {
		result.Ignored++
		return nil
	}

	if _, ok := r.protected[strings.ToLower(table)]; ok {
		logger.WithField("table", table).Debug("Skipping statement for protected table")
		result.Skipped++
		return nil
	}

	switch kind {
	case stmtCreate:
		exists, err := r.dialect.TableExists(ctx, r.db, table)
		if err != nil {
			return errors.Wrapf(err, "Unable to check table %s", table)
		}

		if exists {
			if _, err := r.db.ExecContext(ctx, r.dialect.Truncate(table)); err != nil {
				return errors.Wrapf(err, "Unable to truncate table %s", table)
			}
			result.Truncated++
			return nil
		}

		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "Unable to create table %s", table)
		}
		result.Created++
	case stmtInsert:
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "Unable to insert into %s", table)
		}
		result.Inserted++
	}

	return nil
}

type stmtKind int

const (
	stmtOther stmtKind = iota
	stmtCreate
	stmtInsert
)

func classify(stmt string) (stmtKind, string) {
	upper := strings.ToUpper(stmt)

	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		rest := strings.TrimSpace(stmt[len("CREATE TABLE"):])
		if strings.HasPrefix(strings.ToUpper(rest), "IF NOT EXISTS") {
			rest = strings.TrimSpace(rest[len("IF NOT EXISTS"):])
		}
		return stmtCreate, tableName(rest)
	case strings.HasPrefix(upper, "INSERT INTO"):
		return stmtInsert, tableName(strings.TrimSpace(stmt[len("INSERT INTO"):]))
	}

	return stmtOther, ""
}

// tableName reads a possibly quoted, possibly schema qualified identifier
// from the start of s and returns its last part.
func tableName(s string) string {
	var parts []string

	for {
		if s == "" {
			break
		}

		var part string
		switch s[0] {
		case '`', '"', '[':
			closing := s[0]
			if closing == '[' {
				closing = ']'
			}
			end := strings.IndexByte(s[1:], closing)
			if end < 0 {
				return strings.Trim(s, "`\"[]")
			}
			part, s = s[1:end+1], s[end+2:]
		default:
			end := strings.IndexAny(s, " \t\r\n(.")
			if end < 0 {
				end = len(s)
			}
			part, s = s[:end], s[end:]
		}

		parts = append(parts, part)

		if !strings.HasPrefix(s, ".") {
			break
		}
		s = s[1:]
	}

	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func preview(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// tokenizer splits dump text into statements on ';' outside string literals.
// Lines starting a comment are dropped unless they continue a literal.
type tokenizer struct {
	backslash bool

	buf    strings.Builder
	quote  byte
	escape bool
}

func newTokenizer(backslash bool) *tokenizer {
	return &tokenizer{backslash: backslash}
}

func (t *tokenizer) feed(line string) []string {
	if t.quote == 0 {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed) {
			return nil
		}
	}

	var result []string

	for i := 0; i < len(line); i++ {
		c := line[i]

		if t.quote != 0 {
			t.buf.WriteByte(c)

			switch {
			case t.escape:
				t.escape = false
			case c == '\\' && t.backslash && t.quote != '`':
				t.escape = true
			case c == t.quote:
				t.quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			t.quote = c
			t.buf.WriteByte(c)
		case ';':
			if stmt := strings.TrimSpace(t.buf.String()); stmt != "" {
				result = append(result, stmt)
			}
			t.buf.Reset()
		default:
			if t.buf.Len() == 0 && (c == ' ' || c == '\t' || c == '\r' || c == '\n') {
				continue
			}
			t.buf.WriteByte(c)
		}
	}

	return result
}

func (t *tokenizer) rest() string {
	return strings.TrimSpace(t.buf.String())
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, "--") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#")
}
