package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNotFound      = errors.New("not found")
	ErrJobRunning    = errors.New("publish job is running")
	ErrJobNotRunning = errors.New("publish job is not running")
	ErrJobNotStuck   = errors.New("publish job is still within its running window")
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is the shared handle behind every repository. Postgres is the production
// backend; SQLite serves local runs and tests.
type DB struct {
	conn    *sql.DB
	sb      sq.StatementBuilderType
	dialect Dialect
	now     func() time.Time
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to databaseURL ("postgres://..." or "sqlite:<path>") and applies the schema.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	dialect, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	switch dialect {
	case DialectSQLite:
		// single writer; keeps :memory: databases on one connection too
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	case DialectPostgres:
		conn.SetMaxOpenConns(10)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	db := newDB(conn, dialect)
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func newDB(conn *sql.DB, dialect Dialect) *DB {
	placeholder := sq.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &DB{
		conn:    conn,
		sb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
		dialect: dialect,
		now:     time.Now,
	}
}

func parseDatabaseURL(raw string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DialectPostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite:"):
		path := strings.TrimPrefix(raw, "sqlite:")
		if path == "" {
			return "", "", errors.New("sqlite path is required")
		}
		// store times as "2006-01-02 15:04:05.999999999-07:00" so they compare as text
		if !strings.Contains(path, "_time_format=") {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			path += sep + "_time_format=sqlite"
		}
		return DialectSQLite, path, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL %q", raw)
	}
}

func (db *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + string(db.dialect) + ".sql")
	if err != nil {
		return err
	}
	if db.dialect == DialectSQLite {
		_, _ = db.conn.ExecContext(ctx, "PRAGMA journal_mode = WAL")
		_, _ = db.conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	}
	_, err = db.conn.ExecContext(ctx, string(b))
	return err
}

func (db *DB) Dialect() Dialect { return db.dialect }

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func exec(ctx context.Context, q queryer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return q.ExecContext(ctx, query, args...)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
