package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"warroom/config"
	"warroom/core/utils"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps *sql.DB with the dialect needed to rebind `?` placeholders.
type DB struct {
	*sql.DB
	dialect Dialect
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*DB, error) {
	if cfg.IsPostgres() {
		db, err := OpenPostgres(cfg.DBURL)
		if err != nil {
			return nil, err
		}
		logger.Printf("connected to postgres")
		return db, nil
	}
	db, err := OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Printf("opened sqlite database %s", cfg.DBPath)
	return db, nil
}

// OpenSQLite opens (creating if needed) a sqlite database with foreign keys,
// WAL and a busy timeout. Writers are serialised through a single connection.
func OpenSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{DB: db, dialect: DialectSQLite}, nil
}

func OpenPostgres(url string) (*DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{DB: db, dialect: DialectPostgres}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier runs statements against either the pool or an open transaction.
type querier struct {
	ex      execer
	dialect Dialect
	inTx    bool
}

func (d *DB) querier() querier {
	return querier{ex: d.DB, dialect: d.dialect}
}

func (q querier) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, rebind(q.dialect, query), args...)
}

func (q querier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, rebind(q.dialect, query), args...)
}

func (q querier) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, rebind(q.dialect, query), args...)
}

func (d *DB) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(querier{ex: tx, dialect: d.dialect, inTx: true}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// savepoint runs fn under a named savepoint. When fn fails the work done
// since the savepoint is undone and the enclosing transaction stays usable.
// Outside a transaction fn runs as is.
func (q querier) savepoint(ctx context.Context, name string, fn func() error) error {
	if !q.inTx {
		return fn()
	}
	if _, err := q.exec(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := q.exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		_, _ = q.exec(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}
	_, err := q.exec(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// rebind turns `?` placeholders into `$n` for postgres. Quoted literals are
// left alone.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
