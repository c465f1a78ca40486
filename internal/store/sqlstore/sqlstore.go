// Package sqlstore implements store.Store on database/sql for postgres (pgx)
// and sqlite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"

	"efiling.org/internal/migrate"
	"efiling.org/internal/store"
)

// Dialect names the database flavour behind a Store.
type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite"
)

const (
	pgErrUniqueViolation = "23505"
	sqliteConstraintUniq = 2067
	sqliteConstraintPK   = 1555
)

//go:embed migrations
var migrationFiles embed.FS

// Migrations returns the migration files for d.
func Migrations(d Dialect) fs.FS {
	dir := "migrations/sqlite"
	if d == Postgres {
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*Store)(nil)

// ParseDSN maps a database URL to a driver and DSN. postgres:// and
// postgresql:// URLs go to pgx; sqlite:// URLs and bare paths go to sqlite.
func ParseDSN(databaseURL string) (Dialect, string) {
	databaseURL = strings.TrimSpace(databaseURL)
	const pragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
	if databaseURL == "" {
		return SQLite, "file:efiling.db?" + pragmas
	}
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return Postgres, databaseURL
	}
	path := databaseURL
	if u, err := url.Parse(databaseURL); err == nil && u.Scheme == "sqlite" {
		path = strings.TrimPrefix(databaseURL, "sqlite://")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return SQLite, "file:" + path + sep + pragmas
}

// Open connects to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	dialect, dsn := ParseDSN(databaseURL)
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == Postgres {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(db, dialect), nil
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	return s.Migrator().Up(ctx)
}

// Migrator returns a migration manager bound to the store's database.
func (s *Store) Migrator(opts ...migrate.Option) *migrate.Manager {
	if s.dialect == Postgres {
		opts = append([]migrate.Option{migrate.WithPostgres()}, opts...)
	}
	return migrate.NewManager(s.db, Migrations(s.dialect), opts...)
}

// q rewrites ? placeholders for the active dialect.
func (s *Store) q(query string) string {
	if s.dialect == Postgres {
		return migrate.Rebind(query)
	}
	return query
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqliteConstraintUniq || liteErr.Code() == sqliteConstraintPK
	}
	return false
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
