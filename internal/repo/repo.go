package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	litedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/metrics"
)

// Repository provides owner-scoped access to the dashboard tables on either
// Postgres (Supabase) or a local SQLite file.
type Repository struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type dialect struct {
	name string
	now  string
}

var (
	postgres = dialect{name: "postgres", now: "NOW()"}
	sqlite   = dialect{name: "sqlite", now: "CURRENT_TIMESTAMP"}
)

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(query string) string {
	if d.name != postgres.name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// New opens a Postgres connection with the desired search_path. The simple
// protocol keeps the pool compatible with transaction-mode poolers.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger, m *metrics.Metrics) (*Repository, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.RuntimeParams["search_path"] = schema
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db := stdlib.OpenDB(*cfg)
	r := newRepository(db, postgres, logger, m)
	if err := r.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return r, nil
}

// NewSQLite opens a local SQLite database, mainly for development and tests.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger, m *metrics.Metrics) (*Repository, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, errors.New("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON&_time_format=sqlite", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	r := newRepository(db, sqlite, logger, m)
	if err := r.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return r, nil
}

func newRepository(db *sql.DB, d dialect, logger *slog.Logger, m *metrics.Metrics) *Repository {
	return &Repository{
		db:      db,
		dialect: d,
		logger:  logger.With("component", "repo", "driver", d.name),
		metrics: m,
	}
}

// Driver returns "postgres" or "sqlite".
func (r *Repository) Driver() string {
	return r.dialect.name
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// Ping ensures the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations applies the migrations of the active driver, read from the
// "<driver>/" directory of filesystem.
func (r *Repository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	sub, err := fs.Sub(filesystem, r.dialect.name)
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", r.dialect.name, err)
	}
	return ApplyMigrations(ctx, r.db, sub)
}

// WithTx executes fn within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// scoped runs fn with the operator identity attached to the session. On
// Postgres the id is set transaction-locally so row-level security policies
// see it; SQLite relies on the explicit owner predicates alone.
func (r *Repository) scoped(ctx context.Context, ownerID string, fn func(querier) error) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: missing operator id", apperrors.ErrUnauthorized)
	}
	if r.dialect.name != postgres.name {
		return fn(r.db)
	}
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_operator', $1, true)`, ownerID); err != nil {
			return fmt.Errorf("set operator scope: %w", err)
		}
		return fn(tx)
	})
}

func (r *Repository) observe(resource, op string, err error) {
	if r.metrics == nil {
		return
	}
	outcome := metrics.Outcome(err)
	if apperrors.IsNotFound(err) {
		outcome = "not_found"
	}
	r.metrics.StoreOperations.WithLabelValues(resource, op, outcome).Inc()
}

// storeErr wraps a driver failure so callers can match apperrors.ErrStore
// while keeping the driver's message.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrUnauthorized) ||
		errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrStore) {
		return err
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, apperrors.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStore, err)
}

// isUniqueViolation reports whether err is a unique constraint failure of
// either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *litedriver.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
