package projection

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added partial UNIQUE index enforcing a single root entity
const currentSchemaVersion = 1

// Defaults for Open.
const (
	DefaultPoolTimeout    = 5 * time.Second
	DefaultConnectRetries = 3
	DefaultRetryDelay     = 200 * time.Millisecond
)

// Store is the SQLite-backed projection.
// Uses WAL mode for concurrent read access.
type Store struct {
	db          *sql.DB
	poolTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	// beforeCommit runs inside CommitRegistration after all rows are
	// written and before COMMIT. Tests use it to force a rollback.
	beforeCommit func(context.Context) error
}

type openConfig struct {
	retries    int
	retryDelay time.Duration
}

// Option configures a Store.
type Option func(*Store, *openConfig)

// WithPoolTimeout bounds how long an operation may wait for a connection
// and run. Zero disables the bound.
func WithPoolTimeout(d time.Duration) Option {
	return func(s *Store, _ *openConfig) { s.poolTimeout = d }
}

// WithConnectRetries sets how many times Open retries the initial
// connection, sleeping delay between attempts.
func WithConnectRetries(n int, delay time.Duration) Option {
	return func(_ *Store, c *openConfig) {
		c.retries = n
		c.retryDelay = delay
	}
}

// WithClock sets the source of created_at/used_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store, _ *openConfig) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store, _ *openConfig) { s.logger = l }
}

// WithBeforeCommit installs a hook that runs inside the registration
// transaction just before COMMIT. A non-nil error rolls it back.
func WithBeforeCommit(f func(context.Context) error) Option {
	return func(s *Store, _ *openConfig) { s.beforeCommit = f }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		poolTimeout: DefaultPoolTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
	cfg := &openConfig{retries: DefaultConnectRetries, retryDelay: DefaultRetryDelay}
	for _, opt := range opts {
		opt(s, cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pingWithRetry(db, cfg, s.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and every :memory:
	// connection is a separate database, so the pool holds one connection.
	// Callers queue on it up to the pool timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	return s, nil
}

func pingWithRetry(db *sql.DB, cfg *openConfig, logger *slog.Logger) error {
	var err error
	for attempt := 0; attempt <= cfg.retries; attempt++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		if attempt < cfg.retries {
			logger.Warn("projection connect failed, retrying", "attempt", attempt+1, "error", err)
			time.Sleep(cfg.retryDelay)
		}
	}
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 enforces at most one root row.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_single_root
		ON entities(is_root) WHERE is_root = 1
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// bound applies the pool timeout to ctx.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.poolTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.poolTimeout)
}

// classify turns a context deadline into ErrPoolTimeout.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrPoolTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
