// Package session owns the single logical database connection the
// orchestrator drives a reorganization through: connect, reconnect,
// execute a parameterized statement, and classify server error codes.
package session

import (
	"context"
	"fmt"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"
)

// Config holds Postgres connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Socket   string // unix socket directory; takes precedence over Host when set
	SSLMode  string // "", "disable", "allow", "prefer", "require", "verify-ca", "verify-full"
}

// Rows is the subset of pgx.Rows the rest of the orchestrator depends on.
// pgx.Rows already satisfies this; fakes in fakesession implement it
// without importing pgx.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// Row is the subset of pgx.Row used for QueryRow results.
type Row interface {
	Scan(dest ...any) error
}

// Session is the interface the rest of the orchestrator programs against.
// PgSession is the production implementation; fakesession.Fake is the test
// double.
type Session interface {
	// Exec runs sql and raises a fatal error on any non-success result,
	// including a server-side error.
	Exec(ctx context.Context, sql string, args ...any) error
	// ExecLenient runs sql and returns the server's error, if any, without
	// treating it as fatal. err is non-nil only for connection-level
	// failures (the server was unreachable, context cancelled, etc).
	ExecLenient(ctx context.Context, sql string, args ...any) (*ServerError, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	// Reconnect rebuilds the underlying connection from the config used
	// at Connect time. Used only by the cleanup handler once the driver
	// has yielded control.
	Reconnect(ctx context.Context) error
	Close()
}

// PgSession is a Session backed by a single-connection pgxpool.Pool.
// pgxpool is used instead of a bare pgx.Conn purely for its context-aware
// lifecycle helpers; MaxConns is pinned to 1 to preserve "one logical
// session" semantics — a CLI tool never needs a pool.
type PgSession struct {
	cfg  Config
	pool *pgxpool.Pool
}

// Connect establishes a Postgres session.
func Connect(ctx context.Context, cfg Config) (*PgSession, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.MaxConns = 1
	poolCfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return &PgSession{cfg: cfg, pool: pool}, nil
}

func buildDSN(cfg Config) (string, error) {
	switch cfg.SSLMode {
	case "", "disable", "require", "verify-ca", "verify-full", "prefer", "allow":
		// valid
	default:
		return "", fmt.Errorf("invalid sslmode %q", cfg.SSLMode)
	}

	db := cfg.Database
	if db == "" {
		db = "postgres"
	}

	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}

	if cfg.Socket != "" {
		// A socket directory cannot sit in the URL's host part; it is
		// passed through the host query parameter instead.
		return fmt.Sprintf(
			"postgres://%s:%s@/%s?host=%s&port=%d&sslmode=%s",
			cfg.User, cfg.Password, db, cfg.Socket, cfg.Port, sslmode,
		), nil
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, db, sslmode,
	), nil
}

// Exec raises a fatal error on any non-success result, including a
// server-side error — use ExecLenient when the caller needs to recover
// from a specific server error class.
func (s *PgSession) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// ExecLenient runs sql and hands the caller the server's own error instead
// of treating it as fatal.
func (s *PgSession) ExecLenient(ctx context.Context, sql string, args ...any) (*ServerError, error) {
	_, err := s.pool.Exec(ctx, sql, args...)
	if err == nil {
		return nil, nil
	}
	if serr, ok := AsServerError(err); ok {
		return serr, nil
	}
	return nil, fmt.Errorf("exec failed: %w", err)
}

func (s *PgSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

func (s *PgSession) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

// Reconnect rebuilds the pool from the original config. Used only when the
// session is known dead (the cleanup handler's graceful path).
func (s *PgSession) Reconnect(ctx context.Context) error {
	s.pool.Close()
	next, err := Connect(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.pool = next.pool
	return nil
}

func (s *PgSession) Close() {
	s.pool.Close()
}

// ServerVersionNum returns the server's integer version (e.g. 160003 for
// 16.3), used by the snapshot waiter to pick its pg_locks query shape.
func (s *PgSession) ServerVersionNum(ctx context.Context) (int, error) {
	var v int
	row := s.pool.QueryRow(ctx, "SHOW server_version_num")
	var raw string
	if err := row.Scan(&raw); err != nil {
		return 0, fmt.Errorf("querying server_version_num: %w", err)
	}
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("parsing server_version_num %q: %w", raw, err)
	}
	return v, nil
}

// PromptPassword reads a password from the terminal without echoing it.
func PromptPassword() string {
	fmt.Print("Password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(password)
}
