package failurelog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "scrape_failures"

// PostgresConfig controls the pool used for failure rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresLog inserts one row per failure.
type PostgresLog struct {
	pool  execCloser
	table string
}

// OpenPostgres connects a pool for cfg.DSN.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresLog, error) {
	if cfg.DSN == "" {
		return nil, errors.New("failures.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log, err := NewPostgresWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return log, nil
}

// NewPostgresWithPool builds a PostgresLog over an existing pool.
func NewPostgresWithPool(pool execCloser, table string) (*PostgresLog, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresLog{pool: pool, table: table}, nil
}

// EnsureTable creates the failure table when it does not exist.
func (l *PostgresLog) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL,
	failed_at TIMESTAMPTZ NOT NULL
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

// Record implements harvest.FailureLog.
func (l *PostgresLog) Record(ctx context.Context, rec harvest.FailureRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	source,
	kind,
	message,
	failed_at
) VALUES (
	$1,$2,$3,$4,$5
)`, l.table)
	args := []any{
		rec.RunID,
		rec.Source,
		string(rec.Kind),
		rec.Message,
		rec.Timestamp.UTC(),
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

// Close releases the pool.
func (l *PostgresLog) Close() error {
	if l != nil && l.pool != nil {
		l.pool.Close()
	}
	return nil
}
