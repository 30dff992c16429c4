// Package postgres writes yearly population snapshots to Postgres through
// the pgx database/sql driver. Each (run, year, bucket) is one JSONB row, so
// several runs can share a database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"landsim/pkg/domain"
)

var (
	_ domain.PopulationReader = (*Store)(nil)
	_ domain.PopulationWriter = (*Store)(nil)
)

const driverName = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS population_snapshots (
	run_id TEXT NOT NULL,
	year INTEGER NOT NULL,
	bucket TEXT NOT NULL,
	payload JSONB NOT NULL,
	written_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, year, bucket)
)`

// Store writes snapshots for one run.
type Store struct {
	db    *sql.DB
	runID string
	mu    sync.Mutex
}

// NewStore opens the database at dsn, verifies the connection and applies
// the snapshot schema.
func NewStore(ctx context.Context, dsn, runID string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewWithDB(db, runID)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an open handle without touching the schema.
func NewWithDB(db *sql.DB, runID string) *Store {
	return &Store{db: db, runID: runID}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure snapshot table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// WritePopulation upserts every bucket of pop for year in one transaction.
func (s *Store) WritePopulation(ctx context.Context, year int, pop domain.Population) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range domain.SnapshotBuckets() {
		data, err := pop.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO population_snapshots(run_id, year, bucket, payload) VALUES($1,$2,$3,$4)
			ON CONFLICT(run_id, year, bucket) DO UPDATE SET payload=EXCLUDED.payload, written_at=now()`,
			s.runID, year, string(bucket), string(data)); err != nil {
			return fmt.Errorf("upsert %s/%d: %w", bucket, year, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// ReadPopulation loads the latest snapshot written by this run.
func (s *Store) ReadPopulation(ctx context.Context) (domain.Population, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(year) FROM population_snapshots WHERE run_id = $1`, s.runID).Scan(&latest); err != nil {
		return domain.Population{}, fmt.Errorf("select latest year: %w", err)
	}
	if !latest.Valid {
		return domain.Population{}, fmt.Errorf("postgres: no snapshot for run %s", s.runID)
	}
	return s.ReadYear(ctx, int(latest.Int64))
}

// ReadYear loads the snapshot this run wrote for year.
func (s *Store) ReadYear(ctx context.Context, year int) (domain.Population, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket, payload FROM population_snapshots WHERE run_id = $1 AND year = $2`, s.runID, year)
	if err != nil {
		return domain.Population{}, fmt.Errorf("select snapshot %d: %w", year, err)
	}
	defer func() { _ = rows.Close() }()
	var pop domain.Population
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.Population{}, fmt.Errorf("scan snapshot: %w", err)
		}
		found = true
		if err := pop.DecodeBucket(domain.EntityType(bucket), payload); err != nil {
			return domain.Population{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Population{}, fmt.Errorf("iterate snapshot: %w", err)
	}
	if !found {
		return domain.Population{}, fmt.Errorf("postgres: no snapshot for run %s year %d", s.runID, year)
	}
	return pop, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
