// Package sqlite stores yearly population snapshots in a single SQLite
// table, one JSON payload per (year, bucket).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"landsim/pkg/domain"
)

var (
	_ domain.PopulationReader = (*Store)(nil)
	_ domain.PopulationWriter = (*Store)(nil)
)

// Store reads the initial population and writes yearly snapshots.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	path  string
	runID string
	// readYear selects the snapshot ReadPopulation loads; zero is latest.
	readYear int
}

// Option configures a Store.
type Option func(*Store)

// WithReadYear selects the snapshot year ReadPopulation loads.
func WithReadYear(year int) Option {
	return func(s *Store) { s.readYear = year }
}

// WithRunID tags written snapshots with the run identifier.
func WithRunID(id string) Option {
	return func(s *Store) { s.runID = id }
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite snapshot path required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		year INTEGER NOT NULL,
		bucket TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		payload BLOB NOT NULL,
		PRIMARY KEY (year, bucket)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Years lists the stored snapshot years in ascending order.
func (s *Store) Years(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT year FROM snapshots ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("select years: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// ReadPopulation loads the selected snapshot.
func (s *Store) ReadPopulation(ctx context.Context) (domain.Population, error) {
	year := s.readYear
	if year == 0 {
		var latest sql.NullInt64
		if err := s.db.QueryRowContext(ctx, `SELECT MAX(year) FROM snapshots`).Scan(&latest); err != nil {
			return domain.Population{}, fmt.Errorf("select latest year: %w", err)
		}
		if !latest.Valid {
			return domain.Population{}, fmt.Errorf("sqlite %s: no snapshot stored", s.path)
		}
		year = int(latest.Int64)
	}
	return s.ReadYear(ctx, year)
}

// ReadYear loads the snapshot written for year.
func (s *Store) ReadYear(ctx context.Context, year int) (domain.Population, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM snapshots WHERE year = ?`, year)
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
			return domain.Population{}, fmt.Errorf("scan: %w", err)
		}
		found = true
		if err := pop.DecodeBucket(domain.EntityType(bucket), payload); err != nil {
			return domain.Population{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Population{}, fmt.Errorf("iterate snapshot %d: %w", year, err)
	}
	if !found {
		return domain.Population{}, fmt.Errorf("sqlite %s: no snapshot for year %d", s.path, year)
	}
	return pop, nil
}

// WritePopulation upserts every bucket of pop for year in one transaction.
func (s *Store) WritePopulation(ctx context.Context, year int, pop domain.Population) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range domain.SnapshotBuckets() {
		data, err := pop.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots(year, bucket, run_id, payload) VALUES(?,?,?,?)
			ON CONFLICT(year, bucket) DO UPDATE SET run_id=excluded.run_id, payload=excluded.payload`,
			year, string(bucket), s.runID, data); err != nil {
			return fmt.Errorf("upsert %s/%d: %w", bucket, year, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
