// Package snapshot wires the population readers and writers selected by the
// run configuration. Engine code sees only domain.PopulationReader and
// domain.PopulationWriter.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"

	"landsim/internal/blob"
	"landsim/internal/compress"
	"landsim/internal/config"
	"landsim/internal/infra/persistence/postgres"
	"landsim/internal/infra/persistence/sqlite"
	"landsim/pkg/domain"
)

// Multi writes a snapshot to every writer in order. All writers are
// attempted; failures are joined.
type Multi []domain.PopulationWriter

// WritePopulation implements domain.PopulationWriter.
func (m Multi) WritePopulation(ctx context.Context, year int, pop domain.Population) error {
	var errs []error
	for _, w := range m {
		if err := w.WritePopulation(ctx, year, pop); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// closers collects resources opened for a run.
type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenReader opens the initial population store.
func OpenReader(cfg config.PopulationConfig) (domain.PopulationReader, io.Closer, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.NewStore(cfg.Path, sqlite.WithReadYear(cfg.Year))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown population driver %q", cfg.Driver)
	}
}

// OpenWriters builds the writers enabled in cfg. The returned closer
// releases every opened database handle.
func OpenWriters(ctx context.Context, cfg config.OutputConfig, runID string, store blob.Store) (Multi, io.Closer, error) {
	var (
		out  Multi
		open closers
	)
	fail := func(err error) (Multi, io.Closer, error) {
		_ = open.Close()
		return nil, nil, err
	}
	if cfg.SQLitePath != "" {
		s, err := sqlite.NewStore(cfg.SQLitePath, sqlite.WithRunID(runID))
		if err != nil {
			return fail(err)
		}
		out, open = append(out, s), append(open, s)
	}
	if cfg.PostgresDSN != "" {
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN, runID)
		if err != nil {
			return fail(err)
		}
		out, open = append(out, s), append(open, s)
	}
	if cfg.CSV {
		if store == nil {
			return fail(fmt.Errorf("csv export needs a blob store"))
		}
		alg, err := compress.Parse(cfg.Compression)
		if err != nil {
			return fail(err)
		}
		out = append(out, NewCSVExporter(store, runID, alg))
	}
	return out, open, nil
}
