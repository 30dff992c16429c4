package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"landsim/internal/blob"
	"landsim/internal/compress"
	"landsim/internal/config"
	"landsim/internal/infra/persistence/memory"
	"landsim/pkg/domain"
)

func samplePopulation() domain.Population {
	return domain.Population{
		Zones:      []domain.Zone{{ID: 1, Region: 1, Name: "Old Town, north"}},
		Households: []domain.Household{{ID: 0, Members: []domain.PersonID{0, 1}, DwellingID: 0, Size: 2, Income: 50000, Type: "size2_inc3"}},
		Persons: []domain.Person{
			{ID: 0, HouseholdID: 0, Age: 40, Gender: domain.GenderFemale, Role: domain.RoleMarried, JobID: 0, Income: 50000},
			{ID: 1, HouseholdID: 0, Age: 41, Gender: domain.GenderMale, Role: domain.RoleMarried, JobID: domain.Unemployed},
		},
		Dwellings: []domain.Dwelling{{ID: 0, Zone: 1, Type: domain.DwellingMF234, ResidentID: 0, Price: 40000, Restriction: 0.5}},
		Jobs:      []domain.Job{{ID: 0, Zone: 1, Type: "office", WorkerID: 0}},
	}
}

func TestCSVExporterWritesEveryBucket(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	exp := NewCSVExporter(store, "run-1", compress.Zstd)
	if err := exp.WritePopulation(ctx, 2012, samplePopulation()); err != nil {
		t.Fatalf("export: %v", err)
	}
	list, err := store.List(ctx, "run-1/2012/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != len(domain.SnapshotBuckets()) {
		t.Fatalf("expected %d exports, got %d", len(domain.SnapshotBuckets()), len(list))
	}
	if exp.Key(2012, domain.EntityJob) != "run-1/2012/job.csv.zst" {
		t.Fatalf("unexpected key %s", exp.Key(2012, domain.EntityJob))
	}

	zones, err := exp.ReadCSV(ctx, 2012, domain.EntityZone)
	if err != nil {
		t.Fatalf("read zones: %v", err)
	}
	if len(zones) != 2 || zones[1][2] != "Old Town, north" {
		t.Fatalf("unexpected zone csv %v", zones)
	}
	households, err := exp.ReadCSV(ctx, 2012, domain.EntityHousehold)
	if err != nil {
		t.Fatalf("read households: %v", err)
	}
	if households[1][5] != "0 1" {
		t.Fatalf("members column = %q", households[1][5])
	}
	dwellings, _ := exp.ReadCSV(ctx, 2012, domain.EntityDwelling)
	if dwellings[1][8] != "0.5" {
		t.Fatalf("restriction column = %q", dwellings[1][8])
	}

	if err := exp.WritePopulation(ctx, 2012, samplePopulation()); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists on re-export, got %v", err)
	}
}

type failingWriter struct{ err error }

func (f failingWriter) WritePopulation(context.Context, int, domain.Population) error { return f.err }

func TestMultiWritesAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	a, b := memory.NewStore(), memory.NewStore()
	boom := errors.New("boom")
	m := Multi{a, failingWriter{boom}, b}
	err := m.WritePopulation(ctx, 2013, samplePopulation())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if _, ok := a.Snapshot(2013); !ok {
		t.Fatalf("first writer skipped")
	}
	if _, ok := b.Snapshot(2013); !ok {
		t.Fatalf("writer after failure skipped")
	}
}

func TestOpenWritersAndReader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.db")
	writers, closer, err := OpenWriters(ctx, config.OutputConfig{SQLitePath: path, CSV: true, Compression: "lz4"}, "run-2", blob.NewMemory())
	if err != nil {
		t.Fatalf("open writers: %v", err)
	}
	if len(writers) != 2 {
		t.Fatalf("expected sqlite and csv writers, got %d", len(writers))
	}
	if err := writers.WritePopulation(ctx, 2011, samplePopulation()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reader, rc, err := OpenReader(config.PopulationConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer rc.Close()
	pop, err := reader.ReadPopulation(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(pop.Persons) != 2 {
		t.Fatalf("expected 2 persons, got %d", len(pop.Persons))
	}

	if _, _, err := OpenWriters(ctx, config.OutputConfig{CSV: true}, "run-3", nil); err == nil {
		t.Fatalf("expected error without blob store")
	}
	if _, _, err := OpenReader(config.PopulationConfig{Driver: "oracle"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
