package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"landsim/pkg/domain"
)

func samplePopulation() domain.Population {
	return domain.Population{
		Zones:      []domain.Zone{{ID: 1, Region: 1}},
		Households: []domain.Household{{ID: 0, Members: []domain.PersonID{0}, DwellingID: 0, Income: 30000, Size: 1, Type: domain.NewHouseholdType(1, domain.CategorizeIncome(30000))}},
		Persons:    []domain.Person{{ID: 0, HouseholdID: 0, Age: 40, Gender: domain.GenderFemale, Role: domain.RoleSingle, JobID: 0, Income: 30000}},
		Dwellings:  []domain.Dwelling{{ID: 0, Zone: 1, Type: domain.DwellingSFD, ResidentID: 0, Price: 100000, Quality: 3}},
		Jobs:       []domain.Job{{ID: 0, Zone: 1, Type: "retail", WorkerID: 0}},
	}
}

func TestStoreWriteAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "snapshots.db")
	store, err := NewStore(path, WithRunID("run-1"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.ReadPopulation(ctx); err == nil {
		t.Fatalf("expected error for empty database")
	}
	pop := samplePopulation()
	if err := store.WritePopulation(ctx, 2011, pop); err != nil {
		t.Fatalf("write 2011: %v", err)
	}
	pop.Dwellings[0].Price = 105000
	if err := store.WritePopulation(ctx, 2012, pop); err != nil {
		t.Fatalf("write 2012: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	years, err := reopened.Years(ctx)
	if err != nil || len(years) != 2 || years[1] != 2012 {
		t.Fatalf("years = %v %v", years, err)
	}
	latest, err := reopened.ReadPopulation(ctx)
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if latest.Dwellings[0].Price != 105000 {
		t.Fatalf("expected latest snapshot, got price %d", latest.Dwellings[0].Price)
	}
	first, err := reopened.ReadYear(ctx, 2011)
	if err != nil {
		t.Fatalf("read 2011: %v", err)
	}
	if first.Dwellings[0].Price != 100000 || len(first.Households[0].Members) != 1 {
		t.Fatalf("unexpected 2011 snapshot %+v", first)
	}
	var runID string
	if err := reopened.DB().QueryRowContext(ctx, `SELECT run_id FROM snapshots WHERE year = 2012 LIMIT 1`).Scan(&runID); err != nil || runID != "run-1" {
		t.Fatalf("run id = %q %v", runID, err)
	}
}

func TestStoreRewriteYearReplacesBuckets(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "s.db"), WithReadYear(2011))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	pop := samplePopulation()
	if err := store.WritePopulation(ctx, 2011, pop); err != nil {
		t.Fatalf("write: %v", err)
	}
	pop.Jobs = nil
	if err := store.WritePopulation(ctx, 2011, pop); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, err := store.ReadPopulation(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Jobs) != 0 {
		t.Fatalf("expected jobs bucket replaced, got %+v", got.Jobs)
	}
	if _, err := store.ReadYear(ctx, 1999); err == nil {
		t.Fatalf("expected error for missing year")
	}
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatalf("expected error")
	}
}
