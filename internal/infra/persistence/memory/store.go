// Package memory keeps population snapshots in process memory. It backs dry
// runs and tests that need a PopulationReader and PopulationWriter without
// a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"landsim/pkg/domain"
)

var (
	_ domain.PopulationReader = (*Store)(nil)
	_ domain.PopulationWriter = (*Store)(nil)
)

// Store holds one snapshot per year. Stored populations are deep copies.
type Store struct {
	mu    sync.RWMutex
	years map[int]domain.Population
	// ReadYear selects the snapshot ReadPopulation returns; zero means the
	// latest.
	ReadYear int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{years: make(map[int]domain.Population)}
}

// Seed stores pop as the snapshot of year. It is how tests provide the
// initial population.
func (s *Store) Seed(year int, pop domain.Population) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.years[year] = clonePopulation(pop)
}

// WritePopulation replaces the snapshot of year.
func (s *Store) WritePopulation(_ context.Context, year int, pop domain.Population) error {
	s.Seed(year, pop)
	return nil
}

// ReadPopulation returns the snapshot selected by ReadYear.
func (s *Store) ReadPopulation(_ context.Context) (domain.Population, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	year := s.ReadYear
	if year == 0 {
		if len(s.years) == 0 {
			return domain.Population{}, fmt.Errorf("memory store: no snapshot")
		}
		first := true
		for y := range s.years {
			if first || y > year {
				year, first = y, false
			}
		}
	}
	pop, ok := s.years[year]
	if !ok {
		return domain.Population{}, fmt.Errorf("memory store: no snapshot for year %d", year)
	}
	return clonePopulation(pop), nil
}

// Years returns the stored snapshot years in ascending order.
func (s *Store) Years() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.years))
	for y := range s.years {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// Snapshot returns a copy of the snapshot of year.
func (s *Store) Snapshot(year int) (domain.Population, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pop, ok := s.years[year]
	if !ok {
		return domain.Population{}, false
	}
	return clonePopulation(pop), true
}

func clonePopulation(in domain.Population) domain.Population {
	out := domain.Population{
		Zones:      append([]domain.Zone(nil), in.Zones...),
		Persons:    append([]domain.Person(nil), in.Persons...),
		Dwellings:  append([]domain.Dwelling(nil), in.Dwellings...),
		Jobs:       append([]domain.Job(nil), in.Jobs...),
		Households: make([]domain.Household, len(in.Households)),
	}
	for i, h := range in.Households {
		h.Members = append([]domain.PersonID(nil), h.Members...)
		out.Households[i] = h
	}
	return out
}
