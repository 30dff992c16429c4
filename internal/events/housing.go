package events

import (
	"slices"

	"landsim/internal/core"
	"landsim/pkg/domain"
)

// housingSearch picks the best vacant dwelling for a household. It keeps an
// ascending index of vacant dwellings taken once per year and folds in the
// dwellings vacated since through the context's vacancy log. Entries that
// were occupied in the meantime are dropped when a search meets them.
type housingSearch struct {
	sim      *core.SimulationContext
	strategy ProbabilityStrategy
	vacant   []domain.DwellingID
	mark     int
}

func (s *housingSearch) refresh() {
	s.vacant = s.sim.VacantDwellings()
	s.mark = s.sim.VacancyMark()
}

func (s *housingSearch) catchUp() {
	var vacated []domain.DwellingID
	vacated, s.mark = s.sim.VacatedSince(s.mark)
	for _, id := range vacated {
		if i, found := slices.BinarySearch(s.vacant, id); !found {
			s.vacant = slices.Insert(s.vacant, i, id)
		}
	}
}

// best returns the highest-utility vacant dwelling scoring above floor.
// Ties go to the lower id so results are reproducible.
func (s *housingSearch) best(h domain.Household, floor float64) (domain.DwellingID, float64, bool) {
	s.catchUp()
	bestID := domain.NoDwelling
	bestU := floor
	kept := s.vacant[:0]
	for _, id := range s.vacant {
		d, ok := s.sim.Dwellings.Get(id)
		if !ok || !d.Vacant() {
			continue
		}
		kept = append(kept, id)
		u := s.strategy.DwellingUtility(h, *d, s.sim.TravelTimes.Accessibility(d.Zone))
		if bestID == domain.NoDwelling && u >= floor || u > bestU {
			bestID, bestU = id, u
		}
	}
	s.vacant = kept
	return bestID, bestU, bestID != domain.NoDwelling
}
