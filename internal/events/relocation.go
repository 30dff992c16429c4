package events

import (
	"context"
	"fmt"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/guard"
	"landsim/pkg/domain"
)

// moveMargin is the utility gain a household needs before it relocates.
const moveMargin = 0.05

// RelocationModel lets households move to a better vacant dwelling.
type RelocationModel struct {
	sim      *core.SimulationContext
	guard    *guard.Guard
	strategy ProbabilityStrategy
	housing  housingSearch
}

// NewRelocationModel constructs the household relocation model.
func NewRelocationModel(sim *core.SimulationContext, g *guard.Guard, strategy ProbabilityStrategy) *RelocationModel {
	return &RelocationModel{
		sim:      sim,
		guard:    g,
		strategy: strategy,
		housing:  housingSearch{sim: sim, strategy: strategy},
	}
}

func (m *RelocationModel) Name() string { return "relocation" }

func (m *RelocationModel) PrepareYear(context.Context, int) error {
	m.housing.refresh()
	return nil
}

func (m *RelocationModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	var out []domain.MicroEvent
	for _, id := range m.sim.Households.IDs() {
		h, _ := m.sim.Households.Get(id)
		d, ok := m.sim.Dwellings.Get(h.DwellingID)
		if !ok {
			continue
		}
		if hit, _ := draw(m.sim.Rand, m.strategy.MoveProbability(*h, *d)); hit {
			out = append(out, domain.NewHouseholdEvent(id, domain.EventMove))
		}
	}
	return out, nil
}

func (m *RelocationModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	h, ok := m.sim.Households.Get(domain.HouseholdID(ev.Subject))
	if !ok {
		stale(m.sim, m.Name(), domain.EntityHousehold, ev.Subject)
		return false, nil
	}
	current, ok := m.sim.Dwellings.Get(h.DwellingID)
	if !ok {
		return false, nil
	}
	here := m.strategy.DwellingUtility(*h, *current, m.sim.TravelTimes.Accessibility(current.Zone))
	target, _, found := m.housing.best(*h, here+moveMargin)
	if !found {
		m.sim.Diagnostics.Record(m.Name(), diagnostics.IssueNoVacantDwelling, fmt.Sprintf("no better dwelling for household %d", h.ID))
		return false, nil
	}
	return m.guard.Run(m.Name(), h, func(s *guard.Scope) error {
		return m.sim.OccupyDwelling(s.Household(), target)
	})
}

func (m *RelocationModel) EndYear(context.Context, int) error { return nil }

func (m *RelocationModel) EndSimulation(context.Context) error { return nil }
