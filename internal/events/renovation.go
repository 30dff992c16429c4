package events

import (
	"context"

	"landsim/internal/core"
	"landsim/pkg/domain"
)

// Dwelling quality bounds.
const (
	MinQuality = 1
	MaxQuality = 5
)

// RenovationModel raises or lowers dwelling quality by one step.
type RenovationModel struct {
	noopHooks
	sim      *core.SimulationContext
	strategy ProbabilityStrategy
	upgrade  map[domain.DwellingID]bool
}

// NewRenovationModel constructs the dwelling quality model.
func NewRenovationModel(sim *core.SimulationContext, strategy ProbabilityStrategy) *RenovationModel {
	return &RenovationModel{sim: sim, strategy: strategy}
}

func (m *RenovationModel) Name() string { return "renovation" }

func (m *RenovationModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	m.upgrade = make(map[domain.DwellingID]bool)
	var out []domain.MicroEvent
	for _, id := range m.sim.Dwellings.IDs() {
		d, _ := m.sim.Dwellings.Get(id)
		up, down := m.strategy.RenovationProbabilities(*d)
		hit, rest := draw(m.sim.Rand, up+down)
		if !hit {
			continue
		}
		m.upgrade[id] = rest*(up+down) < up
		out = append(out, domain.NewDwellingEvent(id, domain.EventRenovation))
	}
	return out, nil
}

func (m *RenovationModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	id := domain.DwellingID(ev.Subject)
	d, ok := m.sim.Dwellings.Get(id)
	if !ok {
		stale(m.sim, m.Name(), domain.EntityDwelling, ev.Subject)
		return false, nil
	}
	if m.upgrade[id] {
		if d.Quality >= MaxQuality {
			return false, nil
		}
		d.Quality++
		return true, nil
	}
	if d.Quality <= MinQuality {
		return false, nil
	}
	d.Quality--
	return true, nil
}

func (m *RenovationModel) EndYear(context.Context, int) error {
	m.upgrade = nil
	return nil
}
