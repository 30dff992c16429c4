package events

import (
	"context"

	"landsim/internal/core"
	"landsim/internal/guard"
	"landsim/pkg/domain"
)

// DeathModel removes persons according to an age and gender hazard.
type DeathModel struct {
	noopHooks
	sim      *core.SimulationContext
	guard    *guard.Guard
	strategy ProbabilityStrategy
}

// NewDeathModel constructs the mortality model.
func NewDeathModel(sim *core.SimulationContext, g *guard.Guard, strategy ProbabilityStrategy) *DeathModel {
	return &DeathModel{sim: sim, guard: g, strategy: strategy}
}

func (m *DeathModel) Name() string { return "death" }

func (m *DeathModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	var out []domain.MicroEvent
	for _, id := range m.sim.Persons.IDs() {
		p, _ := m.sim.Persons.Get(id)
		if ok, _ := draw(m.sim.Rand, m.strategy.DeathProbability(*p)); ok {
			out = append(out, domain.NewPersonEvent(id, domain.EventDeath))
		}
	}
	return out, nil
}

func (m *DeathModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	id := domain.PersonID(ev.Subject)
	p, ok := m.sim.Persons.Get(id)
	if !ok {
		stale(m.sim, m.Name(), domain.EntityPerson, ev.Subject)
		return false, nil
	}
	h, ok := m.sim.Households.Get(p.HouseholdID)
	if !ok {
		return true, m.sim.RemovePerson(id)
	}
	widowed := p.Role == domain.RoleMarried
	return m.guard.Run(m.Name(), h, func(s *guard.Scope) error {
		if err := m.sim.RemovePerson(id); err != nil {
			return err
		}
		if !widowed {
			return nil
		}
		for _, mid := range s.Household().Members {
			if spouse, ok := m.sim.Persons.Get(mid); ok && spouse.Role == domain.RoleMarried {
				spouse.Role = domain.RoleSingle
			}
		}
		return nil
	})
}
