package events

import (
	"context"

	"landsim/internal/core"
	"landsim/internal/guard"
	"landsim/pkg/domain"
)

// maleBirthShare is the share of newborns that are male.
const maleBirthShare = 0.512

// BirthModel adds newborns to the households of women of child-bearing age.
type BirthModel struct {
	noopHooks
	sim      *core.SimulationContext
	guard    *guard.Guard
	strategy ProbabilityStrategy
	// sex keeps the rescaled draw of each accepted mother for the newborn's gender.
	sex map[domain.PersonID]float64
}

// NewBirthModel constructs the fertility model.
func NewBirthModel(sim *core.SimulationContext, g *guard.Guard, strategy ProbabilityStrategy) *BirthModel {
	return &BirthModel{sim: sim, guard: g, strategy: strategy}
}

func (m *BirthModel) Name() string { return "birth" }

func (m *BirthModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	m.sex = make(map[domain.PersonID]float64)
	var out []domain.MicroEvent
	for _, id := range m.sim.Persons.IDs() {
		p, _ := m.sim.Persons.Get(id)
		if p.Gender != domain.GenderFemale {
			continue
		}
		if ok, rest := draw(m.sim.Rand, m.strategy.BirthProbability(*p)); ok {
			m.sex[id] = rest
			out = append(out, domain.NewPersonEvent(id, domain.EventBirth))
		}
	}
	return out, nil
}

func (m *BirthModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	motherID := domain.PersonID(ev.Subject)
	mother, ok := m.sim.Persons.Get(motherID)
	if !ok {
		stale(m.sim, m.Name(), domain.EntityPerson, ev.Subject)
		return false, nil
	}
	h, ok := m.sim.Households.Get(mother.HouseholdID)
	if !ok {
		return false, nil
	}
	gender := domain.GenderFemale
	if m.sex[motherID] < maleBirthShare {
		gender = domain.GenderMale
	}
	return m.guard.Run(m.Name(), h, func(s *guard.Scope) error {
		child := &domain.Person{
			ID:          m.sim.Persons.NextID(),
			HouseholdID: h.ID,
			Gender:      gender,
			Role:        domain.RoleChild,
			JobID:       domain.Unemployed,
		}
		if err := m.sim.Persons.Add(child); err != nil {
			return err
		}
		s.OnRestore(func() { m.sim.Persons.Remove(child.ID) })
		h.Members = append(h.Members, child.ID)
		m.sim.RefreshHousehold(h)
		return nil
	})
}

func (m *BirthModel) EndYear(context.Context, int) error {
	m.sex = nil
	return nil
}
