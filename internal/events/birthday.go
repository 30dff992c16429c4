package events

import (
	"context"

	"landsim/internal/core"
	"landsim/pkg/domain"
)

// BirthdayModel ages every person by one year.
type BirthdayModel struct {
	noopHooks
	sim *core.SimulationContext
}

// NewBirthdayModel constructs the ageing model.
func NewBirthdayModel(sim *core.SimulationContext) *BirthdayModel {
	return &BirthdayModel{sim: sim}
}

func (m *BirthdayModel) Name() string { return "birthday" }

// EventsForYear proposes every person. The draw is still taken so that every
// model consumes one number per candidate.
func (m *BirthdayModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	ids := m.sim.Persons.IDs()
	out := make([]domain.MicroEvent, 0, len(ids))
	for _, id := range ids {
		draw(m.sim.Rand, 1)
		out = append(out, domain.NewPersonEvent(id, domain.EventBirthday))
	}
	return out, nil
}

func (m *BirthdayModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	p, ok := m.sim.Persons.Get(domain.PersonID(ev.Subject))
	if !ok {
		stale(m.sim, m.Name(), domain.EntityPerson, ev.Subject)
		return false, nil
	}
	p.Age++
	return true, nil
}
