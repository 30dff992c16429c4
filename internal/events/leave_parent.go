package events

import (
	"context"
	"fmt"
	"math"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/guard"
	"landsim/pkg/domain"
)

// LeaveParentModel splits adult children off into households of their own.
// A split needs a vacant dwelling; without one the event is a no-op.
type LeaveParentModel struct {
	sim      *core.SimulationContext
	guard    *guard.Guard
	strategy ProbabilityStrategy
	housing  housingSearch
}

// NewLeaveParentModel constructs the household formation model.
func NewLeaveParentModel(sim *core.SimulationContext, g *guard.Guard, strategy ProbabilityStrategy) *LeaveParentModel {
	return &LeaveParentModel{
		sim:      sim,
		guard:    g,
		strategy: strategy,
		housing:  housingSearch{sim: sim, strategy: strategy},
	}
}

func (m *LeaveParentModel) Name() string { return "leave_parent" }

func (m *LeaveParentModel) PrepareYear(context.Context, int) error {
	m.housing.refresh()
	return nil
}

func (m *LeaveParentModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	var out []domain.MicroEvent
	for _, id := range m.sim.Persons.IDs() {
		p, _ := m.sim.Persons.Get(id)
		if p.Role != domain.RoleChild {
			continue
		}
		if ok, _ := draw(m.sim.Rand, m.strategy.LeaveParentsProbability(*p)); ok {
			out = append(out, domain.NewPersonEvent(id, domain.EventLeaveParent))
		}
	}
	return out, nil
}

func (m *LeaveParentModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	p, ok := m.sim.Persons.Get(domain.PersonID(ev.Subject))
	if !ok {
		stale(m.sim, m.Name(), domain.EntityPerson, ev.Subject)
		return false, nil
	}
	parent, ok := m.sim.Households.Get(p.HouseholdID)
	if !ok || p.Role != domain.RoleChild || len(parent.Members) < 2 {
		return false, nil
	}
	return m.Split(parent, p)
}

// Split moves p out of parent into a new household with its own dwelling.
func (m *LeaveParentModel) Split(parent *domain.Household, p *domain.Person) (bool, error) {
	return m.guard.Run(m.Name(), parent, func(s *guard.Scope) error {
		nh, err := m.sim.NewHousehold()
		if err != nil {
			return err
		}
		s.OnRestore(func() { m.sim.DissolveHousehold(nh) })

		m.sim.DetachMember(s.Household(), p.ID)
		nh.Members = append(nh.Members, p.ID)
		p.HouseholdID = nh.ID
		p.Role = domain.RoleSingle
		m.sim.RefreshHousehold(nh)

		dwelling, _, found := m.housing.best(*nh, math.Inf(-1))
		if !found {
			m.sim.Diagnostics.Record(m.Name(), diagnostics.IssueFailedHouseholdSplit,
				fmt.Sprintf("no vacant dwelling for person %d leaving household %d", p.ID, s.Household().ID))
			return guard.Infeasible("no vacant dwelling")
		}
		if err := m.sim.OccupyDwelling(nh, dwelling); err != nil {
			return err
		}
		m.sim.RefreshHousehold(s.Household())
		return nil
	})
}

func (m *LeaveParentModel) EndYear(context.Context, int) error { return nil }

func (m *LeaveParentModel) EndSimulation(context.Context) error { return nil }
