// Package guard protects a household against half-applied multi-step
// mutations. A caller snapshots the household, performs its sub-steps and
// either releases the snapshot or restores it.
package guard

import (
	"errors"
	"fmt"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/pkg/domain"
)

var (
	// ErrInfeasible is returned by a sub-step that cannot complete. Run
	// restores the household and reports the event as a no-op.
	ErrInfeasible = errors.New("guard: mutation infeasible")
	// ErrReleased is returned when a memento is used after release.
	ErrReleased = errors.New("guard: memento already released")
)

// Memento is a point-in-time copy of one household and the persons that
// were its members when it was taken.
type Memento struct {
	target    *domain.Household
	household domain.Household
	members   []domain.Person
	year      int
	released  bool
}

// Guard snapshots and restores households of one simulation context. It is
// safe for concurrent use as long as callers hold the household's lock.
type Guard struct {
	sim   *core.SimulationContext
	audit map[domain.HouseholdID]struct{}
}

// Option configures a Guard.
type Option func(*Guard)

// WithAudit enables audit logging for the given households.
func WithAudit(ids ...domain.HouseholdID) Option {
	return func(g *Guard) {
		for _, id := range ids {
			g.audit[id] = struct{}{}
		}
	}
}

// New constructs a guard over sim.
func New(sim *core.SimulationContext, opts ...Option) *Guard {
	g := &Guard{sim: sim, audit: make(map[domain.HouseholdID]struct{})}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Snapshot captures h and its current members.
func (g *Guard) Snapshot(h *domain.Household) *Memento {
	m := &Memento{
		target: h,
		household: domain.Household{
			ID:         h.ID,
			Members:    append([]domain.PersonID(nil), h.Members...),
			DwellingID: h.DwellingID,
			Income:     h.Income,
			Size:       h.Size,
			Type:       h.Type,
		},
		members: make([]domain.Person, 0, len(h.Members)),
		year:    g.sim.Year(),
	}
	for _, id := range h.Members {
		if p, ok := g.sim.Persons.Get(id); ok {
			m.members = append(m.members, *p)
		}
	}
	g.trace(h.ID, "snapshot")
	return m
}

// Restore reverts the household and its captured members to the memento.
// Dwelling and job links are re-established where the counterpart still
// exists. The memento is released afterwards.
func (g *Guard) Restore(m *Memento) error {
	if m.released {
		return ErrReleased
	}
	if m.year != g.sim.Year() {
		return fmt.Errorf("guard: memento of household %d taken in %d used in %d", m.household.ID, m.year, g.sim.Year())
	}
	h, ok := g.sim.Households.Get(m.household.ID)
	if !ok {
		h = m.target
		h.DwellingID = domain.NoDwelling
		if err := g.sim.Households.Add(h); err != nil {
			return err
		}
	}
	if h.DwellingID != m.household.DwellingID {
		g.sim.VacateDwelling(h)
		if m.household.DwellingID != domain.NoDwelling {
			if d, ok := g.sim.Dwellings.Get(m.household.DwellingID); ok && (d.Vacant() || d.ResidentID == h.ID) {
				d.ResidentID = h.ID
			}
		}
	}
	h.Members = append(h.Members[:0], m.household.Members...)
	h.DwellingID = m.household.DwellingID
	h.Income = m.household.Income
	h.Size = m.household.Size
	h.Type = m.household.Type

	for _, saved := range m.members {
		if err := g.restorePerson(saved); err != nil {
			return err
		}
	}
	m.released = true
	g.trace(h.ID, "restore")
	return nil
}

func (g *Guard) restorePerson(saved domain.Person) error {
	p, ok := g.sim.Persons.Get(saved.ID)
	if !ok {
		cp := saved
		if err := g.sim.Persons.Add(&cp); err != nil {
			return err
		}
		p = &cp
	} else if p.JobID != saved.JobID && p.Employed() {
		if job, ok := g.sim.Jobs.Get(p.JobID); ok && job.WorkerID == p.ID {
			_ = g.sim.Jobs.SetWorker(p.JobID, domain.VacantJob)
		}
	}
	*p = saved
	if saved.Employed() {
		if job, ok := g.sim.Jobs.Get(saved.JobID); ok && (job.Vacant() || job.WorkerID == saved.ID) {
			_ = g.sim.Jobs.SetWorker(saved.JobID, saved.ID)
		}
	}
	return nil
}

// Release discards the memento after a successful mutation sequence.
func (g *Guard) Release(m *Memento) error {
	if m.released {
		return ErrReleased
	}
	m.released = true
	g.trace(m.household.ID, "release")
	return nil
}

func (g *Guard) trace(id domain.HouseholdID, action string) {
	if _, ok := g.audit[id]; !ok {
		return
	}
	h, _ := g.sim.Households.Get(id)
	args := []any{"household", id, "action", action, "year", g.sim.Year()}
	if h != nil {
		args = append(args, "members", len(h.Members), "dwelling", h.DwellingID, "income", h.Income)
	}
	g.sim.Logger.Info("household audit", args...)
}

// Scope is handed to the mutation function of Run.
type Scope struct {
	guard     *Guard
	household *domain.Household
	undo      []func()
}

// Household returns the guarded household.
func (s *Scope) Household() *domain.Household { return s.household }

// OnRestore registers a compensation run, newest first, if the sequence
// fails. Use it for side effects outside the guarded household, such as a
// newly created household or person.
func (s *Scope) OnRestore(fn func()) { s.undo = append(s.undo, fn) }

// Infeasible wraps a reason in ErrInfeasible.
func Infeasible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInfeasible, fmt.Sprintf(format, args...))
}

// Run snapshots h, calls fn and releases the snapshot on success. When fn
// returns an error the compensations run and the household is restored; an
// ErrInfeasible result yields (false, nil), any other error is returned.
func (g *Guard) Run(component string, h *domain.Household, fn func(*Scope) error) (bool, error) {
	m := g.Snapshot(h)
	scope := &Scope{guard: g, household: h}
	err := fn(scope)
	if err == nil {
		return true, g.Release(m)
	}
	for i := len(scope.undo) - 1; i >= 0; i-- {
		scope.undo[i]()
	}
	if rerr := g.Restore(m); rerr != nil {
		return false, errors.Join(err, rerr)
	}
	g.sim.Diagnostics.Increment(component, diagnostics.IssueHouseholdRestored)
	if errors.Is(err, ErrInfeasible) {
		return false, nil
	}
	return false, err
}
