package events

import (
	"context"
	"fmt"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/pkg/domain"
)

// State is the position of a model within its yearly lifecycle.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateProposing
	StateHandling
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateProposing:
		return "proposing"
	case StateHandling:
		return "handling"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionError reports a lifecycle call made in the wrong state.
type TransitionError struct {
	Model string
	From  State
	To    State
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("model %s: invalid transition %s -> %s", e.Model, e.From, e.To)
}

// YearStats summarises one model's year.
type YearStats struct {
	Model    string
	Year     int
	Proposed int
	Applied  int
}

// Runner drives one model through Idle, Preparing, Proposing, Handling and
// Finalizing and back to Idle, rejecting out-of-order calls.
type Runner struct {
	model Model
	sim   *core.SimulationContext
	state State
	year  int
	stats YearStats
}

// NewRunner wraps a model.
func NewRunner(sim *core.SimulationContext, model Model) *Runner {
	return &Runner{model: model, sim: sim}
}

// Model returns the wrapped model.
func (r *Runner) Model() Model { return r.model }

// State returns the current lifecycle state.
func (r *Runner) State() State { return r.state }

func (r *Runner) enter(from, to State) error {
	if r.state != from {
		return TransitionError{Model: r.model.Name(), From: r.state, To: to}
	}
	r.state = to
	return nil
}

// Prepare runs the model's year preparation.
func (r *Runner) Prepare(ctx context.Context, year int) error {
	if err := r.enter(StateIdle, StatePreparing); err != nil {
		return err
	}
	r.year = year
	r.stats = YearStats{Model: r.model.Name(), Year: year}
	return r.model.PrepareYear(ctx, year)
}

// Step proposes the year's events and handles them in generation order.
func (r *Runner) Step(ctx context.Context) (YearStats, error) {
	if err := r.enter(StatePreparing, StateProposing); err != nil {
		return YearStats{}, err
	}
	proposed, err := r.model.EventsForYear(ctx, r.year)
	if err != nil {
		return YearStats{}, err
	}
	if err := r.enter(StateProposing, StateHandling); err != nil {
		return YearStats{}, err
	}
	r.stats.Proposed = len(proposed)
	for _, ev := range proposed {
		applied, err := r.model.HandleEvent(ctx, ev)
		if err != nil {
			return r.stats, fmt.Errorf("handle %s %d: %w", ev.Kind, ev.Subject, err)
		}
		if applied {
			r.stats.Applied++
		}
	}
	r.sim.Logger.Debug("events handled", "model", r.model.Name(), "year", r.year, "proposed", r.stats.Proposed, "applied", r.stats.Applied)
	return r.stats, nil
}

// Finalize runs the model's end-of-year hook and returns it to Idle.
func (r *Runner) Finalize(ctx context.Context) error {
	if err := r.enter(StateHandling, StateFinalizing); err != nil {
		return err
	}
	if err := r.model.EndYear(ctx, r.year); err != nil {
		return err
	}
	r.state = StateIdle
	return nil
}

// Abandon forces the runner back to Idle after a fatal error.
func (r *Runner) Abandon() { r.state = StateIdle }

// stale records an event whose subject disappeared before handling.
func stale(sim *core.SimulationContext, model string, entity domain.EntityType, id int) {
	sim.Diagnostics.Record(model, diagnostics.IssueStaleEvent, fmt.Sprintf("%s %d no longer exists", entity, id))
}
