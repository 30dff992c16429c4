// Package events implements the yearly demographic and market event models
// and the lifecycle every model goes through within one simulated year.
package events

import (
	"context"
	"math/rand/v2"

	"landsim/pkg/domain"
)

// Model proposes and applies one kind of discrete transition.
//
// EventsForYear scans the registries and draws exactly one uniform number per
// candidate, whatever the candidate's probability. It is the only place a
// model consumes randomness. HandleEvent re-checks eligibility, because an
// earlier event may have changed the subject, and reports whether state
// changed; false is a no-op, not a failure.
type Model interface {
	Name() string
	PrepareYear(ctx context.Context, year int) error
	EventsForYear(ctx context.Context, year int) ([]domain.MicroEvent, error)
	HandleEvent(ctx context.Context, event domain.MicroEvent) (bool, error)
	EndYear(ctx context.Context, year int) error
	EndSimulation(ctx context.Context) error
}

// draw consumes one uniform number and reports whether it falls below p,
// together with the number rescaled to [0,1) within the accepted band. The
// rescaled value lets a handler make a secondary choice without a second
// draw.
func draw(rng *rand.Rand, p float64) (bool, float64) {
	u := rng.Float64()
	if p <= 0 || u >= p {
		return false, 0
	}
	return true, u / p
}

// noopHooks provides empty lifecycle hooks for models that need none.
type noopHooks struct{}

func (noopHooks) PrepareYear(context.Context, int) error { return nil }
func (noopHooks) EndYear(context.Context, int) error     { return nil }
func (noopHooks) EndSimulation(context.Context) error    { return nil }
