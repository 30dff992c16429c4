package events

import (
	"landsim/internal/core"
	"landsim/internal/guard"
)

// Config selects the behavioural inputs of the built-in models.
type Config struct {
	Strategy          ProbabilityStrategy
	EmploymentTargets EmploymentTargets
	// Disabled lists model names to leave out.
	Disabled []string
}

// DefaultModels returns the built-in models in their fixed yearly order:
// ageing, mortality, fertility, labour market, household formation,
// relocation and renovation. Later models observe the effects of earlier
// ones within the same year.
func DefaultModels(sim *core.SimulationContext, g *guard.Guard, cfg Config) []Model {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = DefaultStrategy{}
	}
	all := []Model{
		NewBirthdayModel(sim),
		NewDeathModel(sim, g, strategy),
		NewBirthModel(sim, g, strategy),
		NewEmploymentModel(sim, g, strategy, cfg.EmploymentTargets),
		NewLeaveParentModel(sim, g, strategy),
		NewRelocationModel(sim, g, strategy),
		NewRenovationModel(sim, strategy),
	}
	if len(cfg.Disabled) == 0 {
		return all
	}
	skip := make(map[string]struct{}, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		skip[name] = struct{}{}
	}
	out := all[:0]
	for _, m := range all {
		if _, ok := skip[m.Name()]; !ok {
			out = append(out, m)
		}
	}
	return out
}
