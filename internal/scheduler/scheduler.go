// Package scheduler advances a simulation context year by year: event
// models in a fixed order, then job reconciliation, pricing, integrity
// checks and the yearly diagnostics flush.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"landsim/internal/blob"
	"landsim/internal/checkpoint"
	"landsim/internal/compress"
	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/events"
	"landsim/internal/forecast"
	"landsim/internal/jobmarket"
	"landsim/internal/notify"
	"landsim/internal/pricing"
	"landsim/internal/report"
	"landsim/internal/stopper"
	"landsim/pkg/domain"
)

// Components named in RunError.
const (
	ComponentForecast    = "forecast"
	ComponentJobMarket   = "jobmarket"
	ComponentIntegrity   = "integrity"
	ComponentDiagnostics = "diagnostics"
	ComponentSnapshot    = "snapshot"
	ComponentCheckpoint  = "checkpoint"

	// Setup components fail before the first year is simulated.
	ComponentBlob       = "blob"
	ComponentSkim       = "skim"
	ComponentPopulation = "population"
	ComponentEmployment = "employment"
	ComponentPricing    = "pricing"
	ComponentStopper    = "stopper"
	ComponentNotify     = "notify"
)

// RunError reports a fatal abort. LastCompletedYear is StartYear-1 when no
// year completed.
type RunError struct {
	Year              int
	Component         string
	LastCompletedYear int
	Err               error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("year %d: %s: %v", e.Year, e.Component, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Outcome describes how a run ended.
type Outcome struct {
	StartYear         int
	EndYear           int
	LastCompletedYear int
	// Stopped is set when a stopper ended the run before EndYear.
	Stopped       bool
	CheckpointKey string
	Fingerprint   string
	Issues        map[diagnostics.Issue]int64
}

// Scheduler runs the yearly loop over one simulation context.
type Scheduler struct {
	sim     *core.SimulationContext
	runners []*events.Runner
	recon   *jobmarket.Reconciliator
	pricing *pricing.Engine

	forecast      domain.Forecast
	scalingYears  map[int]bool
	controlTotals map[int]int

	writer      domain.PopulationWriter
	outputYears map[int]bool
	written     map[int]bool

	stopper  stopper.Stopper
	notifier notify.Notifier
	report   *report.Workbook

	checkpoints   blob.Store
	checkpointAlg compress.Algorithm

	ended bool
	nowFn func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithForecast enables job reconciliation. In scaling years the targets are
// rescaled to the control total of that year.
func WithForecast(f domain.Forecast, scalingYears []int, controlTotals map[int]int) Option {
	return func(s *Scheduler) {
		s.forecast = f
		for _, y := range scalingYears {
			s.scalingYears[y] = true
		}
		s.controlTotals = controlTotals
	}
}

// WithWriter writes population snapshots after each output year and after
// the last completed year.
func WithWriter(w domain.PopulationWriter, outputYears []int) Option {
	return func(s *Scheduler) {
		s.writer = w
		for _, y := range outputYears {
			s.outputYears[y] = true
		}
	}
}

// WithStopper installs the model stopper checked before every year.
func WithStopper(st stopper.Stopper) Option {
	return func(s *Scheduler) {
		if st != nil {
			s.stopper = st
		}
	}
}

// WithNotifier publishes a message after every completed year.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithReport collects one summary row per completed year.
func WithReport(w *report.Workbook) Option {
	return func(s *Scheduler) { s.report = w }
}

// WithCheckpoints stores a checkpoint when a stopper ends the run.
func WithCheckpoints(store blob.Store, alg compress.Algorithm) Option {
	return func(s *Scheduler) {
		s.checkpoints = store
		s.checkpointAlg = alg
	}
}

// New builds a scheduler. Models run in the order given.
func New(sim *core.SimulationContext, models []events.Model, recon *jobmarket.Reconciliator, prices *pricing.Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		sim:          sim,
		recon:        recon,
		pricing:      prices,
		scalingYears: make(map[int]bool),
		outputYears:  make(map[int]bool),
		written:      make(map[int]bool),
		stopper:      stopper.None{},
		notifier:     notify.Nop{},
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
	for _, m := range models {
		s.runners = append(s.runners, events.NewRunner(sim, m))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run simulates the years in [start, end). A stop request ends the run
// gracefully and is not an error. Any other failure aborts the run and is
// returned as a *RunError after the diagnostics are flushed.
func (s *Scheduler) Run(ctx context.Context, start, end int) (Outcome, error) {
	out := Outcome{StartYear: start, EndYear: end, LastCompletedYear: start - 1}
	if end <= start {
		return out, fmt.Errorf("empty simulation period [%d, %d)", start, end)
	}
	s.sim.Logger.Info("simulation started", "run_id", s.sim.RunID, "start_year", start, "end_year", end, "models", len(s.runners))

	for year := start; year < end; year++ {
		stop, err := s.stopper.ShouldStop(ctx, year)
		if err != nil {
			s.sim.Logger.Warn("stopper check failed", "year", year, "error", err)
		}
		if stop {
			out.Stopped = true
			s.sim.Logger.Info("stop requested", "year", year, "last_completed_year", out.LastCompletedYear)
			if s.checkpoints != nil {
				key, err := s.saveCheckpoint(ctx, out.LastCompletedYear, year, end)
				if err != nil {
					return out, s.fail(ctx, year, ComponentCheckpoint, out.LastCompletedYear, err)
				}
				out.CheckpointKey = key
			}
			break
		}

		s.sim.SetYear(year)
		fp, component, err := s.simulateYear(ctx, year, end)
		if err != nil {
			return out, s.fail(ctx, year, component, out.LastCompletedYear, err)
		}
		out.LastCompletedYear = year
		out.Fingerprint = fp
	}

	if last := out.LastCompletedYear; last >= start && s.writer != nil && !s.written[last] {
		if err := s.writer.WritePopulation(ctx, last, s.sim.Export()); err != nil {
			return out, s.fail(ctx, last, ComponentSnapshot, last, err)
		}
		s.written[last] = true
	}
	s.ended = true
	for _, r := range s.runners {
		if err := r.Model().EndSimulation(ctx); err != nil {
			return out, s.fail(ctx, out.LastCompletedYear, r.Model().Name(), out.LastCompletedYear, err)
		}
	}
	if _, err := s.sim.Diagnostics.Flush(out.LastCompletedYear); err != nil {
		return out, s.fail(ctx, out.LastCompletedYear, ComponentDiagnostics, out.LastCompletedYear, err)
	}
	out.Issues = s.sim.Diagnostics.Totals()
	s.sim.Logger.Info("simulation finished",
		"run_id", s.sim.RunID,
		"last_completed_year", out.LastCompletedYear,
		"stopped", out.Stopped,
		"fingerprint", out.Fingerprint,
	)
	return out, nil
}

// simulateYear runs one year and returns the state fingerprint. On error
// it also names the failing component.
func (s *Scheduler) simulateYear(ctx context.Context, year, end int) (string, string, error) {
	if rt, ok := s.sim.TravelTimes.(domain.YearlyRefresher); ok {
		if err := rt.RefreshForYear(ctx, year); err != nil {
			s.sim.Logger.Warn("travel times not refreshed", "year", year, "error", err)
		}
	}

	for _, r := range s.runners {
		if err := r.Prepare(ctx, year); err != nil {
			return "", r.Model().Name(), err
		}
	}

	targets, err := s.targets(ctx, year)
	if err != nil {
		return "", ComponentForecast, err
	}

	applied := make(map[string]int, len(s.runners))
	for _, r := range s.runners {
		stats, err := r.Step(ctx)
		if err != nil {
			return "", r.Model().Name(), err
		}
		applied[stats.Model] = stats.Applied
	}

	if targets != nil && s.recon != nil {
		if _, err := s.recon.Reconcile(ctx, targets); err != nil {
			return "", ComponentJobMarket, err
		}
	}

	var prices pricing.Summary
	if s.pricing != nil {
		prices = s.pricing.UpdatePrices(year)
	}

	for _, r := range s.runners {
		if err := r.Finalize(ctx); err != nil {
			return "", r.Model().Name(), err
		}
	}

	if _, err := s.sim.CheckIntegrity(ctx); err != nil {
		return "", ComponentIntegrity, err
	}
	issues, err := s.sim.Diagnostics.Flush(year)
	if err != nil {
		return "", ComponentDiagnostics, err
	}

	pop := s.sim.Export()
	fp, err := checkpoint.Fingerprint(pop)
	if err != nil {
		return "", ComponentSnapshot, err
	}
	row := report.Summarize(year, pop)
	row.AveragePrice = prices.AveragePrice
	row.Fingerprint = fp
	row.Issues = issueNames(issues)

	s.sim.Logger.Info("yearly report",
		"year", year,
		"households", row.Households,
		"persons", row.Persons,
		"employed", row.Employed,
		"dwellings", row.Dwellings,
		"vacant_dwellings", row.VacantDwellings,
		"jobs", row.Jobs,
		"vacant_jobs", row.VacantJobs,
		"births", applied["birth"],
		"deaths", applied["death"],
		"moves", applied["relocation"],
		"fingerprint", fp,
	)

	if s.writer != nil && (s.outputYears[year] || year == end-1) {
		if err := s.writer.WritePopulation(ctx, year, pop); err != nil {
			return "", ComponentSnapshot, err
		}
		s.written[year] = true
	}
	if s.report != nil {
		s.report.Add(row)
	}
	msg := notify.YearComplete{
		RunID:       s.sim.RunID,
		Year:        year,
		Households:  row.Households,
		Persons:     row.Persons,
		Dwellings:   row.Dwellings,
		Jobs:        row.Jobs,
		Fingerprint: fp,
		Issues:      row.Issues,
		Final:       year == end-1,
		At:          s.nowFn(),
	}
	if err := s.notifier.YearComplete(ctx, msg); err != nil {
		s.sim.Logger.Warn("year notification failed", "year", year, "error", err)
	}
	return fp, "", nil
}

// targets returns the forecast for year, rescaled in scaling years. A nil
// map means reconciliation is skipped.
func (s *Scheduler) targets(ctx context.Context, year int) (map[domain.JobKey]int, error) {
	if s.forecast == nil {
		return nil, nil
	}
	targets, err := s.forecast.Targets(ctx, year)
	if err != nil {
		return nil, err
	}
	if s.scalingYears[year] {
		total, ok := s.controlTotals[year]
		if !ok {
			return nil, fmt.Errorf("no control total for scaling year %d", year)
		}
		targets = forecast.Scale(targets, total)
		s.sim.Logger.Info("forecast rescaled", "year", year, "control_total", total, "keys", len(targets))
	}
	return targets, nil
}

// fail records the fatal issue, flushes diagnostics and returns the
// RunError. Models are returned to Idle and ended; no state is rolled back.
func (s *Scheduler) fail(ctx context.Context, year int, component string, lastCompleted int, err error) error {
	for _, r := range s.runners {
		r.Abandon()
		if s.ended {
			continue
		}
		if cerr := r.Model().EndSimulation(context.WithoutCancel(ctx)); cerr != nil {
			s.sim.Logger.Warn("end simulation failed", "model", r.Model().Name(), "error", cerr)
		}
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		component = "context"
	}
	s.sim.Diagnostics.Record(component, diagnostics.IssueFatal, err.Error())
	if _, ferr := s.sim.Diagnostics.Flush(year); ferr != nil {
		s.sim.Logger.Warn("diagnostics flush failed", "error", ferr)
	}
	s.sim.Logger.Error("simulation aborted",
		"year", year,
		"component", component,
		"last_completed_year", lastCompleted,
		"error", err,
	)
	return &RunError{Year: year, Component: component, LastCompletedYear: lastCompleted, Err: err}
}

func (s *Scheduler) saveCheckpoint(ctx context.Context, lastYear, nextYear, end int) (string, error) {
	state, err := s.sim.RandState()
	if err != nil {
		return "", err
	}
	cp := checkpoint.Checkpoint{
		RunID:       s.sim.RunID,
		LastYear:    lastYear,
		NextYear:    nextYear,
		EndYear:     end,
		Seed:        s.sim.Seed,
		RandState:   state,
		NextIDs:     s.sim.IDState(),
		Population:  s.sim.Export(),
		Diagnostics: issueNames(s.sim.Diagnostics.Totals()),
		CreatedAt:   s.nowFn(),
	}
	key, err := checkpoint.Save(ctx, s.checkpoints, cp, s.checkpointAlg)
	if err != nil {
		return "", err
	}
	s.sim.Logger.Info("checkpoint saved", "key", key, "next_year", nextYear)
	return key, nil
}

// Restore loads a checkpoint into an empty context created with the
// checkpoint's seed and run id. The run continues with Run(cp.NextYear,
// cp.EndYear).
func Restore(sim *core.SimulationContext, cp checkpoint.Checkpoint) error {
	if sim.Seed != cp.Seed {
		return fmt.Errorf("checkpoint seed %d does not match context seed %d", cp.Seed, sim.Seed)
	}
	if err := sim.Load(cp.Population); err != nil {
		return fmt.Errorf("load checkpoint population: %w", err)
	}
	sim.RestoreIDState(cp.NextIDs)
	if err := sim.RestoreRandState(cp.RandState); err != nil {
		return fmt.Errorf("restore generator: %w", err)
	}
	return nil
}

func issueNames(in map[diagnostics.Issue]int64) map[string]int64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}
