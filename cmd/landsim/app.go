package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"landsim/internal/blob"
	"landsim/internal/checkpoint"
	"landsim/internal/compress"
	"landsim/internal/config"
	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/events"
	"landsim/internal/forecast"
	"landsim/internal/guard"
	"landsim/internal/jobmarket"
	"landsim/internal/logging"
	"landsim/internal/notify"
	"landsim/internal/pricing"
	"landsim/internal/report"
	"landsim/internal/scheduler"
	"landsim/internal/skim"
	"landsim/internal/snapshot"
	"landsim/internal/stopper"
	"landsim/pkg/domain"
)

type runOptions struct {
	resumeKey string
	// endYearSet keeps the configured end year on resume instead of the
	// one stored in the checkpoint.
	endYearSet bool
}

// execute wires the engine from cfg and runs it. The outcome is returned
// even on failure so the caller can report diagnostics.
func execute(ctx context.Context, cfg *config.Config, opts runOptions, logOut io.Writer) (out scheduler.Outcome, err error) {
	logger, err := logging.New(logging.Options{
		Backend: logging.Backend(cfg.Logging.Backend),
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: cfg.Logging.Service,
		Output:  logOut,
	})
	if err != nil {
		return out, err
	}
	if z, ok := logger.(*logging.ZapLogger); ok {
		defer func() { _ = z.Sync() }()
	}

	counterOpts := []diagnostics.Option{diagnostics.WithLogger(logger)}
	if cfg.Diagnostics.Textfile != "" {
		counterOpts = append(counterOpts, diagnostics.WithTextfile(cfg.Diagnostics.Textfile))
	}
	counter := diagnostics.New(counterOpts...)
	if cfg.Diagnostics.Expvar != "" {
		counter.PublishExpvar(cfg.Diagnostics.Expvar)
	}
	defer func() {
		if out.Issues == nil {
			out.Issues = counter.Totals()
		}
	}()

	runID, seed := cfg.Run.ID, cfg.Run.Seed
	start, end := cfg.Run.StartYear, cfg.Run.EndYear
	out = scheduler.Outcome{StartYear: start, EndYear: end, LastCompletedYear: start - 1}
	// fatal reports a setup failure the way the scheduler reports an abort.
	fatal := func(component string, err error) error {
		counter.SetYear(start)
		counter.Record(component, diagnostics.IssueFatal, err.Error())
		if _, ferr := counter.Flush(start); ferr != nil {
			logger.Warn("diagnostics flush failed", "error", ferr)
		}
		logger.Error("setup failed", "year", start, "component", component, "error", err)
		return &scheduler.RunError{Year: start, Component: component, LastCompletedYear: start - 1, Err: err}
	}

	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return out, fatal(scheduler.ComponentBlob, fmt.Errorf("open blob store: %w", err))
	}

	var resume *checkpoint.Checkpoint
	if opts.resumeKey != "" {
		cp, err := checkpoint.Load(ctx, store, opts.resumeKey)
		if err != nil {
			return out, fatal(scheduler.ComponentCheckpoint, fmt.Errorf("load checkpoint %s: %w", opts.resumeKey, err))
		}
		resume = &cp
	}

	if resume != nil {
		runID, seed, start = resume.RunID, resume.Seed, resume.NextYear
		if !opts.endYearSet {
			end = resume.EndYear
		}
		out = scheduler.Outcome{StartYear: start, EndYear: end, LastCompletedYear: start - 1}
	}

	travel, err := skim.Open(ctx, cfg.Skim, logger)
	if err != nil {
		return out, fatal(scheduler.ComponentSkim, fmt.Errorf("open skim: %w", err))
	}

	sim := core.NewSimulationContext(
		core.WithSeed(seed),
		core.WithRunID(runID),
		core.WithLogger(logger),
		core.WithDiagnostics(counter),
		core.WithTravelTimes(travel),
	)
	runID = sim.RunID
	if resume != nil {
		if err := scheduler.Restore(sim, *resume); err != nil {
			return out, fatal(scheduler.ComponentCheckpoint, err)
		}
	} else if err := loadPopulation(ctx, cfg.Population, sim); err != nil {
		return out, fatal(scheduler.ComponentPopulation, err)
	}

	audit := make([]domain.HouseholdID, 0, len(cfg.Run.AuditHouseholds))
	for _, id := range cfg.Run.AuditHouseholds {
		audit = append(audit, domain.HouseholdID(id))
	}
	g := guard.New(sim, guard.WithAudit(audit...))

	targets := events.EmploymentTargets{
		domain.GenderMale:   cfg.Employment.Male,
		domain.GenderFemale: cfg.Employment.Female,
	}
	if err := targets.Validate(); err != nil {
		return out, fatal(scheduler.ComponentEmployment, err)
	}
	models := events.DefaultModels(sim, g, events.Config{
		EmploymentTargets: targets,
		Disabled:          cfg.Run.DisabledModels,
	})

	prices, err := pricing.NewEngine(sim, curves(cfg.Pricing))
	if err != nil {
		return out, fatal(scheduler.ComponentPricing, fmt.Errorf("pricing: %w", err))
	}

	var schedOpts []scheduler.Option

	table, err := forecast.Open(cfg.Forecast)
	if err != nil {
		return out, fatal(scheduler.ComponentForecast, err)
	}
	if table != nil {
		if table.Skipped() > 0 {
			logger.Warn("forecast rows skipped", "path", cfg.Forecast.Path, "rows", table.Skipped())
		}
		schedOpts = append(schedOpts, scheduler.WithForecast(table, cfg.Run.ScalingYears, cfg.Forecast.ControlTotals))
	}

	writers, closeWriters, err := snapshot.OpenWriters(ctx, cfg.Output, runID, store)
	if err != nil {
		return out, fatal(scheduler.ComponentSnapshot, fmt.Errorf("open snapshot writers: %w", err))
	}
	defer func() { err = errors.Join(err, closeWriters.Close()) }()
	if len(writers) > 0 {
		schedOpts = append(schedOpts, scheduler.WithWriter(writers, cfg.Run.OutputYears))
	}

	stop, closeStopper, err := stopper.Open(ctx, cfg.Stopper)
	if err != nil {
		return out, fatal(scheduler.ComponentStopper, fmt.Errorf("open stopper: %w", err))
	}
	defer func() { err = errors.Join(err, closeStopper()) }()
	schedOpts = append(schedOpts, scheduler.WithStopper(stop))

	notifier, err := notify.Open(cfg.Notify)
	if err != nil {
		return out, fatal(scheduler.ComponentNotify, fmt.Errorf("open notifier: %w", err))
	}
	defer func() { err = errors.Join(err, notifier.Close()) }()
	schedOpts = append(schedOpts, scheduler.WithNotifier(notifier))

	var wb *report.Workbook
	if cfg.Report.XLSXPath != "" {
		wb = report.New()
		schedOpts = append(schedOpts, scheduler.WithReport(wb))
	}

	if cfg.Checkpoint.Enabled {
		alg, err := compress.Parse(cfg.Checkpoint.Compression)
		if err != nil {
			return out, fatal(scheduler.ComponentCheckpoint, err)
		}
		schedOpts = append(schedOpts, scheduler.WithCheckpoints(store, alg))
	}

	recon := jobmarket.New(sim, g, jobmarket.WithWorkers(cfg.Run.Workers))
	logger.Info("run configured", "run_id", runID, "seed", seed, "start_year", start, "end_year", end,
		"models", len(models), "resumed", resume != nil)

	out, err = scheduler.New(sim, models, recon, prices, schedOpts...).Run(ctx, start, end)
	if wb != nil && len(wb.Rows()) > 0 {
		if saveErr := wb.Save(cfg.Report.XLSXPath); saveErr != nil {
			logger.Error("report not written", "path", cfg.Report.XLSXPath, "error", saveErr)
			err = errors.Join(err, saveErr)
		}
	}
	return out, err
}

func loadPopulation(ctx context.Context, cfg config.PopulationConfig, sim *core.SimulationContext) error {
	reader, closer, err := snapshot.OpenReader(cfg)
	if err != nil {
		return fmt.Errorf("open population: %w", err)
	}
	defer closer.Close()
	pop, err := reader.ReadPopulation(ctx)
	if err != nil {
		return fmt.Errorf("read population: %w", err)
	}
	if err := sim.Load(pop); err != nil {
		return fmt.Errorf("load population: %w", err)
	}
	return nil
}

// curves builds one pricing curve per configured dwelling type from the
// shared parameters.
func curves(cfg config.PricingConfig) map[domain.DwellingType]pricing.Curve {
	out := make(map[domain.DwellingType]pricing.Curve, len(cfg.StructuralVacancy))
	for typ, sv := range cfg.StructuralVacancy {
		out[domain.DwellingType(typ)] = pricing.Curve{
			StructuralVacancy: sv,
			InflectionLow:     cfg.InflectionLow,
			InflectionHigh:    cfg.InflectionHigh,
			SlopeLow:          cfg.SlopeLow,
			SlopeMain:         cfg.SlopeMain,
			SlopeHigh:         cfg.SlopeHigh,
			MaxDelta:          cfg.MaxDelta,
		}
	}
	return out
}
