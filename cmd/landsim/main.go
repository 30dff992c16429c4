// Command landsim runs the land-use micro-simulation.
//
//	landsim run --config landsim.yaml [--start-year 2015] [--end-year 2030] [--resume key]
//
// Years are simulated over [start, end). The exit status is 0 when the run
// completes or is stopped by a model stopper, 1 on a fatal error and 2 on
// invalid usage or configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"landsim/internal/config"
	"landsim/internal/diagnostics"
	"landsim/internal/scheduler"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}
	if args[0] != "run" {
		fmt.Fprintf(stderr, "landsim: unknown command %q\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	var (
		configPath string
		startYear  int
		endYear    int
		resumeKey  string
	)
	flagSet := pflag.NewFlagSet("landsim run", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML run configuration (required)")
	flagSet.IntVar(&startYear, "start-year", 0, "first simulated year (overrides run.start_year)")
	flagSet.IntVar(&endYear, "end-year", 0, "year the run stops before (overrides run.end_year)")
	flagSet.StringVar(&resumeKey, "resume", "", "blob key of a checkpoint to resume from")
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if configPath == "" {
		fmt.Fprintln(stderr, "landsim: --config is required")
		return exitUsage
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "landsim: %v\n", err)
		return exitUsage
	}
	if flagSet.Changed("start-year") {
		cfg.Run.StartYear = startYear
	}
	if flagSet.Changed("end-year") {
		cfg.Run.EndYear = endYear
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "landsim: invalid configuration:\n%v\n", err)
		return exitUsage
	}

	out, err := execute(ctx, cfg, runOptions{
		resumeKey:  resumeKey,
		endYearSet: flagSet.Changed("end-year"),
	}, stderr)
	if err != nil {
		var runErr *scheduler.RunError
		if errors.As(err, &runErr) {
			fmt.Fprintf(stderr, "landsim: fatal error in year %d (component %s), last completed year %d: %v\n",
				runErr.Year, runErr.Component, runErr.LastCompletedYear, runErr.Err)
		} else {
			fmt.Fprintf(stderr, "landsim: %v\n", err)
		}
		printIssues(stderr, out.Issues)
		return exitFatal
	}

	switch {
	case out.Stopped:
		fmt.Fprintf(stdout, "stopped after year %d\n", out.LastCompletedYear)
		if out.CheckpointKey != "" {
			fmt.Fprintf(stdout, "checkpoint %s\n", out.CheckpointKey)
		}
	default:
		fmt.Fprintf(stdout, "completed years %d-%d\n", out.StartYear, out.LastCompletedYear)
	}
	if out.Fingerprint != "" {
		fmt.Fprintf(stdout, "fingerprint %s\n", out.Fingerprint)
	}
	printIssues(stdout, out.Issues)
	return exitOK
}

func printIssues(w io.Writer, issues map[diagnostics.Issue]int64) {
	names := make([]diagnostics.Issue, 0, len(issues))
	for name := range issues {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %d\n", name, issues[name])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: landsim run --config <path> [--start-year <y>] [--end-year <y>] [--resume <key>]")
}
