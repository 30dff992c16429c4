package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"landsim/internal/blob"
	"landsim/internal/checkpoint"
	"landsim/internal/compress"
	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/events"
	"landsim/internal/forecast"
	"landsim/internal/guard"
	"landsim/internal/jobmarket"
	"landsim/internal/notify"
	"landsim/internal/pricing"
	"landsim/internal/report"
	"landsim/pkg/domain"
	"landsim/testutil"
)

func population() domain.Population {
	b := testutil.NewPopulation().Zone(1).Zone(2).Zone(3)
	types := domain.DwellingTypes()
	var dwellings []domain.DwellingID
	for i := 0; i < 24; i++ {
		zone := domain.ZoneID(i%3 + 1)
		dwellings = append(dwellings, b.Dwelling(zone, types[i%len(types)], 100000+5000*i))
	}
	var jobs []domain.JobID
	for i := 0; i < 12; i++ {
		typ := "retail"
		if i%2 == 0 {
			typ = "office"
		}
		jobs = append(jobs, b.Job(domain.ZoneID(i%3+1), typ))
	}
	next := 0
	for i := 0; i < 14; i++ {
		members := []testutil.PersonSpec{
			{Age: 30 + i, Gender: domain.GenderFemale, Role: domain.RoleMarried},
			{Age: 32 + i, Gender: domain.GenderMale, Role: domain.RoleMarried},
		}
		if i%3 == 0 {
			members = append(members, testutil.PersonSpec{Age: 19 + i%4, Gender: domain.GenderMale, Role: domain.RoleChild})
		}
		if i%4 == 1 {
			members = []testutil.PersonSpec{testutil.Adult(70+i, domain.GenderFemale)}
		}
		_, ids := b.Household(dwellings[i], members...)
		if next < len(jobs)-4 {
			b.Employ(ids[0], jobs[next], 40000)
			next++
		}
	}
	return b.Build()
}

type recordingWriter struct {
	years map[int]string
}

func (w *recordingWriter) WritePopulation(_ context.Context, year int, pop domain.Population) error {
	fp, err := checkpoint.Fingerprint(pop)
	if err != nil {
		return err
	}
	w.years[year] = fp
	return nil
}

func (w *recordingWriter) sortedYears() []int {
	out := make([]int, 0, len(w.years))
	for y := range w.years {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

type recordingNotifier struct {
	msgs []notify.YearComplete
}

func (n *recordingNotifier) YearComplete(_ context.Context, msg notify.YearComplete) error {
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type stopAt int

func (s stopAt) ShouldStop(_ context.Context, year int) (bool, error) { return year >= int(s), nil }

func jobForecast() *forecast.Table {
	var rows []forecast.Row
	for year := 2015; year < 2020; year++ {
		for zone := 1; zone <= 3; zone++ {
			rows = append(rows,
				forecast.Row{Year: year, Key: domain.JobKey{Zone: domain.ZoneID(zone), Type: "office"}, Jobs: 2 + year - 2015},
				forecast.Row{Year: year, Key: domain.JobKey{Zone: domain.ZoneID(zone), Type: "retail"}, Jobs: 3 - (year-2015)%2},
			)
		}
	}
	return forecast.NewTable(rows)
}

// newContext builds a loaded context; restore, when set, replaces the
// initial population with a checkpoint.
func newContext(t *testing.T, seed uint64, runID string, restore *checkpoint.Checkpoint) *core.SimulationContext {
	t.Helper()
	sim := core.NewSimulationContext(core.WithSeed(seed), core.WithRunID(runID))
	if restore != nil {
		if err := Restore(sim, *restore); err != nil {
			t.Fatalf("restore: %v", err)
		}
		return sim
	}
	if err := sim.Load(population()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return sim
}

func newScheduler(t *testing.T, sim *core.SimulationContext, opts ...Option) *Scheduler {
	t.Helper()
	g := guard.New(sim)
	models := events.DefaultModels(sim, g, events.Config{})
	prices, err := pricing.NewEngine(sim, nil)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	opts = append([]Option{WithForecast(jobForecast(), []int{2017}, map[int]int{2017: 20})}, opts...)
	return New(sim, models, jobmarket.New(sim, g, jobmarket.WithWorkers(4)), prices, opts...)
}

func TestRunIsDeterministic(t *testing.T) {
	ctx := context.Background()
	run := func(seed uint64) (Outcome, *recordingWriter) {
		w := &recordingWriter{years: map[int]string{}}
		sim := newContext(t, seed, "run", nil)
		out, err := newScheduler(t, sim, WithWriter(w, []int{2016})).Run(ctx, 2015, 2019)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return out, w
	}
	first, w1 := run(7)
	second, w2 := run(7)

	if first.LastCompletedYear != 2018 || first.Stopped {
		t.Fatalf("unexpected outcome %+v", first)
	}
	if first.Fingerprint == "" || first.Fingerprint != second.Fingerprint {
		t.Fatalf("fingerprints differ: %s vs %s", first.Fingerprint, second.Fingerprint)
	}
	years := w1.sortedYears()
	if len(years) != 2 || years[0] != 2016 || years[1] != 2018 {
		t.Fatalf("snapshot years = %v", years)
	}
	for y, fp := range w1.years {
		if w2.years[y] != fp {
			t.Fatalf("snapshot %d differs", y)
		}
	}
	if w1.years[2018] != first.Fingerprint {
		t.Fatalf("final snapshot does not match outcome fingerprint")
	}
}

func TestRunReconcilesForecastInScalingYear(t *testing.T) {
	sim := newContext(t, 3, "run", nil)
	if _, err := newScheduler(t, sim).Run(context.Background(), 2017, 2018); err != nil {
		t.Fatalf("run: %v", err)
	}
	total := 0
	for _, n := range sim.Jobs.CountByKey() {
		total += n
	}
	if total != 20 {
		t.Fatalf("jobs after scaling year = %d, want control total 20", total)
	}
}

func TestRunReportsAndNotifies(t *testing.T) {
	n := &recordingNotifier{}
	wb := report.New()
	sim := newContext(t, 11, "run-notify", nil)
	if _, err := newScheduler(t, sim, WithNotifier(n), WithReport(wb)).Run(context.Background(), 2015, 2018); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(n.msgs) != 3 {
		t.Fatalf("messages = %d", len(n.msgs))
	}
	for i, msg := range n.msgs {
		if msg.RunID != "run-notify" || msg.Year != 2015+i || msg.Fingerprint == "" {
			t.Fatalf("message %d = %+v", i, msg)
		}
		if msg.Final != (i == 2) {
			t.Fatalf("message %d final = %v", i, msg.Final)
		}
	}
	rows := wb.Rows()
	if len(rows) != 3 || rows[2].Year != 2017 || len(rows[2].AveragePrice) == 0 {
		t.Fatalf("report rows = %+v", rows)
	}
	if rows[2].Persons != sim.Persons.Len() || rows[2].Fingerprint != n.msgs[2].Fingerprint {
		t.Fatalf("last row does not describe final state: %+v", rows[2])
	}
}

func TestStopCheckpointAndResume(t *testing.T) {
	ctx := context.Background()

	full := newContext(t, 21, "resume", nil)
	want, err := newScheduler(t, full).Run(ctx, 2015, 2019)
	if err != nil {
		t.Fatalf("uninterrupted run: %v", err)
	}

	store := blob.NewMemory()
	w := &recordingWriter{years: map[int]string{}}
	first := newContext(t, 21, "resume", nil)
	out, err := newScheduler(t, first,
		WithStopper(stopAt(2017)),
		WithCheckpoints(store, compress.Zstd),
		WithWriter(w, nil),
	).Run(ctx, 2015, 2019)
	if err != nil {
		t.Fatalf("stopped run: %v", err)
	}
	if !out.Stopped || out.LastCompletedYear != 2016 || out.CheckpointKey == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, ok := w.years[2016]; !ok || len(w.years) != 1 {
		t.Fatalf("last completed year not written: %v", w.sortedYears())
	}

	cp, err := checkpoint.Load(ctx, store, out.CheckpointKey)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if cp.NextYear != 2017 || cp.EndYear != 2019 || cp.LastYear != 2016 {
		t.Fatalf("checkpoint years %d %d %d", cp.LastYear, cp.NextYear, cp.EndYear)
	}
	resumed := newContext(t, cp.Seed, cp.RunID, &cp)
	got, err := newScheduler(t, resumed).Run(ctx, cp.NextYear, cp.EndYear)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if got.Fingerprint != want.Fingerprint {
		t.Fatalf("resumed fingerprint %s, uninterrupted %s", got.Fingerprint, want.Fingerprint)
	}
}

func TestRestoreRejectsSeedMismatch(t *testing.T) {
	sim := core.NewSimulationContext(core.WithSeed(1))
	if err := Restore(sim, checkpoint.Checkpoint{Seed: 2}); err == nil {
		t.Fatalf("expected seed mismatch")
	}
}

type explodingModel struct {
	year  int
	ended bool
}

func (m *explodingModel) Name() string { return "exploding" }

func (m *explodingModel) PrepareYear(context.Context, int) error { return nil }

func (m *explodingModel) EndYear(context.Context, int) error { return nil }

func (m *explodingModel) EndSimulation(context.Context) error {
	m.ended = true
	return nil
}

func (m *explodingModel) HandleEvent(context.Context, domain.MicroEvent) (bool, error) {
	return false, nil
}

func (m *explodingModel) EventsForYear(_ context.Context, year int) ([]domain.MicroEvent, error) {
	if year == m.year {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func TestRunFatalErrorReportsYearAndComponent(t *testing.T) {
	counter := diagnostics.New()
	sim := core.NewSimulationContext(core.WithSeed(1), core.WithDiagnostics(counter))
	if err := sim.Load(population()); err != nil {
		t.Fatal(err)
	}
	m := &explodingModel{year: 2016}
	prices, _ := pricing.NewEngine(sim, nil)
	s := New(sim, []events.Model{m}, nil, prices)

	out, err := s.Run(context.Background(), 2015, 2020)
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.Year != 2016 || runErr.Component != "exploding" || runErr.LastCompletedYear != 2015 {
		t.Fatalf("run error = %+v", runErr)
	}
	if out.LastCompletedYear != 2015 {
		t.Fatalf("outcome = %+v", out)
	}
	if counter.Count(diagnostics.IssueFatal) != 1 {
		t.Fatalf("fatal issue not recorded")
	}
	if !m.ended {
		t.Fatalf("models not ended after fatal error")
	}
}

func TestRunFlushesDiagnosticsAtRunEnd(t *testing.T) {
	cases := []struct {
		name    string
		opts    []Option
		flushes int
	}{
		{name: "completed", flushes: 3},
		{name: "stopped", opts: []Option{WithStopper(stopAt(2016))}, flushes: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counter := diagnostics.New()
			sim := core.NewSimulationContext(core.WithSeed(3), core.WithDiagnostics(counter))
			if err := sim.Load(population()); err != nil {
				t.Fatal(err)
			}
			if _, err := newScheduler(t, sim, tc.opts...).Run(context.Background(), 2015, 2017); err != nil {
				t.Fatalf("run: %v", err)
			}
			want := fmt.Sprintf(`# HELP landsim_diagnostics_flushes_total Number of diagnostics flushes.
# TYPE landsim_diagnostics_flushes_total counter
landsim_diagnostics_flushes_total %d
`, tc.flushes)
			if err := promtestutil.GatherAndCompare(counter.Registry(), strings.NewReader(want), "landsim_diagnostics_flushes_total"); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestRunRejectsEmptyPeriod(t *testing.T) {
	sim := core.NewSimulationContext()
	if _, err := New(sim, nil, nil, nil).Run(context.Background(), 2020, 2020); err == nil {
		t.Fatalf("expected error for empty period")
	}
}
