// Package diagnostics implements the process-wide issue counter that engine
// components increment when they hit data-quality problems. Counts are kept
// per year and in total, mirrored into a Prometheus registry, and flushed once
// per simulated year.
package diagnostics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"landsim/internal/logging"
)

// Issue names a class of non-fatal problem.
type Issue string

const (
	IssueNoVacantDwelling     Issue = "no_vacant_dwelling"
	IssueFailedHouseholdSplit Issue = "failed_household_split"
	IssueNoVacantJob          Issue = "no_vacant_job"
	IssueJobRemovalShortfall  Issue = "job_removal_shortfall"
	IssueDanglingReference    Issue = "dangling_reference"
	IssueHouseholdRestored    Issue = "household_restored"
	IssueIntegrityWarning     Issue = "integrity_warning"
	IssueStaleEvent           Issue = "stale_event"
	IssueFatal                Issue = "fatal"
)

// maxEntries bounds the retained event log.
const maxEntries = 10000

// Entry is one recorded occurrence in the append-only log.
type Entry struct {
	Year       int       `json:"year"`
	Component  string    `json:"component"`
	Issue      Issue     `json:"issue"`
	Message    string    `json:"message,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Counter is safe for concurrent use.
type Counter struct {
	mu      sync.Mutex
	year    map[Issue]int64
	totals  map[Issue]int64
	entries []Entry
	dropped int64

	current atomic.Int64

	registry *prometheus.Registry
	issues   *prometheus.CounterVec
	flushes  prometheus.Counter

	logger   logging.Logger
	textfile string
	nowFn    func() time.Time
}

// Option configures a Counter.
type Option func(*Counter)

// WithLogger routes flush reports to the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Counter) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTextfile writes the Prometheus registry to path on every flush.
func WithTextfile(path string) Option {
	return func(c *Counter) { c.textfile = path }
}

// New constructs a counter with its own Prometheus registry.
func New(opts ...Option) *Counter {
	c := &Counter{
		year:     make(map[Issue]int64),
		totals:   make(map[Issue]int64),
		registry: prometheus.NewRegistry(),
		logger:   logging.Nop(),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	c.issues = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "landsim",
		Name:      "issues_total",
		Help:      "Data-quality issues recorded by engine components.",
	}, []string{"component", "issue"})
	c.flushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "landsim",
		Name:      "diagnostics_flushes_total",
		Help:      "Number of diagnostics flushes.",
	})
	c.registry.MustRegister(c.issues, c.flushes)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetYear stamps subsequent entries with the given simulated year.
func (c *Counter) SetYear(year int) { c.current.Store(int64(year)) }

// Increment counts one occurrence without a log entry.
func (c *Counter) Increment(component string, issue Issue) {
	c.issues.WithLabelValues(component, string(issue)).Inc()
	c.mu.Lock()
	c.year[issue]++
	c.totals[issue]++
	c.mu.Unlock()
}

// Record counts one occurrence and appends it to the event log.
func (c *Counter) Record(component string, issue Issue, message string) {
	c.issues.WithLabelValues(component, string(issue)).Inc()
	entry := Entry{
		Year:       int(c.current.Load()),
		Component:  component,
		Issue:      issue,
		Message:    message,
		RecordedAt: c.nowFn(),
	}
	c.mu.Lock()
	c.year[issue]++
	c.totals[issue]++
	if len(c.entries) < maxEntries {
		c.entries = append(c.entries, entry)
	} else {
		c.dropped++
	}
	c.mu.Unlock()
}

// Count returns the run total for an issue.
func (c *Counter) Count(issue Issue) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[issue]
}

// YearCount returns the count for an issue since the last flush.
func (c *Counter) YearCount(issue Issue) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.year[issue]
}

// Totals returns a copy of the run totals.
func (c *Counter) Totals() map[Issue]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyCounts(c.totals)
}

// Entries returns a copy of the event log.
func (c *Counter) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Registry exposes the Prometheus registry backing the counter.
func (c *Counter) Registry() *prometheus.Registry { return c.registry }

// Flush reports and resets the per-year counts. The returned map holds the
// counts accumulated since the previous flush.
func (c *Counter) Flush(year int) (map[Issue]int64, error) {
	c.mu.Lock()
	flushed := copyCounts(c.year)
	c.year = make(map[Issue]int64)
	dropped := c.dropped
	c.mu.Unlock()
	c.flushes.Inc()

	args := []any{"year", year}
	for _, issue := range sortedIssues(flushed) {
		args = append(args, string(issue), flushed[issue])
	}
	if dropped > 0 {
		args = append(args, "entries_dropped", dropped)
	}
	c.logger.Info("diagnostics", args...)

	if c.textfile != "" {
		if err := prometheus.WriteToTextfile(c.textfile, c.registry); err != nil {
			return flushed, err
		}
	}
	return flushed, nil
}

func copyCounts(in map[Issue]int64) map[Issue]int64 {
	out := make(map[Issue]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedIssues(counts map[Issue]int64) []Issue {
	out := make([]Issue, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
