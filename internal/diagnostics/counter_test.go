package diagnostics

import (
	"encoding/json"
	"expvar"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterRecordAndFlush(t *testing.T) {
	c := New()
	c.SetYear(2012)
	c.Record("household", IssueFailedHouseholdSplit, "no vacant dwelling for person 7")
	c.Increment("jobmarket", IssueJobRemovalShortfall)
	c.Increment("jobmarket", IssueJobRemovalShortfall)

	if got := c.YearCount(IssueJobRemovalShortfall); got != 2 {
		t.Fatalf("year count = %d, want 2", got)
	}
	entries := c.Entries()
	if len(entries) != 1 || entries[0].Year != 2012 || entries[0].Component != "household" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	flushed, err := c.Flush(2012)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed[IssueFailedHouseholdSplit] != 1 || flushed[IssueJobRemovalShortfall] != 2 {
		t.Fatalf("unexpected flushed counts %v", flushed)
	}
	if got := c.YearCount(IssueJobRemovalShortfall); got != 0 {
		t.Fatalf("year count after flush = %d, want 0", got)
	}
	if got := c.Count(IssueJobRemovalShortfall); got != 2 {
		t.Fatalf("total = %d, want 2", got)
	}
	if got := testutil.ToFloat64(c.issues.WithLabelValues("jobmarket", string(IssueJobRemovalShortfall))); got != 2 {
		t.Fatalf("prometheus counter = %v, want 2", got)
	}
}

func TestCounterConcurrentIncrements(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Increment("jobmarket", IssueDanglingReference)
			}
		}()
	}
	wg.Wait()
	if got := c.Count(IssueDanglingReference); got != 8000 {
		t.Fatalf("total = %d, want 8000", got)
	}
}

func TestCounterTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "landsim.prom")
	c := New(WithTextfile(path))
	c.Increment("pricing", IssueIntegrityWarning)
	if _, err := c.Flush(2020); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `landsim_issues_total{component="pricing",issue="integrity_warning"} 1`) {
		t.Fatalf("textfile missing counter:\n%s", data)
	}
}

func TestCounterExpvar(t *testing.T) {
	c := New()
	c.SetYear(2030)
	c.Increment("events", IssueStaleEvent)
	name := c.PublishExpvar("")
	v := expvar.Get(name)
	if v == nil {
		t.Fatalf("expvar %s not published", name)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(v.String()), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Year != 2030 || snap.Totals[IssueStaleEvent] != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
