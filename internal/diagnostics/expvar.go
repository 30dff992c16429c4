package diagnostics

import (
	"expvar"
	"fmt"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// Snapshot captures a read-only view of the counter.
type Snapshot struct {
	Year       int             `json:"year"`
	Totals     map[Issue]int64 `json:"totals"`
	Entries    int             `json:"entries"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Snapshot returns an immutable copy of the aggregated counts.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Year:       int(c.current.Load()),
		Totals:     copyCounts(c.totals),
		Entries:    len(c.entries),
		RecordedAt: c.nowFn(),
	}
}

// PublishExpvar exposes the counter snapshot under name for process-local
// inspection. When name is empty a unique identifier is generated. The
// published name is returned.
func (c *Counter) PublishExpvar(name string) string {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("landsim_diagnostics_%d", id)
	}
	expvar.Publish(name, expvar.Func(func() any {
		return c.Snapshot()
	}))
	return name
}
