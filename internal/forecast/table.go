// Package forecast reads the exogenous job forecast: target job counts per
// (zone, job type) and year, from CSV or XLSX tables with the columns
// year, zone, type and jobs.
package forecast

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"landsim/internal/config"
	"landsim/pkg/domain"
)

var _ domain.Forecast = (*Table)(nil)

// Table is an in-memory forecast. Rows that cannot be parsed are skipped and
// counted; a key without a row means no change is requested.
type Table struct {
	byYear  map[int]map[domain.JobKey]int
	skipped int
}

// Row is one parsed forecast line.
type Row struct {
	Year int
	Key  domain.JobKey
	Jobs int
}

// NewTable indexes rows by year. A later row for the same year and key
// replaces an earlier one.
func NewTable(rows []Row) *Table {
	t := &Table{byYear: make(map[int]map[domain.JobKey]int)}
	for _, r := range rows {
		m, ok := t.byYear[r.Year]
		if !ok {
			m = make(map[domain.JobKey]int)
			t.byYear[r.Year] = m
		}
		m[r.Key] = r.Jobs
	}
	return t
}

// Targets returns a copy of the targets for year.
func (t *Table) Targets(_ context.Context, year int) (map[domain.JobKey]int, error) {
	src := t.byYear[year]
	out := make(map[domain.JobKey]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// Years returns the forecast years in ascending order.
func (t *Table) Years() []int {
	out := make([]int, 0, len(t.byYear))
	for y := range t.byYear {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// Skipped returns how many malformed rows were ignored.
func (t *Table) Skipped() int { return t.skipped }

var requiredColumns = []string{"year", "zone", "type", "jobs"}

// parseRecords builds a table from raw records whose first record is the
// header. A header missing a required column makes the whole table
// unreadable.
func parseRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("forecast: empty table")
	}
	cols := make(map[string]int)
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idx := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		c, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("forecast: missing column %q", name)
		}
		idx[i] = c
	}

	var rows []Row
	skipped := 0
	for _, rec := range records[1:] {
		row, ok := parseRow(rec, idx)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	t := NewTable(rows)
	t.skipped = skipped
	return t, nil
}

func parseRow(rec []string, idx []int) (Row, bool) {
	field := func(i int) (string, bool) {
		if idx[i] >= len(rec) {
			return "", false
		}
		v := strings.TrimSpace(rec[idx[i]])
		return v, v != ""
	}
	num := func(i int) (int, bool) {
		s, ok := field(i)
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != float64(int(f)) {
				return 0, false
			}
			n = int(f)
		}
		return n, true
	}
	year, ok := num(0)
	if !ok {
		return Row{}, false
	}
	zone, ok := num(1)
	if !ok || zone < 0 {
		return Row{}, false
	}
	typ, ok := field(2)
	if !ok {
		return Row{}, false
	}
	jobs, ok := num(3)
	if !ok || jobs < 0 {
		return Row{}, false
	}
	return Row{Year: year, Key: domain.JobKey{Zone: domain.ZoneID(zone), Type: typ}, Jobs: jobs}, true
}

// Open reads the forecast named in cfg. An empty path returns a nil
// forecast, which disables job reconciliation.
func Open(cfg config.ForecastConfig) (*Table, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".csv":
		return ReadCSV(cfg.Path)
	case ".xlsx":
		return ReadXLSX(cfg.Path, cfg.Sheet)
	default:
		return nil, fmt.Errorf("forecast: unsupported file type %q", filepath.Ext(cfg.Path))
	}
}
