// Package report builds the yearly summary workbook of a run.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/xuri/excelize/v2"

	"landsim/pkg/domain"
)

const (
	summarySheet     = "Summary"
	diagnosticsSheet = "Diagnostics"
)

// Row is one simulated year.
type Row struct {
	Year            int
	Households      int
	Persons         int
	Employed        int
	Dwellings       int
	VacantDwellings int
	Jobs            int
	VacantJobs      int
	AveragePrice    map[domain.DwellingType]float64
	Issues          map[string]int64
	Fingerprint     string
}

// Summarize counts a population into a report row.
func Summarize(year int, pop domain.Population) Row {
	r := Row{
		Year:       year,
		Households: len(pop.Households),
		Persons:    len(pop.Persons),
		Dwellings:  len(pop.Dwellings),
		Jobs:       len(pop.Jobs),
	}
	for _, p := range pop.Persons {
		if p.Employed() {
			r.Employed++
		}
	}
	for _, d := range pop.Dwellings {
		if d.Vacant() {
			r.VacantDwellings++
		}
	}
	for _, j := range pop.Jobs {
		if j.Vacant() {
			r.VacantJobs++
		}
	}
	return r
}

// Workbook accumulates rows and renders them as an xlsx file with a
// summary sheet and a diagnostics sheet.
type Workbook struct {
	rows []Row
}

// New returns an empty workbook.
func New() *Workbook { return &Workbook{} }

// Add appends a year.
func (w *Workbook) Add(r Row) { w.rows = append(w.rows, r) }

// Rows returns the accumulated rows.
func (w *Workbook) Rows() []Row { return append([]Row(nil), w.rows...) }

var baseHeader = []string{
	"Year",
	"Households",
	"Persons",
	"Employed",
	"Dwellings",
	"Vacant Dwellings",
	"Jobs",
	"Vacant Jobs",
}

// WriteTo renders the workbook.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	f, err := w.build()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.WriteTo(out)
}

// Save renders the workbook to path, replacing any existing file.
func (w *Workbook) Save(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if _, err := w.WriteTo(out); err != nil {
		_ = out.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return out.Close()
}

func (w *Workbook) build() (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(diagnosticsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	types := w.priceTypes()
	header := append([]string(nil), baseHeader...)
	for _, typ := range types {
		header = append(header, "Avg Price "+string(typ))
	}
	header = append(header, "Fingerprint")
	if err := writeRow(f, summarySheet, 1, toAny(header), headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	for i, r := range w.rows {
		values := []any{r.Year, r.Households, r.Persons, r.Employed, r.Dwellings, r.VacantDwellings, r.Jobs, r.VacantJobs}
		for _, typ := range types {
			if avg, ok := r.AveragePrice[typ]; ok {
				values = append(values, avg)
			} else {
				values = append(values, "")
			}
		}
		values = append(values, r.Fingerprint)
		if err := writeRow(f, summarySheet, i+2, values, 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.SetPanes(summarySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	if err := writeRow(f, diagnosticsSheet, 1, []any{"Year", "Issue", "Count"}, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	line := 2
	for _, r := range w.rows {
		issues := make([]string, 0, len(r.Issues))
		for issue := range r.Issues {
			issues = append(issues, issue)
		}
		sort.Strings(issues)
		for _, issue := range issues {
			if err := writeRow(f, diagnosticsSheet, line, []any{r.Year, issue, r.Issues[issue]}, 0); err != nil {
				f.Close()
				return nil, err
			}
			line++
		}
	}
	return f, nil
}

// priceTypes returns the dwelling types priced in any row, in reporting order.
func (w *Workbook) priceTypes() []domain.DwellingType {
	seen := make(map[domain.DwellingType]bool)
	for _, r := range w.rows {
		for typ := range r.AveragePrice {
			seen[typ] = true
		}
	}
	var out []domain.DwellingType
	for _, typ := range domain.DwellingTypes() {
		if seen[typ] {
			out = append(out, typ)
			delete(seen, typ)
		}
	}
	var extra []domain.DwellingType
	for typ := range seen {
		extra = append(extra, typ)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func writeRow(f *excelize.File, sheet string, row int, values []any, style int) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return fmt.Errorf("style cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
