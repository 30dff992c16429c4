package forecast

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"landsim/internal/config"
	"landsim/pkg/domain"
)

func key(zone int, typ string) domain.JobKey {
	return domain.JobKey{Zone: domain.ZoneID(zone), Type: typ}
}

func TestReadCSVSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")
	body := "year,zone,type,jobs\n" +
		"2015,1,retail,10\n" +
		"2015,2,office,5\n" +
		"2015,x,office,5\n" +
		"2015,3,,5\n" +
		"2015,4,retail,-2\n" +
		"2016,1,retail,12\n" +
		"2015,1,retail,11\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tbl.Skipped() != 3 {
		t.Fatalf("skipped = %d, want 3", tbl.Skipped())
	}
	got, _ := tbl.Targets(context.Background(), 2015)
	if len(got) != 2 || got[key(1, "retail")] != 11 || got[key(2, "office")] != 5 {
		t.Fatalf("targets 2015 = %v", got)
	}
	if years := tbl.Years(); len(years) != 2 || years[0] != 2015 || years[1] != 2016 {
		t.Fatalf("years = %v", years)
	}
	empty, err := tbl.Targets(context.Background(), 2030)
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing year should mean no change: %v %v", empty, err)
	}
}

func TestTargetsReturnsCopy(t *testing.T) {
	tbl := NewTable([]Row{{Year: 2015, Key: key(1, "retail"), Jobs: 3}})
	got, _ := tbl.Targets(context.Background(), 2015)
	got[key(1, "retail")] = 99
	again, _ := tbl.Targets(context.Background(), 2015)
	if again[key(1, "retail")] != 3 {
		t.Fatalf("table mutated through returned map")
	}
}

func TestParseRecordsRequiresHeader(t *testing.T) {
	if _, err := parseRecords(nil); err == nil {
		t.Fatalf("expected error for empty table")
	}
	if _, err := parseRecords([][]string{{"year", "zone", "jobs"}}); err == nil {
		t.Fatalf("expected error for missing type column")
	}
	tbl, err := parseRecords([][]string{{" Jobs ", "TYPE", "zone", "year"}, {"7", "office", "2", "2020"}})
	if err != nil {
		t.Fatalf("reordered header: %v", err)
	}
	got, _ := tbl.Targets(context.Background(), 2020)
	if got[key(2, "office")] != 7 {
		t.Fatalf("targets = %v", got)
	}
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.xlsx")
	f := excelize.NewFile()
	if _, err := f.NewSheet("Forecast"); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"year", "zone", "type", "jobs"},
		{2015, 1, "retail", 4},
		{2015, 2, "office", "n/a"},
	}
	for i, row := range rows {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue("Forecast", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	tbl, err := ReadXLSX(path, "Forecast")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, _ := tbl.Targets(context.Background(), 2015)
	if len(got) != 1 || got[key(1, "retail")] != 4 || tbl.Skipped() != 1 {
		t.Fatalf("targets = %v skipped = %d", got, tbl.Skipped())
	}
	if _, err := ReadXLSX(path, "Missing"); err == nil {
		t.Fatalf("expected error for missing sheet")
	}
}

func TestScale(t *testing.T) {
	cases := []struct {
		name    string
		targets map[domain.JobKey]int
		total   int
		want    map[domain.JobKey]int
	}{
		{
			name:    "exact",
			targets: map[domain.JobKey]int{key(1, "a"): 10, key(2, "a"): 30},
			total:   80,
			want:    map[domain.JobKey]int{key(1, "a"): 20, key(2, "a"): 60},
		},
		{
			name:    "largest remainder",
			targets: map[domain.JobKey]int{key(1, "a"): 1, key(2, "a"): 1, key(3, "a"): 1},
			total:   10,
			want:    map[domain.JobKey]int{key(1, "a"): 4, key(2, "a"): 3, key(3, "a"): 3},
		},
		{
			name:    "all zero unchanged",
			targets: map[domain.JobKey]int{key(1, "a"): 0},
			total:   5,
			want:    map[domain.JobKey]int{key(1, "a"): 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Scale(tc.targets, tc.total)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("got %v want %v", got, tc.want)
				}
			}
		})
	}
}

func TestOpen(t *testing.T) {
	tbl, err := Open(config.ForecastConfig{})
	if err != nil || tbl != nil {
		t.Fatalf("empty path should disable forecast: %v %v", tbl, err)
	}
	if _, err := Open(config.ForecastConfig{Path: "jobs.parquet"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if _, err := Open(config.ForecastConfig{Path: filepath.Join(t.TempDir(), "none.csv")}); err == nil {
		t.Fatalf("expected missing file error")
	}
}
