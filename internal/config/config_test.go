package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "landsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Logging.Backend != "slog" {
		t.Errorf("expected slog backend, got %s", cfg.Logging.Backend)
	}
	if cfg.Pricing.MaxDelta != 0.05 {
		t.Errorf("expected max_delta 0.05, got %v", cfg.Pricing.MaxDelta)
	}
	if len(cfg.Employment.Male) != 6 || len(cfg.Employment.Female) != 6 {
		t.Errorf("expected six employment age groups")
	}
	// Defaults alone are incomplete: the population path is required.
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "population.path") {
		t.Errorf("expected population.path error, got %v", err)
	}
}

func TestLoadFileMergesAndExpands(t *testing.T) {
	t.Setenv("LANDSIM_DATA", "/data/run1")
	path := writeConfig(t, `
run:
  seed: 7
  start_year: 2020
  end_year: 2025
  scaling_years: [2022]
  output_years: [2021, 2023]
population:
  path: ${LANDSIM_DATA}/population.db
blob:
  backend: fs
  path: ${LANDSIM_OUT:-/tmp/landsim}
forecast:
  path: ${LANDSIM_DATA}/jobs.csv
  control_totals:
    2022: 1500
logging:
  backend: zap
  format: json
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.Seed != 7 || cfg.Run.StartYear != 2020 || cfg.Run.EndYear != 2025 {
		t.Errorf("unexpected run section %+v", cfg.Run)
	}
	if cfg.Population.Path != "/data/run1/population.db" {
		t.Errorf("expected expanded population path, got %s", cfg.Population.Path)
	}
	if cfg.Blob.Path != "/tmp/landsim" {
		t.Errorf("expected default expansion, got %s", cfg.Blob.Path)
	}
	if cfg.Forecast.ControlTotals[2022] != 1500 {
		t.Errorf("expected control total, got %v", cfg.Forecast.ControlTotals)
	}
	if cfg.Pricing.SlopeLow != -10 {
		t.Errorf("expected untouched defaults to survive, got %v", cfg.Pricing.SlopeLow)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Run.EndYear = cfg.Run.StartYear
	cfg.Population.Path = "pop.db"
	cfg.Blob.Backend = "s3"
	cfg.Stopper.Kind = "redis"
	cfg.Run.ScalingYears = []int{2030}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"run.end_year", "blob.bucket", "stopper.redis_addr", "scaling year 2030"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeConfig(t, "run: [unclosed")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
