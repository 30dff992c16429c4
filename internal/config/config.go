// Package config loads the run configuration of the simulation engine.
//
// Configuration is read from a single YAML file named on the command line.
// There is no discovery and no fallback file; values absent from the file
// keep the defaults from Default. Path-like fields support ${VAR} and
// ${VAR:-default} expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is the complete run configuration.
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Logging     LoggingConfig     `yaml:"logging"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Employment  EmploymentConfig  `yaml:"employment"`
	Population  PopulationConfig  `yaml:"population"`
	Output      OutputConfig      `yaml:"output"`
	Blob        BlobConfig        `yaml:"blob"`
	Skim        SkimConfig        `yaml:"skim"`
	Forecast    ForecastConfig    `yaml:"forecast"`
	Stopper     StopperConfig     `yaml:"stopper"`
	Notify      NotifyConfig      `yaml:"notify"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Report      ReportConfig      `yaml:"report"`
}

// RunConfig controls the simulated period and the engine.
type RunConfig struct {
	// ID names the run in snapshots, exports and checkpoints. A random
	// identifier is generated when empty.
	ID string `yaml:"id"`
	// Seed feeds the single sequential generator and all per-task generators.
	Seed      uint64 `yaml:"seed"`
	StartYear int    `yaml:"start_year"`
	EndYear   int    `yaml:"end_year"`
	// ScalingYears are the years in which forecast targets are rescaled
	// to the control totals.
	ScalingYears []int `yaml:"scaling_years"`
	// OutputYears are the years after which a population snapshot is
	// written. The final year is always written.
	OutputYears []int `yaml:"output_years"`
	// Workers bounds the job reconciliation pool; zero uses GOMAXPROCS.
	Workers         int      `yaml:"workers"`
	DisabledModels  []string `yaml:"disabled_models"`
	AuditHouseholds []int    `yaml:"audit_households"`
}

// LoggingConfig selects the logging backend.
type LoggingConfig struct {
	// Backend is slog or zap.
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	// Format is text or json.
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

// PricingConfig holds the shared curve parameters and the structural
// vacancy rate per dwelling type.
type PricingConfig struct {
	StructuralVacancy map[string]float64 `yaml:"structural_vacancy"`
	InflectionLow     float64            `yaml:"inflection_low"`
	InflectionHigh    float64            `yaml:"inflection_high"`
	SlopeLow          float64            `yaml:"slope_low"`
	SlopeMain         float64            `yaml:"slope_main"`
	SlopeHigh         float64            `yaml:"slope_high"`
	MaxDelta          float64            `yaml:"max_delta"`
}

// EmploymentConfig holds target participation shares per age group.
type EmploymentConfig struct {
	Male   []float64 `yaml:"male"`
	Female []float64 `yaml:"female"`
}

// PopulationConfig names the store the initial population is read from.
type PopulationConfig struct {
	// Driver is sqlite.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	// Year is the snapshot year to load; zero loads the latest.
	Year int `yaml:"year"`
}

// OutputConfig lists the snapshot writers.
type OutputConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	// CSV enables compressed CSV exports to the blob store.
	CSV         bool   `yaml:"csv"`
	Compression string `yaml:"compression"`
}

// BlobConfig selects the blob store for exports and checkpoints.
type BlobConfig struct {
	// Backend is fs, memory or s3.
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`

	// PathStyle addresses the bucket in the path, as MinIO expects.
	PathStyle bool `yaml:"path_style"`
}

// SkimConfig selects the travel time provider.
type SkimConfig struct {
	// Source is static, sqlite or http.
	Source         string  `yaml:"source"`
	Path           string  `yaml:"path"`
	URL            string  `yaml:"url"`
	DefaultSeconds float64 `yaml:"default_seconds"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ForecastConfig names the job forecast table.
type ForecastConfig struct {
	// Path is a .csv or .xlsx file; empty disables reconciliation.
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
	// ControlTotals maps a scaling year to the regional job total.
	ControlTotals map[int]int `yaml:"control_totals"`
}

// StopperConfig selects the model stopper.
type StopperConfig struct {
	// Kind is none, file or redis.
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// NotifyConfig selects the year-complete notifier.
type NotifyConfig struct {
	// Kind is none or mqtt.
	Kind     string `yaml:"kind"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// DiagnosticsConfig configures the issue counter exports.
type DiagnosticsConfig struct {
	Textfile string `yaml:"textfile"`
	Expvar   string `yaml:"expvar"`
}

// CheckpointConfig controls the checkpoint written when a run is stopped.
type CheckpointConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

// ReportConfig names the yearly summary workbook.
type ReportConfig struct {
	XLSXPath string `yaml:"xlsx_path"`
}

// Default returns the configuration used as a base before the file is read.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Seed:      42,
			StartYear: 2011,
			EndYear:   2012,
		},
		Logging: LoggingConfig{
			Backend: "slog",
			Level:   "info",
			Format:  "text",
			Service: "landsim",
		},
		Pricing: PricingConfig{
			StructuralVacancy: map[string]float64{
				"SFD":     0.03,
				"SFA":     0.03,
				"MF234":   0.05,
				"MF5plus": 0.05,
				"MH":      0.04,
			},
			InflectionLow:  0.5,
			InflectionHigh: 1.5,
			SlopeLow:       -10,
			SlopeMain:      -1,
			SlopeHigh:      -0.5,
			MaxDelta:       0.05,
		},
		Employment: EmploymentConfig{
			Male:   []float64{0.55, 0.85, 0.88, 0.86, 0.70, 0.10},
			Female: []float64{0.50, 0.76, 0.79, 0.77, 0.60, 0.07},
		},
		Population: PopulationConfig{Driver: "sqlite"},
		Output:     OutputConfig{Compression: "zstd"},
		Blob:       BlobConfig{Backend: "memory"},
		Skim:       SkimConfig{Source: "static", DefaultSeconds: 1800, TimeoutSeconds: 10},
		Stopper:    StopperConfig{Kind: "none", RedisKey: "landsim:stop"},
		Notify:     NotifyConfig{Kind: "none", Topic: "landsim/years", ClientID: "landsim"},
		Checkpoint: CheckpointConfig{Compression: "zstd"},
	}
}

// LoadFile reads the configuration file at path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Population.Path = expandVars(c.Population.Path)
	c.Output.SQLitePath = expandVars(c.Output.SQLitePath)
	c.Output.PostgresDSN = expandVars(c.Output.PostgresDSN)
	c.Blob.Path = expandVars(c.Blob.Path)
	c.Blob.Bucket = expandVars(c.Blob.Bucket)
	c.Blob.Endpoint = expandVars(c.Blob.Endpoint)
	c.Skim.Path = expandVars(c.Skim.Path)
	c.Skim.URL = expandVars(c.Skim.URL)
	c.Forecast.Path = expandVars(c.Forecast.Path)
	c.Stopper.Path = expandVars(c.Stopper.Path)
	c.Stopper.RedisAddr = expandVars(c.Stopper.RedisAddr)
	c.Notify.Broker = expandVars(c.Notify.Broker)
	c.Diagnostics.Textfile = expandVars(c.Diagnostics.Textfile)
	c.Report.XLSXPath = expandVars(c.Report.XLSXPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error

	if c.Run.EndYear <= c.Run.StartYear {
		errs = append(errs, fmt.Errorf("run.end_year (%d) must be after run.start_year (%d)", c.Run.EndYear, c.Run.StartYear))
	}
	if c.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("run.workers must not be negative"))
	}
	if !slices.Contains([]string{"slog", "zap"}, c.Logging.Backend) {
		errs = append(errs, fmt.Errorf("logging.backend must be one of: slog, zap"))
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: text, json"))
	}
	for typ, sv := range c.Pricing.StructuralVacancy {
		if sv <= 0 || sv >= 1 {
			errs = append(errs, fmt.Errorf("pricing.structural_vacancy.%s must be in (0,1)", typ))
		}
	}
	if c.Pricing.MaxDelta <= 0 || c.Pricing.MaxDelta >= 1 {
		errs = append(errs, fmt.Errorf("pricing.max_delta must be in (0,1)"))
	}
	if c.Population.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("population.driver must be sqlite"))
	}
	if c.Population.Path == "" {
		errs = append(errs, fmt.Errorf("population.path is required"))
	}
	compressions := []string{"none", "zstd", "lz4"}
	if !slices.Contains(compressions, c.Output.Compression) {
		errs = append(errs, fmt.Errorf("output.compression must be one of: %v", compressions))
	}
	if !slices.Contains(compressions, c.Checkpoint.Compression) {
		errs = append(errs, fmt.Errorf("checkpoint.compression must be one of: %v", compressions))
	}
	switch c.Blob.Backend {
	case "memory":
	case "fs":
		if c.Blob.Path == "" {
			errs = append(errs, fmt.Errorf("blob.path is required for the fs backend"))
		}
	case "s3":
		if c.Blob.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.backend must be one of: fs, memory, s3"))
	}
	switch c.Skim.Source {
	case "static":
	case "sqlite":
		if c.Skim.Path == "" {
			errs = append(errs, fmt.Errorf("skim.path is required for the sqlite source"))
		}
	case "http":
		if c.Skim.URL == "" {
			errs = append(errs, fmt.Errorf("skim.url is required for the http source"))
		}
	default:
		errs = append(errs, fmt.Errorf("skim.source must be one of: static, sqlite, http"))
	}
	for _, year := range c.Run.ScalingYears {
		if _, ok := c.Forecast.ControlTotals[year]; !ok {
			errs = append(errs, fmt.Errorf("forecast.control_totals has no entry for scaling year %d", year))
		}
	}
	switch c.Stopper.Kind {
	case "none":
	case "file":
		if c.Stopper.Path == "" {
			errs = append(errs, fmt.Errorf("stopper.path is required for the file stopper"))
		}
	case "redis":
		if c.Stopper.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("stopper.redis_addr is required for the redis stopper"))
		}
	default:
		errs = append(errs, fmt.Errorf("stopper.kind must be one of: none, file, redis"))
	}
	switch c.Notify.Kind {
	case "none":
	case "mqtt":
		if c.Notify.Broker == "" {
			errs = append(errs, fmt.Errorf("notify.broker is required for mqtt"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.kind must be one of: none, mqtt"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
