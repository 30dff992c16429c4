package skim

import (
	"context"
	"fmt"
	"time"

	"landsim/internal/config"
	"landsim/internal/logging"
	"landsim/pkg/domain"
)

// Open builds the provider selected by cfg.
func Open(ctx context.Context, cfg config.SkimConfig, logger logging.Logger) (domain.TravelTimes, error) {
	switch cfg.Source {
	case "", "static":
		return NewMatrix(cfg.DefaultSeconds), nil
	case "sqlite":
		return LoadSQLite(ctx, cfg.Path, cfg.DefaultSeconds)
	case "http":
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		return NewHTTPProvider(cfg.URL, timeout, cfg.DefaultSeconds, logger), nil
	default:
		return nil, fmt.Errorf("unknown skim source %q", cfg.Source)
	}
}
