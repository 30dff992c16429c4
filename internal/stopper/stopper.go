// Package stopper implements model stoppers: external signals, checked once
// per simulated year, that end a run gracefully before the next year starts.
package stopper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"landsim/internal/config"
)

// Stopper reports whether the run should stop before simulating year.
type Stopper interface {
	ShouldStop(ctx context.Context, year int) (bool, error)
}

// None never stops.
type None struct{}

func (None) ShouldStop(context.Context, int) (bool, error) { return false, nil }

// File stops once a file exists at Path. Operators create it with touch.
type File struct {
	Path string
}

func (f File) ShouldStop(context.Context, int) (bool, error) {
	_, err := os.Stat(f.Path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat stop file: %w", err)
	}
}

// Redis stops when Key holds a truthy value, or a year number not later
// than the year about to start.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) ShouldStop(ctx context.Context, year int) (bool, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read stop key %s: %w", r.key, err)
	}
	return truthy(val, year), nil
}

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }

func truthy(val string, year int) bool {
	val = strings.TrimSpace(strings.ToLower(val))
	if n, err := strconv.Atoi(val); err == nil {
		if n >= 1000 {
			return year >= n
		}
		return n != 0
	}
	switch val {
	case "true", "yes", "stop":
		return true
	}
	return false
}

// Open builds the stopper selected by cfg. The returned close function is
// never nil.
func Open(ctx context.Context, cfg config.StopperConfig) (Stopper, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Kind {
	case "", "none":
		return None{}, nop, nil
	case "file":
		return File{Path: cfg.Path}, nop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nop, fmt.Errorf("connect stopper redis: %w", err)
		}
		r := NewRedis(client, cfg.RedisKey)
		return r, r.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown stopper kind %q", cfg.Kind)
	}
}
