package stopper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"landsim/internal/config"
)

func TestFileStopper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "STOP")
	s := File{Path: path}
	stop, err := s.ShouldStop(context.Background(), 2015)
	if err != nil || stop {
		t.Fatalf("stop before file exists: %v %v", stop, err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	stop, err = s.ShouldStop(context.Background(), 2015)
	if err != nil || !stop {
		t.Fatalf("expected stop once file exists: %v %v", stop, err)
	}
}

func TestRedisStopper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(client, "landsim:stop")
	defer s.Close()
	ctx := context.Background()

	stop, err := s.ShouldStop(ctx, 2015)
	if err != nil || stop {
		t.Fatalf("missing key: %v %v", stop, err)
	}

	cases := []struct {
		value string
		year  int
		want  bool
	}{
		{"true", 2015, true},
		{"0", 2015, false},
		{"1", 2015, true},
		{"no", 2015, false},
		{"2020", 2015, false},
		{"2020", 2020, true},
	}
	for _, tc := range cases {
		if err := mr.Set("landsim:stop", tc.value); err != nil {
			t.Fatal(err)
		}
		got, err := s.ShouldStop(ctx, tc.year)
		if err != nil {
			t.Fatalf("value %q: %v", tc.value, err)
		}
		if got != tc.want {
			t.Errorf("value %q year %d: got %v want %v", tc.value, tc.year, got, tc.want)
		}
	}

	mr.Close()
	if _, err := s.ShouldStop(ctx, 2015); err == nil {
		t.Fatalf("expected error once redis is gone")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, closeFn, err := Open(ctx, config.StopperConfig{Kind: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(None); !ok {
		t.Fatalf("got %T", s)
	}
	_ = closeFn()

	mr := miniredis.RunT(t)
	s, closeFn, err = Open(ctx, config.StopperConfig{Kind: "redis", RedisAddr: mr.Addr(), RedisKey: "k"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	if _, ok := s.(*Redis); !ok {
		t.Fatalf("got %T", s)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, _, err := Open(ctx, config.StopperConfig{Kind: "semaphore"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
