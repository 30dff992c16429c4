package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"landsim/internal/blob/core"
)

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		key string
		ok  bool
	}{
		{"runs/a/2012.csv.zst", true},
		{"", false},
		{"/abs", false},
		{"../escape", false},
		{"a/../../b", false},
		{"x.meta", false},
	}
	for _, tc := range cases {
		_, err := sanitizeKey(tc.key)
		if (err == nil) != tc.ok {
			t.Errorf("sanitizeKey(%q) err=%v, want ok=%v", tc.key, err, tc.ok)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	payload := []byte("checkpoint bytes")
	info, err := store.Put(ctx, "runs/r1/checkpoint-2015.cbor", bytes.NewReader(payload), core.PutOptions{
		ContentType: "application/cbor",
		Metadata:    map[string]string{"year": "2015"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) || len(info.Digest) != 64 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "runs", "r1", "checkpoint-2015.cbor.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if _, err := store.Put(ctx, "runs/r1/checkpoint-2015.cbor", bytes.NewReader(payload), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "runs/r1/checkpoint-2015.cbor")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(body, payload) || got.Digest != info.Digest || got.Metadata["year"] != "2015" {
		t.Fatalf("unexpected get %+v %q", got, body)
	}

	head, err := store.Head(ctx, "runs/r1/checkpoint-2015.cbor")
	if err != nil || head.ContentType != "application/cbor" {
		t.Fatalf("head: %+v %v", head, err)
	}

	list, err := store.List(ctx, "runs/r1/")
	if err != nil || len(list) != 1 || list[0].Key != "runs/r1/checkpoint-2015.cbor" {
		t.Fatalf("list: %+v %v", list, err)
	}

	ok, err := store.Delete(ctx, "runs/r1/checkpoint-2015.cbor")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "runs/r1/checkpoint-2015.cbor"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if ok, err := store.Delete(ctx, "runs/r1/checkpoint-2015.cbor"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreMissingGet(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
