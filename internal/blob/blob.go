// Package blob is the single entry point to blob storage. Engine packages
// depend on the Store interface re-exported here and never import the
// infra backends directly.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"landsim/internal/blob/core"
	"landsim/internal/config"
	infraFS "landsim/internal/infra/blob/fs"
	infraMemory "landsim/internal/infra/blob/memory"
	infraS3 "landsim/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Open builds the store selected by cfg. A non-empty Prefix scopes every
// key under it.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch Driver(cfg.Backend) {
	case DriverFilesystem:
		store, err = infraFS.New(cfg.Path)
	case DriverS3:
		store, err = infraS3.New(ctx, infraS3.Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	case DriverMemory, "":
		store = infraMemory.New()
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Backend, err)
	}
	if cfg.Prefix != "" {
		store = WithPrefix(store, cfg.Prefix)
	}
	return store, nil
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return infraMemory.New() }

// NewMockS3ForTests returns an S3 store backed by an in-process fake.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

type prefixed struct {
	Store
	prefix string
}

// WithPrefix scopes all keys of s under prefix. Returned Info keys are
// relative to the prefix.
func WithPrefix(s Store, prefix string) Store {
	return &prefixed{Store: s, prefix: strings.Trim(prefix, "/") + "/"}
}

func (p *prefixed) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	info, err := p.Store.Put(ctx, p.prefix+key, r, opts)
	return p.strip(info), err
}

func (p *prefixed) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, rc, err := p.Store.Get(ctx, p.prefix+key)
	return p.strip(info), rc, err
}

func (p *prefixed) Head(ctx context.Context, key string) (Info, error) {
	info, err := p.Store.Head(ctx, p.prefix+key)
	return p.strip(info), err
}

func (p *prefixed) Delete(ctx context.Context, key string) (bool, error) {
	return p.Store.Delete(ctx, p.prefix+key)
}

func (p *prefixed) List(ctx context.Context, prefix string) ([]Info, error) {
	infos, err := p.Store.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i] = p.strip(infos[i])
	}
	return infos, nil
}

func (p *prefixed) strip(info Info) Info {
	info.Key = strings.TrimPrefix(info.Key, p.prefix)
	return info
}

// Key joins key segments with slashes.
func Key(parts ...string) string { return path.Join(parts...) }

// PutBytes writes data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	return s.Put(ctx, key, bytes.NewReader(data), opts)
}

// GetBytes reads the whole blob at key.
func GetBytes(ctx context.Context, s Store, key string) (Info, []byte, error) {
	info, rc, err := s.Get(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return info, data, nil
}
