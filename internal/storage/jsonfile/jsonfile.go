// Package jsonfile implements the storage backend as a single JSON document
// (status.json). Every write replaces the file atomically and concurrent
// processes serialize through an advisory lock on "<path>.lock".
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/lockfile"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Backend stores the document at a file path.
type Backend struct {
	mu   sync.Mutex
	path string
}

// New returns a backend for path. The file does not have to exist yet.
func New(path string) (*Backend, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return &Backend{path: abs}, nil
}

// Path returns the absolute document path.
func (b *Backend) Path() string {
	return b.path
}

// LockPath returns the sidecar lock file path.
func (b *Backend) LockPath() string {
	return b.path + ".lock"
}

// Close is a no-op; the backend holds no open handles between calls.
func (b *Backend) Close() error {
	return nil
}

// Load reads and decodes the document.
func (b *Backend) Load(ctx context.Context) (*types.Document, error) {
	// #nosec G304 - path is the configured store location
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotInitialized, b.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	return storage.Decode(data)
}

// Transact holds both the in-process mutex and the file lock for the whole
// read-modify-write cycle.
func (b *Backend) Transact(ctx context.Context, fn func(doc *types.Document) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, err := lockfile.Acquire(ctx, b.LockPath())
	if err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	doc, err := b.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return b.write(doc)
}

// Init writes doc unless a store file already exists.
func (b *Backend) Init(ctx context.Context, doc *types.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	lock, err := lockfile.Acquire(ctx, b.LockPath())
	if err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(b.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat store: %w", err)
	}
	return b.write(doc)
}

// write replaces the document via temp file, fsync and rename so readers
// never observe a partial file.
func (b *Backend) write(doc *types.Document) error {
	data, err := storage.Encode(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set store permissions: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Best effort: not every
// platform supports fsync on directories.
func syncDir(dir string) {
	// #nosec G304 - directory of the store
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
