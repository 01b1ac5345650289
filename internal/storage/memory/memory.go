// Package memory implements the storage backend using an in-memory document.
// It is used by tests and by callers that drive the scheduler without a
// workspace on disk.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Backend keeps the document in memory. Writes swap the document under a mutex.
type Backend struct {
	mu  sync.RWMutex
	doc *types.Document
}

// New returns an initialized, empty in-memory backend.
func New() *Backend {
	return &Backend{doc: types.NewDocument(time.Now())}
}

// NewUninitialized returns a backend that behaves like a missing store until Init.
func NewUninitialized() *Backend {
	return &Backend{}
}

// NewStore is a convenience returning a Store over a fresh in-memory backend.
func NewStore() *storage.Store {
	return storage.New(New())
}

// Load returns a deep copy of the document.
func (b *Backend) Load(ctx context.Context) (*types.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return nil, storage.ErrNotInitialized
	}
	return b.doc.Clone(), nil
}

// Transact runs fn on a copy and swaps it in on success.
func (b *Backend) Transact(ctx context.Context, fn func(doc *types.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return storage.ErrNotInitialized
	}
	working := b.doc.Clone()
	if err := fn(working); err != nil {
		return err
	}
	b.doc = working
	return nil
}

// Init installs doc when the backend is uninitialized.
func (b *Backend) Init(ctx context.Context, doc *types.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		b.doc = doc.Clone()
	}
	return nil
}

// Path returns "memory".
func (b *Backend) Path() string {
	return "memory"
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
