// Package storage defines the ticket store: a single-writer document of
// tickets whose dependency invariants are enforced on every mutation.
//
// The Store implements every operation once on top of a Backend, which only
// knows how to load and atomically replace the whole document.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/graph"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Backend persists a whole document.
type Backend interface {
	// Load returns a private copy of the stored document, or ErrNotInitialized.
	Load(ctx context.Context) (*types.Document, error)
	// Transact loads the document under the backend's write lock, calls fn with
	// a private copy and persists it atomically if fn returns nil.
	Transact(ctx context.Context, fn func(doc *types.Document) error) error
	// Init writes doc if no store exists yet. An existing store is left as is.
	Init(ctx context.Context, doc *types.Document) error
	// Path identifies the store location (file path, DSN or "memory").
	Path() string
	Close() error
}

// Store is the ticket store. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	backend Backend

	clockMu sync.RWMutex
	now     func() time.Time
}

// New wraps a backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// SetClock overrides the time source used for metadata and approval stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = now
}

// Now returns the store clock's current time in UTC, truncated to seconds.
func (s *Store) Now() time.Time {
	s.clockMu.RLock()
	now := s.now
	s.clockMu.RUnlock()
	return now().UTC().Truncate(time.Second)
}

// Path returns the backend location.
func (s *Store) Path() string {
	return s.backend.Path()
}

// Close releases backend resources.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Init creates an empty store if none exists.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Init(ctx, types.NewDocument(s.Now()))
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot(ctx context.Context) (*types.Document, error) {
	return s.backend.Load(ctx)
}

// Get returns a copy of one ticket.
func (s *Store) Get(ctx context.Context, id string) (*types.Ticket, error) {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := doc.Tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// List returns every ticket ordered by phase, then id.
func (s *Store) List(ctx context.Context) ([]*types.Ticket, error) {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.List(), nil
}

// Create adds one ticket.
func (s *Store) Create(ctx context.Context, t *types.Ticket) error {
	return s.CreateBatch(ctx, []*types.Ticket{t})
}

// CreateBatch adds tickets atomically. Predecessors may refer to tickets
// already stored or to other tickets in the same batch. Either every ticket is
// created or the store is unchanged.
func (s *Store) CreateBatch(ctx context.Context, tickets []*types.Ticket) error {
	return s.transact(ctx, func(doc *types.Document) error {
		batch := make(map[string]*types.Ticket, len(tickets))
		for _, in := range tickets {
			t := in.Clone()
			t.SetDefaults()
			t.BlockedBy = uniqueSorted(t.BlockedBy)
			if err := t.Validate(); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidValue, t.ID, err)
			}
			if _, exists := doc.Tickets[t.ID]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
			}
			if _, exists := batch[t.ID]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
			}
			batch[t.ID] = t
		}

		for _, t := range batch {
			for _, dep := range t.BlockedBy {
				_, stored := doc.Tickets[dep]
				_, batched := batch[dep]
				if !stored && !batched {
					return fmt.Errorf("%w: %s (blocked_by of %s)", ErrNotFound, dep, t.ID)
				}
			}
		}

		for id, t := range batch {
			doc.Tickets[id] = t
		}
		if cycle := graph.DetectCycle(doc.Edges()); cycle != nil {
			return &CycleError{Path: cycle}
		}
		for _, t := range batch {
			if err := checkClaim(doc, nil, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddDependency records that id is blocked by dependsOn. Adding an edge that
// already exists is a no-op; an edge that would close a cycle is rejected and
// the store is left unchanged.
func (s *Store) AddDependency(ctx context.Context, id, dependsOn string) error {
	return s.transact(ctx, func(doc *types.Document) error {
		t, ok := doc.Tickets[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if _, ok := doc.Tickets[dependsOn]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, dependsOn)
		}
		if id == dependsOn {
			return &CycleError{Path: []string{id, id}}
		}
		if t.HasPredecessor(dependsOn) {
			return errNoChange
		}

		edges := graph.Edges(doc.Edges())
		edges[id] = append(edges[id], dependsOn)
		if cycle := graph.DetectCycle(edges); cycle != nil {
			return &CycleError{Path: cycle}
		}

		t.BlockedBy = uniqueSorted(append(t.BlockedBy, dependsOn))
		return nil
	})
}

// Update sets a single field addressed by a dotted path (e.g. "build.status").
// Derived and identity fields are read-only.
func (s *Store) Update(ctx context.Context, id, fieldPath, value string) error {
	return s.Apply(ctx, id, func(t *types.Ticket) error {
		return SetField(t, fieldPath, value)
	})
}

// Apply runs fn against ticket id inside one transaction and commits the
// result if every invariant still holds. fn may change several fields at once;
// derived fields it touches are rejected.
func (s *Store) Apply(ctx context.Context, id string, fn func(t *types.Ticket) error) error {
	return s.apply(ctx, id, false, fn)
}

// ResetRetries zeroes build.retry_count. It is the only path that may lower it.
func (s *Store) ResetRetries(ctx context.Context, id string) error {
	return s.apply(ctx, id, true, func(t *types.Ticket) error {
		t.Build.RetryCount = 0
		return nil
	})
}

func (s *Store) apply(ctx context.Context, id string, allowRetryReset bool, fn func(t *types.Ticket) error) error {
	return s.transact(ctx, func(doc *types.Document) error {
		before, ok := doc.Tickets[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		after := before.Clone()
		if err := fn(after); err != nil {
			return err
		}
		if err := checkTransition(doc, before, after, allowRetryReset); err != nil {
			return err
		}
		doc.Tickets[id] = after
		return nil
	})
}

// transact serializes mutations in-process and refreshes derived state before
// the backend commits.
func (s *Store) transact(ctx context.Context, fn func(doc *types.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.Transact(ctx, func(doc *types.Document) error {
		if err := fn(doc); err != nil {
			return err
		}
		Refresh(doc)
		doc.Metadata.UpdatedAt = s.Now()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// Refresh recomputes every derived field: phases and the blocks transpose.
func Refresh(doc *types.Document) {
	edges := graph.Edges(doc.Edges())
	phases := graph.ComputePhases(edges)
	blocks := graph.Transpose(edges)
	for id, t := range doc.Tickets {
		t.Phase = phases[id]
		t.Blocks = blocks[id]
		t.BlockedBy = uniqueSorted(t.BlockedBy)
	}
}

func checkTransition(doc *types.Document, before, after *types.Ticket, allowRetryReset bool) error {
	if after.ID != before.ID {
		return fmt.Errorf("%w: id is read-only", ErrInvalidField)
	}
	if after.Phase != before.Phase {
		return fmt.Errorf("%w: phase is derived", ErrInvalidField)
	}
	if !sameSet(after.BlockedBy, before.BlockedBy) {
		return fmt.Errorf("%w: blocked_by changes only through AddDependency", ErrInvalidField)
	}
	if !sameSet(after.Blocks, before.Blocks) {
		return fmt.Errorf("%w: blocks is derived", ErrInvalidField)
	}
	if err := after.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, after.ID, err)
	}
	if after.Build.RetryCount < before.Build.RetryCount && !allowRetryReset {
		return fmt.Errorf("%w: %s: %d -> %d", ErrRetryDecrease, after.ID, before.Build.RetryCount, after.Build.RetryCount)
	}
	return checkClaim(doc, before, after)
}

// checkClaim enforces that a build may only enter in_progress once every
// predecessor is completed.
func checkClaim(doc *types.Document, before, after *types.Ticket) error {
	if after.Build.Status != types.BuildInProgress {
		return nil
	}
	if before != nil && before.Build.Status == types.BuildInProgress {
		return nil
	}
	var waiting []string
	for _, dep := range after.BlockedBy {
		if p, ok := doc.Tickets[dep]; !ok || p.Build.Status != types.BuildCompleted {
			waiting = append(waiting, dep)
		}
	}
	if len(waiting) > 0 {
		return fmt.Errorf("%w: %s waits on %v", ErrPredecessorsIncomplete, after.ID, waiting)
	}
	return nil
}

// Decode parses a JSON document, rejecting incompatible schema versions.
func Decode(data []byte) (*types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}
	if doc.Version != "" {
		if err := types.CheckVersion(doc.Version); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncompatibleVersion, err)
		}
	}
	doc.Normalize()
	return &doc, nil
}

// Encode renders a document as indented JSON with a trailing newline.
func Encode(doc *types.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode store: %w", err)
	}
	return append(data, '\n'), nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	a, b = uniqueSorted(a), uniqueSorted(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
