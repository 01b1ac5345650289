// Package factory opens a ticket store for a named backend.
package factory

import (
	"fmt"
	"strings"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/configfile"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/jsonfile"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/memory"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/sqlite"
)

// BackendMemory is accepted by New for callers that want a throwaway store.
const BackendMemory = "memory"

// New opens a store. The backend name comes from metadata.json or the
// "backend" config key; when empty it is inferred from the path extension.
func New(backend, path string) (*storage.Store, error) {
	if backend == "" {
		backend = InferBackend(path)
	}
	switch backend {
	case configfile.BackendJSON:
		b, err := jsonfile.New(path)
		if err != nil {
			return nil, err
		}
		return storage.New(b), nil
	case configfile.BackendSQLite:
		b, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return storage.New(b), nil
	case BackendMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: json, sqlite)", backend)
	}
}

// NewFromConfig opens the store described by wsDir/metadata.json, falling
// back to the JSON document when the workspace has no metadata yet.
func NewFromConfig(wsDir string) (*storage.Store, error) {
	cfg, err := configfile.Load(wsDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg == nil {
		cfg = configfile.DefaultConfig(configfile.BackendJSON)
	}
	return New(cfg.Backend, cfg.StorePath(wsDir))
}

// InferBackend picks sqlite for .db/.sqlite paths and json otherwise.
func InferBackend(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") || lower == ":memory:" {
		return configfile.BackendSQLite
	}
	return configfile.BackendJSON
}
