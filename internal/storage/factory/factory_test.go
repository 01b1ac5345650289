package factory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/configfile"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

func TestInferBackend(t *testing.T) {
	tests := map[string]string{
		"status.json":       configfile.BackendJSON,
		"/x/workstream.db":  configfile.BackendSQLite,
		"/x/state.SQLITE":   configfile.BackendSQLite,
		":memory:":          configfile.BackendSQLite,
		"no-extension-file": configfile.BackendJSON,
	}
	for path, want := range tests {
		if got := InferBackend(path); got != want {
			t.Errorf("InferBackend(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("postgres", "x"); err == nil {
		t.Error("New(postgres) succeeded, want error")
	}
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{configfile.BackendJSON, configfile.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			wsDir := t.TempDir()
			if err := configfile.DefaultConfig(backend).Save(wsDir); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			store, err := NewFromConfig(wsDir)
			if err != nil {
				t.Fatalf("NewFromConfig failed: %v", err)
			}
			defer store.Close()

			if _, err := store.List(ctx); !errors.Is(err, storage.ErrNotInitialized) {
				t.Errorf("List before Init = %v, want ErrNotInitialized", err)
			}
			if err := store.Init(ctx); err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			if err := store.Create(ctx, types.NewTicket("A")); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			want := filepath.Join(wsDir, configfile.DefaultConfig(backend).Store)
			if store.Path() != want {
				t.Errorf("Path() = %q, want %q", store.Path(), want)
			}
		})
	}
}
