// Package sqlite implements the storage backend using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the SQLite WASM build
	"github.com/tetratelabs/wazero"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Backend stores the ticket document in SQLite tables. A transaction reads
// the whole document and rewrites it inside one BEGIN IMMEDIATE block.
type Backend struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// setupWASMCache configures WASM compilation caching to reduce SQLite startup time.
// Returns the cache directory path (empty string if using in-memory cache).
//
// The cache lives under os.UserCacheDir()/ws/wasm and is keyed by the wazero
// version; a failed directory setup falls back to an in-memory cache.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "ws", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// memoryDBCounter gives every ":memory:" backend its own shared-cache name so
// independent stores in one process never see each other's rows.
var memoryDBCounter atomic.Int64

// New opens (creating if needed) a SQLite backend at path. ":memory:" opens a
// private in-memory database.
func New(path string) (*Backend, error) {
	var connStr string
	switch {
	case path == ":memory:":
		// WAL does not work with in-memory databases, so use DELETE mode
		name := fmt.Sprintf("wsmem%d", memoryDBCounter.Add(1))
		connStr = "file:" + name + "?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are isolated per connection; pin to one.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Verify schema compatibility after migrations; retry migrations once.
	if err := verifySchemaCompatibility(db); err != nil {
		if retryErr := RunMigrations(db); retryErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration retry failed after schema probe failure: %w (original: %v)", retryErr, err)
		}
		if err := verifySchemaCompatibility(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("schema probe failed after migration retry: %w. Database may be corrupted or from an incompatible version", err)
		}
	}

	absPath := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		absPath, err = filepath.Abs(path)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	return &Backend{db: db, dbPath: absPath}, nil
}

// Path returns the database path.
func (b *Backend) Path() string {
	return b.dbPath
}

// Close closes the database. Calling it twice is safe.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// Load reads the whole document.
func (b *Backend) Load(ctx context.Context) (*types.Document, error) {
	return loadDocument(ctx, b.db)
}

// Init writes doc unless the database already holds a document.
func (b *Backend) Init(ctx context.Context, doc *types.Document) error {
	return b.withImmediate(ctx, func(conn *sql.Conn) error {
		exists, err := hasDocument(ctx, conn)
		if err != nil || exists {
			return err
		}
		return writeDocument(ctx, conn, doc)
	})
}

// Transact reads the document, applies fn and rewrites it in one transaction.
func (b *Backend) Transact(ctx context.Context, fn func(doc *types.Document) error) error {
	return b.withImmediate(ctx, func(conn *sql.Conn) error {
		doc, err := loadDocument(ctx, conn)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return writeDocument(ctx, conn, doc)
	})
}

// withImmediate runs fn inside BEGIN IMMEDIATE on a dedicated connection.
// IMMEDIATE takes the RESERVED lock up front so concurrent writers (including
// other processes) serialize instead of failing at commit.
func (b *Backend) withImmediate(ctx context.Context, fn func(conn *sql.Conn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Raw BEGIN/COMMIT must run on the same connection, which the pool does not guarantee.
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if ctx is canceled
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Conn.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func hasDocument(ctx context.Context, q queryer) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata WHERE key = 'version'`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to read metadata: %w", err)
	}
	return n > 0, nil
}

func loadDocument(ctx context.Context, q queryer) (*types.Document, error) {
	meta, err := loadMetadata(ctx, q)
	if err != nil {
		return nil, err
	}
	version, ok := meta["version"]
	if !ok {
		return nil, storage.ErrNotInitialized
	}
	if err := types.CheckVersion(version); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrIncompatibleVersion, err)
	}

	doc := &types.Document{Version: version, Tickets: make(map[string]*types.Ticket)}
	if doc.Metadata.CreatedAt, err = parseTime(meta["created_at"]); err != nil {
		return nil, err
	}
	if doc.Metadata.UpdatedAt, err = parseTime(meta["updated_at"]); err != nil {
		return nil, err
	}

	if err := loadTickets(ctx, q, doc); err != nil {
		return nil, err
	}
	if err := loadDependencies(ctx, q, doc); err != nil {
		return nil, err
	}
	doc.Normalize()
	storage.Refresh(doc)
	return doc, nil
}

func loadMetadata(ctx context.Context, q queryer) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func loadTickets(ctx context.Context, q queryer, doc *types.Document) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, summary, area, priority, workstream, phase,
		       plan_status, plan_approved_at, plan_artifact,
		       build_status, build_branch, build_retry_count, build_last_error,
		       pr_url, pr_status
		FROM tickets
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t types.Ticket
		var approvedAt, branch, prURL sql.NullString
		if err := rows.Scan(
			&t.ID, &t.Summary, &t.Area, &t.Priority, &t.Workstream, &t.Phase,
			&t.Plan.Status, &approvedAt, &t.Plan.Artifact,
			&t.Build.Status, &branch, &t.Build.RetryCount, &t.Build.LastError,
			&prURL, &t.PR.Status,
		); err != nil {
			return fmt.Errorf("failed to scan ticket: %w", err)
		}
		if approvedAt.Valid {
			at, err := parseTime(approvedAt.String)
			if err != nil {
				return err
			}
			t.Plan.ApprovedAt = &at
		}
		if branch.Valid {
			t.Build.Branch = &branch.String
		}
		if prURL.Valid {
			t.PR.URL = &prURL.String
		}
		doc.Tickets[t.ID] = &t
	}
	return rows.Err()
}

func loadDependencies(ctx context.Context, q queryer, doc *types.Document) error {
	rows, err := q.QueryContext(ctx, `SELECT ticket_id, depends_on_id FROM dependencies ORDER BY ticket_id, depends_on_id`)
	if err != nil {
		return fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, dep string
		if err := rows.Scan(&id, &dep); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		if t, ok := doc.Tickets[id]; ok {
			t.BlockedBy = append(t.BlockedBy, dep)
		}
	}
	return rows.Err()
}

// writeDocument replaces every row with the contents of doc.
func writeDocument(ctx context.Context, q queryer, doc *types.Document) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM dependencies`); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM tickets`); err != nil {
		return fmt.Errorf("failed to clear tickets: %w", err)
	}

	tickets := doc.List()
	for _, t := range tickets {
		var approvedAt any
		if t.Plan.ApprovedAt != nil {
			approvedAt = formatTime(*t.Plan.ApprovedAt)
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO tickets (
				id, summary, area, priority, workstream, phase,
				plan_status, plan_approved_at, plan_artifact,
				build_status, build_branch, build_retry_count, build_last_error,
				pr_url, pr_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID, t.Summary, t.Area, string(t.Priority), t.Workstream, t.Phase,
			string(t.Plan.Status), approvedAt, t.Plan.Artifact,
			string(t.Build.Status), nullString(t.Build.Branch), t.Build.RetryCount, t.Build.LastError,
			nullString(t.PR.URL), string(t.PR.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert ticket %s: %w", t.ID, err)
		}
	}

	for _, t := range tickets {
		for _, dep := range t.BlockedBy {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO dependencies (ticket_id, depends_on_id) VALUES (?, ?)`, t.ID, dep); err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", t.ID, dep, err)
			}
		}
	}

	meta := map[string]string{
		"version":    doc.Version,
		"created_at": formatTime(doc.Metadata.CreatedAt),
		"updated_at": formatTime(doc.Metadata.UpdatedAt),
	}
	for k, v := range meta {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
