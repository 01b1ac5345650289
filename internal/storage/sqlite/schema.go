package sqlite

const schema = `
-- Tickets table (one row per ticket, derived phase cached for queries)
CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    summary TEXT NOT NULL DEFAULT '',
    area TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'medium',
    workstream TEXT NOT NULL DEFAULT '',
    phase INTEGER NOT NULL DEFAULT 0,
    plan_status TEXT NOT NULL DEFAULT 'pending',
    plan_approved_at TEXT,
    build_status TEXT NOT NULL DEFAULT 'pending',
    build_branch TEXT,
    build_retry_count INTEGER NOT NULL DEFAULT 0 CHECK(build_retry_count >= 0),
    pr_url TEXT,
    pr_status TEXT NOT NULL DEFAULT 'none'
);

CREATE INDEX IF NOT EXISTS idx_tickets_workstream ON tickets(workstream);
CREATE INDEX IF NOT EXISTS idx_tickets_build_status ON tickets(build_status);
-- Note: plan_artifact and build_last_error are added in migrations/002_ticket_detail_columns.go

-- Dependencies table (ticket_id is blocked by depends_on_id)
CREATE TABLE IF NOT EXISTS dependencies (
    ticket_id TEXT NOT NULL,
    depends_on_id TEXT NOT NULL,
    PRIMARY KEY (ticket_id, depends_on_id),
    FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE,
    FOREIGN KEY (depends_on_id) REFERENCES tickets(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on_id);

-- Metadata table (document version and timestamps)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
