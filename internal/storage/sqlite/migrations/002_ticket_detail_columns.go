package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateTicketDetailColumns adds plan_artifact and build_last_error to
// databases created before those fields were tracked.
func MigrateTicketDetailColumns(db *sql.DB) error {
	existing, err := columnNames(db, "tickets")
	if err != nil {
		return err
	}

	for _, col := range []string{"plan_artifact", "build_last_error"} {
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE tickets ADD COLUMN %s TEXT NOT NULL DEFAULT ''`, col)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add %s column: %w", col, err)
		}
	}
	return nil
}

func columnNames(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to check schema: %w", err)
	}
	// Rows must be closed before the caller runs ALTER statements (MaxOpenConns(1) in memory mode)
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading column info: %w", err)
	}
	return cols, nil
}
