// Package sqlite - schema compatibility probing
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaIncompatible is returned when the database schema is incompatible with the current version
var ErrSchemaIncompatible = errors.New("database schema is incompatible")

// expectedSchema defines all expected tables and their required columns.
// It is checked after migrations to catch partially upgraded databases.
var expectedSchema = map[string][]string{
	"tickets": {
		"id", "summary", "area", "priority", "workstream", "phase",
		"plan_status", "plan_approved_at", "plan_artifact",
		"build_status", "build_branch", "build_retry_count", "build_last_error",
		"pr_url", "pr_status",
	},
	"dependencies": {"ticket_id", "depends_on_id"},
	"metadata":     {"key", "value"},
}

// SchemaProbeResult contains the results of a schema compatibility check
type SchemaProbeResult struct {
	Compatible     bool
	MissingTables  []string
	MissingColumns map[string][]string // table -> missing columns
	ErrorMessage   string
}

// probeSchema verifies all expected tables and columns exist
func probeSchema(db *sql.DB) SchemaProbeResult {
	result := SchemaProbeResult{
		Compatible:     true,
		MissingTables:  []string{},
		MissingColumns: make(map[string][]string),
	}

	tables := make([]string, 0, len(expectedSchema))
	for table := range expectedSchema {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		expectedCols := expectedSchema[table]
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", strings.Join(expectedCols, ", "), table)
		_, err := db.Exec(query)
		if err == nil {
			continue
		}

		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, "no such table"):
			result.Compatible = false
			result.MissingTables = append(result.MissingTables, table)
		case strings.Contains(errMsg, "no such column"):
			result.Compatible = false
			if missing := findMissingColumns(db, table, expectedCols); len(missing) > 0 {
				result.MissingColumns[table] = missing
			}
		}
	}

	if !result.Compatible {
		var parts []string
		if len(result.MissingTables) > 0 {
			parts = append(parts, fmt.Sprintf("missing tables: %s", strings.Join(result.MissingTables, ", ")))
		}
		for _, table := range tables {
			if cols, ok := result.MissingColumns[table]; ok {
				parts = append(parts, fmt.Sprintf("missing columns in %s: %s", table, strings.Join(cols, ", ")))
			}
		}
		result.ErrorMessage = strings.Join(parts, "; ")
	}

	return result
}

// findMissingColumns determines which columns are missing from a table
func findMissingColumns(db *sql.DB, table string, expectedCols []string) []string {
	missing := []string{}
	for _, col := range expectedCols {
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", col, table)
		if _, err := db.Exec(query); err != nil && strings.Contains(err.Error(), "no such column") {
			missing = append(missing, col)
		}
	}
	return missing
}

// verifySchemaCompatibility runs schema probe and returns detailed error on failure
func verifySchemaCompatibility(db *sql.DB) error {
	result := probeSchema(db)
	if !result.Compatible {
		return fmt.Errorf("%w: %s", ErrSchemaIncompatible, result.ErrorMessage)
	}
	return nil
}
