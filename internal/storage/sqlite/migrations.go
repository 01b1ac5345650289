package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/sqlite/migrations"
)

// Migration is one idempotent schema upgrade step.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList runs in order on every open. Each step must be safe to re-run.
var migrationsList = []Migration{
	{"ticket_detail_columns", migrations.MigrateTicketDetailColumns},
}

// RunMigrations applies every migration in order.
func RunMigrations(db *sql.DB) error {
	for _, m := range migrationsList {
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}
