package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// migration is one schema step. Steps are append-only.
type migration struct {
	version     int
	description string
	statements  []string
}

// migrations after version 1 extend the base schema in schemaSQL.
var migrations = []migration{
	{version: 1, description: "base graph schema"},
	{
		version:     2,
		description: "route parameters on query_log",
		statements:  []string{"ALTER TABLE query_log ADD COLUMN route_params JSON"},
	},
	{
		version:     3,
		description: "source file lookup by meeting and kind",
		statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_source_files_meeting_kind ON source_files(meeting_date, kind)",
			"CREATE INDEX IF NOT EXISTS idx_edges_type_to ON edges(edge_type, to_id)",
		},
	},
}

// Migrate brings the schema up to the latest version. A column that
// already exists is tolerated so databases created from the current base
// schema migrate cleanly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("store: applying migration", "version", m.version, "description", m.description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					if strings.Contains(err.Error(), "duplicate column") {
						slog.Debug("store: column already present", "version", m.version)
						continue
					}
					return fmt.Errorf("migration %d: %w", m.version, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
