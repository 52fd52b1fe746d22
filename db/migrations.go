package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration is one versioned schema change with its inverse
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus reports whether a known migration has been applied
type MigrationStatus struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

const migrationsTable = "sentimint_schema_migrations"

// Migrate applies every migration newer than the recorded schema version
func Migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	for _, m := range pending(postgresMigrations, current) {
		err := inTx(conn, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.Up); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		slog.Info("applied migration", "version", m.Version, "name", m.Name)
	}

	return nil
}

// MigrateDown reverts the newest steps applied migrations and returns the resulting schema version
func MigrateDown(conn *sql.DB, steps int) (int, error) {
	current, err := schemaVersion(conn)
	if err != nil {
		return 0, err
	}

	plan, err := rollbackPlan(postgresMigrations, current, steps)
	if err != nil {
		return current, err
	}

	for _, m := range plan {
		err := inTx(conn, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.Down); err != nil {
				return err
			}
			_, err := tx.Exec("DELETE FROM "+migrationsTable+" WHERE version = $1", m.Version)
			return err
		})
		if err != nil {
			return current, fmt.Errorf("rollback of migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		slog.Info("rolled back migration", "version", m.Version, "name", m.Name)
		current = m.Version - 1
	}

	return schemaVersion(conn)
}

// Status lists every known migration in version order with its applied state
func Status(conn *sql.DB) ([]MigrationStatus, error) {
	current, err := schemaVersion(conn)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(postgresMigrations))
	for _, m := range sorted(postgresMigrations) {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= current,
		})
	}
	return status, nil
}

// schemaVersion creates the bookkeeping table when missing and returns the highest applied version
func schemaVersion(conn *sql.DB) (int, error) {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var version int
	if err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM " + migrationsTable).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func inTx(conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func sorted(migrations []Migration) []Migration {
	out := make([]Migration, len(migrations))
	copy(out, migrations)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// pending returns the migrations above current, oldest first
func pending(migrations []Migration, current int) []Migration {
	var out []Migration
	for _, m := range sorted(migrations) {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

// rollbackPlan returns the applied migrations to revert, newest first
func rollbackPlan(migrations []Migration, current, steps int) ([]Migration, error) {
	if steps < 1 {
		return nil, fmt.Errorf("rollback needs at least one step, got %d", steps)
	}

	all := sorted(migrations)
	var plan []Migration
	for i := len(all) - 1; i >= 0 && len(plan) < steps; i-- {
		if all[i].Version <= current {
			plan = append(plan, all[i])
		}
	}

	if len(plan) < steps {
		return nil, fmt.Errorf("cannot roll back %d migrations, only %d applied", steps, len(plan))
	}
	return plan, nil
}
