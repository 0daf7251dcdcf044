package cache

import (
	"fmt"
)

// migrate runs all pending migrations.
func (s *Store) migrate() error {
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE used_products (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					product_uuid TEXT NOT NULL,
					title TEXT NOT NULL,
					platform TEXT NOT NULL,
					role TEXT NOT NULL,
					roi TEXT NOT NULL,
					period_start DATETIME,
					used_at DATETIME NOT NULL,
					UNIQUE(roi, product_uuid, role)
				);

				CREATE TABLE run_configs (
					run_id TEXT PRIMARY KEY,
					roi TEXT NOT NULL,
					config_json TEXT NOT NULL,
					created_at DATETIME NOT NULL
				);
			`,
		},
		{
			version: 2,
			sql: `
				CREATE TABLE collocations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					s1_uuid TEXT NOT NULL,
					s2_uuid TEXT NOT NULL,
					roi TEXT NOT NULL,
					output_dir TEXT NOT NULL,
					processed_at DATETIME NOT NULL
				);

				CREATE INDEX idx_collocations_pair
					ON collocations (s1_uuid, s2_uuid);
			`,
		},
	}

	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("running migration", "version", mig.version)
			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}
		}
	}

	return nil
}

// runMigration executes a migration and records it.
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	insertSQL := "INSERT INTO migrations (version) VALUES (?)"
	if _, err := tx.Exec(insertSQL, version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}
