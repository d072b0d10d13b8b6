package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	// Create migrations table if it doesn't exist
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

	// Get the current schema version
	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Info("Current schema version", "version", currentVersion)

	// Define all migrations
	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE vehicles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					sku TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					vin TEXT NOT NULL UNIQUE,
					regular_price REAL NOT NULL,
					version TEXT,
					financed_price REAL,
					monthly_financing_fee REAL,
					make TEXT,
					model TEXT,
					bodytype TEXT,
					year INTEGER,
					month INTEGER,
					kms INTEGER,
					fuel TEXT,
					power INTEGER,
					transmission TEXT,
					color TEXT,
					doors INTEGER,
					seats INTEGER,
					engine_size INTEGER,
					gears INTEGER,
					store TEXT,
					city TEXT,
					address TEXT,
					numberplate TEXT,
					guarantee TEXT,
					environmental_badge TEXT,
					description TEXT,
					equipment TEXT,
					vat_deductible BOOLEAN DEFAULT 0,
					crashed BOOLEAN DEFAULT 0,
					is_sold BOOLEAN DEFAULT 0,
					source TEXT NOT NULL DEFAULT 'feed',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE vehicle_images (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vehicle_id INTEGER NOT NULL,
					url TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT 'feed',
					is_primary BOOLEAN DEFAULT 0,
					FOREIGN KEY(vehicle_id) REFERENCES vehicles(id) ON DELETE CASCADE
				);

				CREATE INDEX idx_vehicle_images_vehicle ON vehicle_images(vehicle_id);
				CREATE INDEX idx_vehicles_source_sold ON vehicles(source, is_sold);

				CREATE TABLE sync_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					start_time DATETIME NOT NULL,
					end_time DATETIME,
					batch_offset INTEGER DEFAULT 0,
					batch_limit INTEGER DEFAULT 0,
					total INTEGER DEFAULT 0,
					created INTEGER DEFAULT 0,
					updated INTEGER DEFAULT 0,
					skipped INTEGER DEFAULT 0,
					errors INTEGER DEFAULT 0,
					marked_sold INTEGER DEFAULT 0,
					status TEXT DEFAULT 'running',
					error_message TEXT
				);
			`,
		},
		{
			version: 2,
			sql: `
				CREATE TABLE offers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					slug TEXT NOT NULL UNIQUE,
					title TEXT NOT NULL,
					description TEXT,
					active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE offer_vehicles (
					offer_id INTEGER NOT NULL,
					vehicle_id INTEGER NOT NULL,
					PRIMARY KEY (offer_id, vehicle_id),
					FOREIGN KEY(offer_id) REFERENCES offers(id) ON DELETE CASCADE,
					FOREIGN KEY(vehicle_id) REFERENCES vehicles(id) ON DELETE CASCADE
				);
			`,
		},
	}

	// Run pending migrations
	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("Running migration", "version", mig.version)

			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}

			s.logger.Info("Migration completed", "version", mig.version)
		}
	}

	return nil
}

// runMigration executes a migration and records it
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Execute the migration SQL
	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// Record the migration
	insertSQL := "INSERT INTO migrations (version) VALUES (?)"
	if _, err := tx.Exec(insertSQL, version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}
