package db

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order after schema creation. The number of
// applied migrations is kept in PRAGMA user_version. Append new migrations
// at the end; never reorder or edit applied ones.
var migrations = []string{
	// 1: listing indexes for the admin queues and per-owner views.
	`CREATE INDEX IF NOT EXISTS idx_donations_user ON donations(user_id, created_at);
	 CREATE INDEX IF NOT EXISTS idx_donations_status ON donations(status, created_at);
	 CREATE INDEX IF NOT EXISTS idx_requests_orphanage ON requests(orphanage_id, created_at);
	 CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status, created_at);
	 CREATE INDEX IF NOT EXISTS idx_request_items_donation ON request_items(donation_id)`,
	// 2: login history lookups.
	`CREATE INDEX IF NOT EXISTS idx_login_events_created ON login_events(created_at)`,
}

// Migrate applies migrations newer than the database's user_version.
func Migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("starting migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Version returns the number of applied migrations.
func Version(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
