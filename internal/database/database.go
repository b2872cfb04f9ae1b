package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Writes in sqlite are serialized; a single connection avoids
	// SQLITE_BUSY storms under concurrent bookings.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
            id TEXT PRIMARY KEY,
            booking_reference TEXT NOT NULL UNIQUE,
            client_id TEXT NOT NULL,
            staff_id TEXT NOT NULL,
            location_id TEXT NOT NULL,
            start_time DATETIME NOT NULL,
            duration_minutes INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            notes TEXT NOT NULL DEFAULT '',
            total_price REAL NOT NULL DEFAULT 0,
            discount_amount REAL NOT NULL DEFAULT 0,
            final_amount REAL NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS appointment_services (
            id TEXT PRIMARY KEY,
            appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
            service_id TEXT NOT NULL,
            staff_id TEXT NOT NULL DEFAULT '',
            price REAL NOT NULL DEFAULT 0,
            duration_minutes INTEGER NOT NULL DEFAULT 0,
            completed BOOLEAN NOT NULL DEFAULT 0,
            position INTEGER NOT NULL,
            UNIQUE(appointment_id, service_id)
        )`,

		`CREATE TABLE IF NOT EXISTS appointment_products (
            id TEXT PRIMARY KEY,
            appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
            product_id TEXT NOT NULL,
            quantity INTEGER NOT NULL DEFAULT 1,
            price REAL NOT NULL DEFAULT 0
        )`,

		`CREATE TABLE IF NOT EXISTS status_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
            status TEXT NOT NULL,
            timestamp DATETIME NOT NULL,
            updated_by TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS blocked_times (
            id TEXT PRIMARY KEY,
            staff_id TEXT NOT NULL,
            location_id TEXT NOT NULL,
            start_time DATETIME NOT NULL,
            duration_minutes INTEGER NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,

		// ts is unix nanoseconds so cursor comparisons are exact.
		`CREATE TABLE IF NOT EXISTS change_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            entity_type TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            change_type TEXT NOT NULL,
            location_id TEXT NOT NULL DEFAULT '',
            user_id TEXT NOT NULL DEFAULT '',
            ts INTEGER NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_staff_id ON appointments(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_start_time ON appointments(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointment_services_appointment_id ON appointment_services(appointment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointment_services_staff_id ON appointment_services(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_status_history_appointment_id ON status_history(appointment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_times_staff_id ON blocked_times(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_change_log_ts ON change_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_change_log_entity_type ON change_log(entity_type)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}
