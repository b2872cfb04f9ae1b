package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salonflow/internal/models"
)

// InsertChangeRecord appends one record to the change log. Timestamps are
// stored as unix nanoseconds so poll cursors compare exactly.
func (db *DB) InsertChangeRecord(ctx context.Context, rec *models.ChangeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	result, err := db.db.ExecContext(ctx, `
        INSERT INTO change_log (entity_type, entity_id, change_type, location_id, user_id, ts)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EntityType,
		rec.EntityID,
		rec.ChangeType,
		rec.LocationID,
		rec.UserID,
		rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert change record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListChangesSince returns records with timestamp strictly after the cursor,
// ascending, optionally filtered by entity types and location. Location
// filtering is an OR with global records: a record without a location always
// passes. Capped at limit.
func (db *DB) ListChangesSince(ctx context.Context, cursor time.Time, entityTypes []string, locationID string, limit int) ([]models.ChangeRecord, error) {
	query := `SELECT id, entity_type, entity_id, change_type, location_id, user_id, ts
              FROM change_log WHERE ts > ?`
	args := []any{cursor.UnixNano()}

	if len(entityTypes) > 0 {
		query += ` AND entity_type IN (?` + strings.Repeat(",?", len(entityTypes)-1) + `)`
		for _, et := range entityTypes {
			args = append(args, et)
		}
	}
	if locationID != "" {
		query += ` AND (location_id = ? OR location_id = '')`
		args = append(args, locationID)
	}

	query += ` ORDER BY ts ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var records []models.ChangeRecord
	for rows.Next() {
		var rec models.ChangeRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.ChangeType, &rec.LocationID, &rec.UserID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan change record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestChangeTimestamp returns the newest record timestamp, or the zero
// time when the log is empty.
func (db *DB) LatestChangeTimestamp(ctx context.Context) (time.Time, error) {
	var ts *int64
	err := db.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM change_log`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest change timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return time.Unix(0, *ts), nil
}

// DeleteChangesBefore removes records older than the cutoff, unconditionally:
// retention never consults whether a client consumed the record. Returns the
// number of deleted records.
func (db *DB) DeleteChangesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.db.ExecContext(ctx, `DELETE FROM change_log WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old change records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}
