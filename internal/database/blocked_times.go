package database

import (
	"context"
	"fmt"
	"time"

	"salonflow/internal/models"
)

func (db *DB) CreateBlockedTime(ctx context.Context, entry *models.BlockedTimeEntry) error {
	now := time.Now()
	_, err := db.db.ExecContext(ctx, `
        INSERT INTO blocked_times (id, staff_id, location_id, start_time, duration_minutes, reason, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.StaffID,
		entry.LocationID,
		entry.StartTime,
		entry.DurationMinutes,
		entry.Reason,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create blocked time: %w", err)
	}
	entry.CreatedAt = now
	return nil
}

func (db *DB) DeleteBlockedTime(ctx context.Context, id string) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM blocked_times WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blocked time: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlockedTimes returns the staff member's blocked entries overlapping
// [from, to).
func (db *DB) ListBlockedTimes(ctx context.Context, staffID string, from, to time.Time) ([]models.BlockedTimeEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, staff_id, location_id, start_time, duration_minutes, reason, created_at
        FROM blocked_times
        WHERE staff_id = ?
          AND start_time < ?
          AND datetime(start_time, '+' || duration_minutes || ' minutes') > ?
        ORDER BY start_time`, staffID, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked times: %w", err)
	}
	defer rows.Close()

	var entries []models.BlockedTimeEntry
	for rows.Next() {
		var e models.BlockedTimeEntry
		if err := rows.Scan(&e.ID, &e.StaffID, &e.LocationID, &e.StartTime, &e.DurationMinutes, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked time: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
