package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonflow/internal/availability"
	"salonflow/internal/models"
	"salonflow/internal/reconcile"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const busyIntervalsQuery = `
        SELECT start_time, duration_minutes FROM appointments a
        WHERE a.id != ?
          AND a.status NOT IN (?, ?, ?)
          AND (a.staff_id = ?
               OR EXISTS (SELECT 1 FROM appointment_services s
                          WHERE s.appointment_id = a.id AND s.staff_id = ?))
        UNION ALL
        SELECT start_time, duration_minutes FROM blocked_times WHERE staff_id = ?`

// StaffBusyIntervals returns every interval occupying the staff member's
// calendar across all locations: non-terminal appointments where they are
// primary staff or assigned to a service line, plus all blocked time.
// The OR inside a single row scan guarantees an appointment is counted once
// even when the staff holds both roles on it.
func (db *DB) StaffBusyIntervals(ctx context.Context, staffID, excludeAppointmentID string) ([]availability.Interval, error) {
	return staffBusyIntervals(ctx, db.db, staffID, excludeAppointmentID)
}

func staffBusyIntervals(ctx context.Context, q querier, staffID, excludeAppointmentID string) ([]availability.Interval, error) {
	rows, err := q.QueryContext(ctx, busyIntervalsQuery,
		excludeAppointmentID,
		models.StatusCompleted, models.StatusCancelled, models.StatusNoShow,
		staffID, staffID, staffID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query busy intervals: %w", err)
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var start time.Time
		var duration int
		if err := rows.Scan(&start, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan busy interval: %w", err)
		}
		intervals = append(intervals, availability.Interval{
			Start: start,
			End:   start.Add(time.Duration(duration) * time.Minute),
		})
	}
	return intervals, rows.Err()
}

// CreateAppointmentWithLock re-validates availability inside the insert
// transaction, so two concurrent bookings for overlapping intervals on the
// same staff member cannot both succeed. Returns ErrConflict when the
// candidate interval is taken.
func (db *DB) CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	staffIDs := map[string]bool{appt.StaffID: true}
	for _, svc := range appt.Services {
		if svc.StaffID != "" {
			staffIDs[svc.StaffID] = true
		}
	}

	candidate := availability.Interval{Start: appt.StartTime, End: appt.EndTime()}
	for staffID := range staffIDs {
		busy, err := staffBusyIntervals(ctx, tx, staffID, appt.ID)
		if err != nil {
			return err
		}
		for _, b := range busy {
			if candidate.Overlaps(b) {
				return ErrConflict
			}
		}
	}

	if err := insertAppointment(ctx, tx, appt); err != nil {
		return err
	}

	return tx.Commit()
}

func insertAppointment(ctx context.Context, tx *sql.Tx, appt *models.Appointment) error {
	now := time.Now()
	_, err := tx.ExecContext(ctx, `
        INSERT INTO appointments (
            id, booking_reference, client_id, staff_id, location_id,
            start_time, duration_minutes, status, notes,
            total_price, discount_amount, final_amount,
            created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.ID,
		appt.BookingReference,
		appt.ClientID,
		appt.StaffID,
		appt.LocationID,
		appt.StartTime,
		appt.DurationMinutes,
		appt.Status,
		appt.Notes,
		appt.TotalPrice,
		appt.DiscountAmount,
		appt.FinalAmount,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	for i := range appt.Services {
		svc := &appt.Services[i]
		svc.AppointmentID = appt.ID
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO appointment_services (id, appointment_id, service_id, staff_id, price, duration_minutes, completed, position)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			svc.ID, svc.AppointmentID, svc.ServiceID, svc.StaffID, svc.Price, svc.DurationMinutes, svc.Completed, svc.Position,
		); err != nil {
			return fmt.Errorf("failed to insert appointment service: %w", err)
		}
	}

	for i := range appt.Products {
		p := &appt.Products[i]
		p.AppointmentID = appt.ID
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO appointment_products (id, appointment_id, product_id, quantity, price)
            VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.AppointmentID, p.ProductID, p.Quantity, p.Price,
		); err != nil {
			return fmt.Errorf("failed to insert appointment product: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO status_history (appointment_id, status, timestamp, updated_by)
        VALUES (?, ?, ?, ?)`,
		appt.ID, appt.Status, now, models.SystemActor,
	); err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}

	appt.CreatedAt = now
	appt.UpdatedAt = now
	appt.Version = 1
	appt.StatusHistory = append(appt.StatusHistory, models.StatusHistoryEntry{
		Status: appt.Status, Timestamp: now, UpdatedBy: models.SystemActor,
	})

	return nil
}

// GetAppointment loads the appointment with its service, product and history
// sub-collections. A row persisted without history gets a synthetic
// {pending, created_at, System} entry; history is never surfaced empty.
func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := db.db.QueryRowContext(ctx, `
        SELECT id, booking_reference, client_id, staff_id, location_id,
               start_time, duration_minutes, status, notes,
               total_price, discount_amount, final_amount,
               created_at, updated_at, version
        FROM appointments WHERE id = ?`, id).Scan(
		&appt.ID,
		&appt.BookingReference,
		&appt.ClientID,
		&appt.StaffID,
		&appt.LocationID,
		&appt.StartTime,
		&appt.DurationMinutes,
		&appt.Status,
		&appt.Notes,
		&appt.TotalPrice,
		&appt.DiscountAmount,
		&appt.FinalAmount,
		&appt.CreatedAt,
		&appt.UpdatedAt,
		&appt.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if appt.Services, err = db.loadServices(ctx, id); err != nil {
		return nil, err
	}
	if appt.Products, err = db.loadProducts(ctx, id); err != nil {
		return nil, err
	}
	if appt.StatusHistory, err = db.loadHistory(ctx, id); err != nil {
		return nil, err
	}

	if len(appt.StatusHistory) == 0 {
		appt.StatusHistory = []models.StatusHistoryEntry{{
			Status:    models.StatusPending,
			Timestamp: appt.CreatedAt,
			UpdatedBy: models.SystemActor,
		}}
	}

	return &appt, nil
}

func (db *DB) loadServices(ctx context.Context, appointmentID string) ([]models.AppointmentService, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, appointment_id, service_id, staff_id, price, duration_minutes, completed, position
        FROM appointment_services WHERE appointment_id = ? ORDER BY position`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment services: %w", err)
	}
	defer rows.Close()

	var services []models.AppointmentService
	for rows.Next() {
		var s models.AppointmentService
		if err := rows.Scan(&s.ID, &s.AppointmentID, &s.ServiceID, &s.StaffID, &s.Price, &s.DurationMinutes, &s.Completed, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan appointment service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (db *DB) loadProducts(ctx context.Context, appointmentID string) ([]models.AppointmentProduct, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, appointment_id, product_id, quantity, price
        FROM appointment_products WHERE appointment_id = ?`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment products: %w", err)
	}
	defer rows.Close()

	var products []models.AppointmentProduct
	for rows.Next() {
		var p models.AppointmentProduct
		if err := rows.Scan(&p.ID, &p.AppointmentID, &p.ProductID, &p.Quantity, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan appointment product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (db *DB) loadHistory(ctx context.Context, appointmentID string) ([]models.StatusHistoryEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT status, timestamp, updated_by
        FROM status_history WHERE appointment_id = ? ORDER BY id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	var history []models.StatusHistoryEntry
	for rows.Next() {
		var h models.StatusHistoryEntry
		if err := rows.Scan(&h.Status, &h.Timestamp, &h.UpdatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// ListAppointmentsByStaff returns appointments where the staff member is
// primary or assigned to a service line, overlapping [from, to).
func (db *DB) ListAppointmentsByStaff(ctx context.Context, staffID string, from, to time.Time) ([]*models.Appointment, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT a.id FROM appointments a
        WHERE (a.staff_id = ?
               OR EXISTS (SELECT 1 FROM appointment_services s
                          WHERE s.appointment_id = a.id AND s.staff_id = ?))
          AND a.start_time < ?
          AND datetime(a.start_time, '+' || a.duration_minutes || ' minutes') > ?
        ORDER BY a.start_time`, staffID, staffID, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan appointment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	appointments := make([]*models.Appointment, 0, len(ids))
	for _, id := range ids {
		appt, err := db.GetAppointment(ctx, id)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appt)
	}
	return appointments, nil
}

// ApplyStatusTransition persists a validated transition. The update is
// conditioned on version so concurrent transitions on one appointment are
// serialized; a lost race yields ErrVersionConflict and the caller re-reads
// and re-validates. cascadeComplete forces every service line to completed
// in the same transaction.
func (db *DB) ApplyStatusTransition(ctx context.Context, id string, version int64, newStatus, actor string, cascadeComplete bool) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
        UPDATE appointments SET status = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND version = ?`,
		newStatus, now, id, version,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check appointment existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO status_history (appointment_id, status, timestamp, updated_by)
        VALUES (?, ?, ?, ?)`,
		id, newStatus, now, actor,
	); err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	if cascadeComplete {
		if _, err := tx.ExecContext(ctx, `
            UPDATE appointment_services SET completed = 1 WHERE appointment_id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to cascade completion to services: %w", err)
		}
	}

	return tx.Commit()
}

// ReassignStaffWithLock moves the appointment to a new primary staff member,
// re-validating the new staff's availability inside the transaction with the
// appointment itself excluded from the scan.
func (db *DB) ReassignStaffWithLock(ctx context.Context, id string, version int64, newStaffID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var start time.Time
	var duration int
	err = tx.QueryRowContext(ctx, `
        SELECT start_time, duration_minutes FROM appointments WHERE id = ?`, id).Scan(&start, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load appointment interval: %w", err)
	}

	busy, err := staffBusyIntervals(ctx, tx, newStaffID, id)
	if err != nil {
		return err
	}
	candidate := availability.Interval{Start: start, End: start.Add(time.Duration(duration) * time.Minute)}
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return ErrConflict
		}
	}

	result, err := tx.ExecContext(ctx, `
        UPDATE appointments SET staff_id = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND version = ?`,
		newStaffID, time.Now(), id, version,
	)
	if err != nil {
		return fmt.Errorf("failed to reassign staff: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	return tx.Commit()
}

// ApplyReconcilePlan persists the reconciler's output atomically: sparse
// scalar updates, then the delete-additional / insert-new operations for the
// service and product sub-collections. The main service line (position 0)
// survives every plan. A plan that moves the interval re-validates every
// involved staff member's availability inside the transaction, so a booking
// committed after the caller's availability check still blocks the move.
func (db *DB) ApplyReconcilePlan(ctx context.Context, version int64, plan *reconcile.Plan) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if plan.Fields.StartTime != nil || plan.Fields.DurationMinutes != nil {
		if err := checkMovedInterval(ctx, tx, plan); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, `
        UPDATE appointments SET
            start_time = COALESCE(?, start_time),
            duration_minutes = COALESCE(?, duration_minutes),
            notes = COALESCE(?, notes),
            total_price = COALESCE(?, total_price),
            discount_amount = COALESCE(?, discount_amount),
            final_amount = COALESCE(?, final_amount),
            updated_at = ?,
            version = version + 1
        WHERE id = ? AND version = ?`,
		plan.Fields.StartTime,
		plan.Fields.DurationMinutes,
		plan.Fields.Notes,
		plan.Fields.TotalPrice,
		plan.Fields.DiscountAmount,
		plan.Fields.FinalAmount,
		time.Now(),
		plan.AppointmentID,
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to apply field updates: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	if plan.ReplaceServices {
		if _, err := tx.ExecContext(ctx, `
            DELETE FROM appointment_services WHERE appointment_id = ? AND position > 0`,
			plan.AppointmentID,
		); err != nil {
			return fmt.Errorf("failed to delete additional services: %w", err)
		}
		for _, svc := range plan.InsertServices {
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO appointment_services (id, appointment_id, service_id, staff_id, price, duration_minutes, completed, position)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				svc.ID, svc.AppointmentID, svc.ServiceID, svc.StaffID, svc.Price, svc.DurationMinutes, svc.Completed, svc.Position,
			); err != nil {
				return fmt.Errorf("failed to insert service line: %w", err)
			}
		}
	}

	if plan.ReplaceProducts {
		if _, err := tx.ExecContext(ctx, `
            DELETE FROM appointment_products WHERE appointment_id = ?`,
			plan.AppointmentID,
		); err != nil {
			return fmt.Errorf("failed to delete products: %w", err)
		}
		for _, p := range plan.InsertProducts {
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO appointment_products (id, appointment_id, product_id, quantity, price)
                VALUES (?, ?, ?, ?, ?)`,
				p.ID, p.AppointmentID, p.ProductID, p.Quantity, p.Price,
			); err != nil {
				return fmt.Errorf("failed to insert product line: %w", err)
			}
		}
	}

	return tx.Commit()
}

// checkMovedInterval re-validates the plan's target interval against the
// busy calendars of the primary staff, the surviving service lines, and any
// lines the plan inserts. Returns ErrConflict when the moved interval lands
// on another booking.
func checkMovedInterval(ctx context.Context, tx *sql.Tx, plan *reconcile.Plan) error {
	var staffID string
	var start time.Time
	var duration int
	err := tx.QueryRowContext(ctx, `
        SELECT staff_id, start_time, duration_minutes FROM appointments WHERE id = ?`,
		plan.AppointmentID,
	).Scan(&staffID, &start, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load appointment for move check: %w", err)
	}

	if plan.Fields.StartTime != nil {
		start = *plan.Fields.StartTime
	}
	if plan.Fields.DurationMinutes != nil {
		duration = *plan.Fields.DurationMinutes
	}

	staffIDs := map[string]bool{staffID: true}
	lineStaffQuery := `SELECT staff_id FROM appointment_services WHERE appointment_id = ? AND staff_id != ''`
	if plan.ReplaceServices {
		// Additional lines are replaced by the plan; only position 0 survives.
		lineStaffQuery += ` AND position = 0`
	}
	rows, err := tx.QueryContext(ctx, lineStaffQuery, plan.AppointmentID)
	if err != nil {
		return fmt.Errorf("failed to query service line staff: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lineStaff string
		if err := rows.Scan(&lineStaff); err != nil {
			return fmt.Errorf("failed to scan service line staff: %w", err)
		}
		staffIDs[lineStaff] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if plan.ReplaceServices {
		for _, svc := range plan.InsertServices {
			if svc.StaffID != "" {
				staffIDs[svc.StaffID] = true
			}
		}
	}

	candidate := availability.Interval{
		Start: start,
		End:   start.Add(time.Duration(duration) * time.Minute),
	}
	for id := range staffIDs {
		busy, err := staffBusyIntervals(ctx, tx, id, plan.AppointmentID)
		if err != nil {
			return err
		}
		for _, b := range busy {
			if candidate.Overlaps(b) {
				return ErrConflict
			}
		}
	}
	return nil
}

// DeleteAppointment removes the appointment and its sub-collections.
func (db *DB) DeleteAppointment(ctx context.Context, id string) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
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
