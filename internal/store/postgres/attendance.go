package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"presence/internal/model"
	"presence/internal/store"
)

// InsertAttendanceEvent writes one sign-in event. The unique constraint on
// (user_id, session_id) turns a lost duplicate race into ErrConflict.
func (s *Store) InsertAttendanceEvent(ctx context.Context, evt model.AttendanceEvent) (model.AttendanceEvent, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, user_id, session_id, is_late, validated, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.ID, evt.UserID, evt.SessionID, evt.IsLate, evt.Validated, evt.OccurredAt)
	if err != nil {
		return model.AttendanceEvent{}, mapPgErr(err)
	}
	return evt, nil
}

func (s *Store) GetAttendanceEvent(ctx context.Context, userID, sessionID string) (*model.AttendanceEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, is_late, validated, occurred_at
		FROM attendance_events WHERE user_id = $1 AND session_id = $2
	`, userID, sessionID)
	var evt model.AttendanceEvent
	if err := row.Scan(&evt.ID, &evt.UserID, &evt.SessionID, &evt.IsLate, &evt.Validated, &evt.OccurredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	return &evt, nil
}

func (s *Store) ListAttendanceEvents(ctx context.Context, userID string, limit, offset int) ([]model.AttendanceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT id, user_id, session_id, is_late, validated, occurred_at
		FROM attendance_events`
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []model.AttendanceEvent
	for rows.Next() {
		var evt model.AttendanceEvent
		if err := rows.Scan(&evt.ID, &evt.UserID, &evt.SessionID, &evt.IsLate, &evt.Validated, &evt.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// FindClassAttendance returns the one record for the student and class with
// a date inside [from, to).
func (s *Store) FindClassAttendance(ctx context.Context, studentID, classID string, from, to time.Time) (*model.ClassAttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, class_id, date, status, method, recorded_by, recorded_at, COALESCE(pin_used, '')
		FROM class_attendance
		WHERE student_id = $1 AND class_id = $2 AND date >= $3 AND date < $4
		LIMIT 1
	`, studentID, classID, from, to)
	var rec model.ClassAttendanceRecord
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.Date, &rec.Status, &rec.Method, &rec.RecordedBy, &rec.RecordedAt, &rec.PinUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	return &rec, nil
}

func (s *Store) InsertClassAttendance(ctx context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_attendance (id, student_id, class_id, date, day_key, status, method, recorded_by, recorded_at, pin_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
	`, rec.ID, rec.StudentID, rec.ClassID, rec.Date, rec.Date.UTC().Format("2006-01-02"),
		rec.Status, rec.Method, rec.RecordedBy, rec.RecordedAt, rec.PinUsed)
	if err != nil {
		return model.ClassAttendanceRecord{}, mapPgErr(err)
	}
	return rec, nil
}

func (s *Store) UpdateClassAttendance(ctx context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	// date moves within the same day_key by construction, so the day
	// uniqueness constraint is untouched.
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_attendance
		SET date = $2, status = $3, method = $4, recorded_by = $5, recorded_at = $6, pin_used = NULLIF($7, '')
		WHERE id = $1
	`, rec.ID, rec.Date, rec.Status, rec.Method, rec.RecordedBy, rec.RecordedAt, rec.PinUsed)
	if err != nil {
		return model.ClassAttendanceRecord{}, mapPgErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ClassAttendanceRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListClassAttendance(ctx context.Context, classID string, from, to time.Time) ([]model.ClassAttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, class_id, date, status, method, recorded_by, recorded_at, COALESCE(pin_used, '')
		FROM class_attendance
		WHERE class_id = $1 AND date >= $2 AND date < $3
		ORDER BY student_id
	`, classID, from, to)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []model.ClassAttendanceRecord
	for rows.Next() {
		var rec model.ClassAttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.Date, &rec.Status, &rec.Method, &rec.RecordedBy, &rec.RecordedAt, &rec.PinUsed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }
