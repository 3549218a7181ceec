package store

import (
	"context"
	"errors"
	"time"

	"presence/internal/model"
)

var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
)

// Store is the persistence boundary for the attendance subsystem. Both
// session creation paths are atomic insert-if-absent operations: callers
// pass a freshly generated record and receive whichever record won the
// race for that day's key. Postgres backs production; the memory
// implementation backs tests and local development.
type Store interface {
	// GetOrCreateDailySession inserts fresh keyed by fresh.DateKey unless a
	// record already exists, then returns the stored record either way.
	GetOrCreateDailySession(ctx context.Context, fresh model.DailySession) (model.DailySession, error)
	GetDailySession(ctx context.Context, dateKey string) (*model.DailySession, error)

	// GetOrCreateClassSession behaves like GetOrCreateDailySession scoped
	// by (fresh.ClassID, fresh.DateKey).
	GetOrCreateClassSession(ctx context.Context, fresh model.ClassSession) (model.ClassSession, error)
	GetClassSession(ctx context.Context, classID, dateKey string) (*model.ClassSession, error)

	// InsertAttendanceEvent fails with ErrConflict when an event already
	// exists for (UserID, SessionID).
	InsertAttendanceEvent(ctx context.Context, evt model.AttendanceEvent) (model.AttendanceEvent, error)
	GetAttendanceEvent(ctx context.Context, userID, sessionID string) (*model.AttendanceEvent, error)
	ListAttendanceEvents(ctx context.Context, userID string, limit, offset int) ([]model.AttendanceEvent, error)

	// FindClassAttendance returns the record for (studentID, classID) with
	// Date in [from, to), or ErrNotFound.
	FindClassAttendance(ctx context.Context, studentID, classID string, from, to time.Time) (*model.ClassAttendanceRecord, error)
	InsertClassAttendance(ctx context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error)
	UpdateClassAttendance(ctx context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error)
	ListClassAttendance(ctx context.Context, classID string, from, to time.Time) ([]model.ClassAttendanceRecord, error)

	FindEnrollment(ctx context.Context, studentID, classID string) (*model.Enrollment, error)
	FindClass(ctx context.Context, classID string) (*model.Class, error)
	UpsertEnrollment(ctx context.Context, e model.Enrollment) error
	UpsertClass(ctx context.Context, c model.Class) error
}
