package model

import "time"

// Role identifies the kind of caller acting on the API.
type Role string

const (
	RoleStudent    Role = "student"
	RoleStaff      Role = "staff"
	RoleInstructor Role = "instructor"
)

// Staff reports whether the role may act on behalf of other users.
func (r Role) Staff() bool {
	return r == RoleStaff || r == RoleInstructor
}

// DailySession is the office-wide rotating secret for one calendar day.
// At most one exists per DateKey; it is never mutated, only superseded
// by the next day's row.
type DailySession struct {
	ID           string    `json:"id"`
	DateKey      string    `json:"date_key"`
	Secret       string    `json:"secret"`
	SessionToken string    `json:"session_token"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClassSession is the per-class rotating PIN/barcode for one calendar day.
// At most one exists per (ClassID, DateKey).
type ClassSession struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	DateKey   string    `json:"date_key"`
	PIN       string    `json:"pin"`
	Barcode   string    `json:"barcode"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceEvent records one office sign-in. At most one exists per
// (UserID, SessionID) pair; a second attempt for the same day is a conflict.
type AttendanceEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	IsLate     bool      `json:"is_late"`
	Validated  bool      `json:"validated"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ClassStatus values for ClassAttendanceRecord.
type ClassStatus string

const (
	StatusPresent ClassStatus = "present"
	StatusAbsent  ClassStatus = "absent"
)

// Method describes how a class attendance record was verified.
type Method string

const (
	MethodPIN     Method = "pin"
	MethodBarcode Method = "barcode"
	MethodManual  Method = "manual"
)

// ClassAttendanceRecord is one student's attendance for one class on one
// day. At most one exists per (StudentID, ClassID, day); a later verified
// submission for the same day updates the row in place.
type ClassAttendanceRecord struct {
	ID         string      `json:"id"`
	StudentID  string      `json:"student_id"`
	ClassID    string      `json:"class_id"`
	Date       time.Time   `json:"date"`
	Status     ClassStatus `json:"status"`
	Method     Method      `json:"method"`
	RecordedBy string      `json:"recorded_by"`
	RecordedAt time.Time   `json:"recorded_at"`
	PinUsed    string      `json:"pin_used,omitempty"`
}

// EnrollmentStatus values for Enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "active"
	EnrollmentInactive EnrollmentStatus = "inactive"
	EnrollmentDropped  EnrollmentStatus = "dropped"
)

// Enrollment links a student to a class.
type Enrollment struct {
	StudentID string           `json:"student_id"`
	ClassID   string           `json:"class_id"`
	Status    EnrollmentStatus `json:"status"`
}

// Class is the minimal class-directory record the decision procedures need.
type Class struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ClassActive is the class directory status required for attendance.
const ClassActive = "active"

// DateKey returns the UTC calendar-date key scoping daily records.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DayBounds returns the inclusive start and exclusive end of t's UTC day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
