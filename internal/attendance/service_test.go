package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"presence/internal/model"
	"presence/internal/store/memory"
)

var (
	student    = Caller{ID: "stu1", Role: model.RoleStudent}
	instructor = Caller{ID: "teach1", Role: model.RoleInstructor}
	staff      = Caller{ID: "admin1", Role: model.RoleStaff}
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	svc := NewService(st, nil, Cutoff{Location: time.UTC, Hour: 9, Minute: 30}, 18)
	return svc, st
}

func seedClass(t *testing.T, st *memory.Store, classID string) {
	t.Helper()
	ctx := context.Background()
	assert.NoError(t, st.UpsertClass(ctx, model.Class{ID: classID, Name: "Algebra", Status: model.ClassActive}))
	assert.NoError(t, st.UpsertEnrollment(ctx, model.Enrollment{StudentID: "stu1", ClassID: classID, Status: model.EnrollmentActive}))
}

func TestOfficeSessionRotatesDaily(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	day1 := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	first, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "2025-01-10", first.DateKey)
	assert.Len(t, first.Code, 6)
	assert.Len(t, first.Secret, 32)

	// Same day: same session back, values unchanged.
	again, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Code, again.Code)

	// Next day: a new session supersedes it.
	svc.now = func() time.Time { return day1.Add(24 * time.Hour) }
	next, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, "2025-01-11", next.DateKey)
}

func TestSignInWithCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	sess, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)

	evt, err := svc.SignIn(ctx, student, SignInInput{Code: sess.Code})
	assert.NoError(t, err)
	assert.Equal(t, "stu1", evt.UserID)
	assert.Equal(t, sess.ID, evt.SessionID)
	assert.True(t, evt.Validated)
	assert.False(t, evt.IsLate)

	// Second valid submission for the same day is a conflict.
	_, err = svc.SignIn(ctx, student, SignInInput{Code: sess.Code})
	assert.ErrorIs(t, err, ErrConflict)

	// Next day the code no longer matches the (new) session.
	svc.now = func() time.Time { return time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC) }
	_, err = svc.SignIn(ctx, student, SignInInput{Code: sess.Code})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignInWithSecret(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	sess, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)

	// Secret plus matching session token.
	evt, err := svc.SignIn(ctx, student, SignInInput{Secret: sess.Secret, Session: sess.SessionToken})
	assert.NoError(t, err)
	assert.True(t, evt.Validated)

	// Secret alone is enough for another caller.
	_, err = svc.SignIn(ctx, instructor, SignInInput{Secret: sess.Secret})
	assert.NoError(t, err)

	// Wrong session token rejects even with the right secret.
	_, err = svc.SignIn(ctx, staff, SignInInput{Secret: sess.Secret, Session: "bogus"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Wrong secret.
	_, err = svc.SignIn(ctx, staff, SignInInput{Secret: "bogus"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignInRejectsMixedWrongFactors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	sess, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)

	// A correct code does not excuse a wrong secret or session token.
	_, err = svc.SignIn(ctx, student, SignInInput{Code: sess.Code, Secret: "bogus", Session: "bogus"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.SignIn(ctx, student, SignInInput{Code: sess.Code, Secret: "bogus"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.SignIn(ctx, student, SignInInput{Code: sess.Code, Session: "bogus"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// All supplied factors correct still signs in.
	evt, err := svc.SignIn(ctx, student, SignInInput{Code: sess.Code, Secret: sess.Secret, Session: sess.SessionToken})
	assert.NoError(t, err)
	assert.True(t, evt.Validated)
}

func TestSignInRequiresFactor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignIn(ctx, student, SignInInput{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.SignIn(ctx, Caller{}, SignInInput{Code: "123456"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSignInLatenessBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	st := memory.NewStore()
	svc := NewService(st, nil, Cutoff{Location: loc, Hour: 9, Minute: 30}, 18)
	ctx := context.Background()

	atCutoff := time.Date(2025, 1, 10, 9, 30, 0, 0, loc)

	// Exactly at the cutoff instant: not late.
	svc.now = func() time.Time { return atCutoff }
	sess, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)
	evt, err := svc.SignIn(ctx, student, SignInInput{Code: sess.Code})
	assert.NoError(t, err)
	assert.False(t, evt.IsLate)

	// One second later: late.
	svc.now = func() time.Time { return atCutoff.Add(time.Second) }
	evt, err = svc.SignIn(ctx, instructor, SignInInput{Code: sess.Code})
	assert.NoError(t, err)
	assert.True(t, evt.IsLate)
}

func TestRotateClassSession(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	_, err := svc.RotateClassSession(ctx, student, "class-1")
	assert.ErrorIs(t, err, ErrForbidden)

	sess, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)
	assert.Len(t, sess.PIN, 6)
	assert.Len(t, sess.Barcode, 20)
	assert.Equal(t, "2025-01-10", sess.DateKey)
	assert.True(t, sess.ExpiresAt.After(svc.now()))

	// Rotation within the same day returns the existing session.
	same, err := svc.RotateClassSession(ctx, staff, "class-1")
	assert.NoError(t, err)
	assert.Equal(t, sess.ID, same.ID)
	assert.Equal(t, sess.PIN, same.PIN)

	_, err = svc.RotateClassSession(ctx, instructor, "missing-class")
	assert.ErrorIs(t, err, ErrClassInactive)
}

func TestClassSessionTodayReadOnly(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	// Reading never creates a session.
	_, err := svc.ClassSessionToday(ctx, student, "class-1")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	got, err := svc.ClassSessionToday(ctx, student, "class-1")
	assert.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestRecordClassAttendanceWithPIN(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")
	now := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sess, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	rec, err := svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1",
		ClassID:   "class-1",
		Date:      now,
		Status:    model.StatusPresent,
		Method:    model.MethodPIN,
		PIN:       sess.PIN,
	})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPresent, rec.Status)
	assert.Equal(t, sess.PIN, rec.PinUsed)
	assert.Equal(t, "stu1", rec.RecordedBy)
}

func TestRecordClassAttendanceUpsert(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")
	now := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sess, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	first, err := svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: now,
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: sess.PIN,
	})
	assert.NoError(t, err)

	// A second verified submission the same day updates in place; the
	// second call's fields win.
	second, err := svc.RecordClassAttendance(ctx, instructor, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: now.Add(2 * time.Hour),
		Status: model.StatusAbsent, Method: model.MethodManual,
	})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.StatusAbsent, second.Status)
	assert.Equal(t, model.MethodManual, second.Method)
	assert.Equal(t, "teach1", second.RecordedBy)
	assert.Equal(t, now.Add(2*time.Hour), second.Date)

	// The stored row reflects the second call's fields, date included.
	from, to := model.DayBounds(now)
	records, err := st.ListClassAttendance(ctx, "class-1", from, to)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, now.Add(2*time.Hour), records[0].Date)
	assert.Equal(t, model.StatusAbsent, records[0].Status)
}

func TestRecordClassAttendanceAuthorization(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")

	_, err := svc.RecordClassAttendance(ctx, Caller{}, RecordInput{StudentID: "stu1", ClassID: "class-1"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// A student cannot act for another student.
	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu2", ClassID: "class-1",
		Status: model.StatusPresent, Method: model.MethodManual,
	})
	assert.ErrorIs(t, err, ErrForbidden)

	// Manual entry is a staff-only path.
	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1",
		Status: model.StatusPresent, Method: model.MethodManual,
	})
	assert.ErrorIs(t, err, ErrForbidden)

	// Staff may act on behalf of any student.
	_, err = svc.RecordClassAttendance(ctx, instructor, RecordInput{
		StudentID: "stu1", ClassID: "class-1",
		Status: model.StatusPresent, Method: model.MethodManual,
	})
	assert.NoError(t, err)
}

func TestRecordClassAttendanceEnrollmentChecks(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	assert.NoError(t, st.UpsertClass(ctx, model.Class{ID: "class-1", Status: model.ClassActive}))

	_, err := svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1",
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: "123456",
	})
	assert.ErrorIs(t, err, ErrNotEnrolled)

	assert.NoError(t, st.UpsertEnrollment(ctx, model.Enrollment{StudentID: "stu1", ClassID: "class-1", Status: model.EnrollmentDropped}))
	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1",
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: "123456",
	})
	assert.ErrorIs(t, err, ErrEnrollmentInactive)

	assert.NoError(t, st.UpsertEnrollment(ctx, model.Enrollment{StudentID: "stu1", ClassID: "class-1", Status: model.EnrollmentActive}))
	assert.NoError(t, st.UpsertClass(ctx, model.Class{ID: "class-1", Status: "archived"}))
	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1",
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: "123456",
	})
	assert.ErrorIs(t, err, ErrClassInactive)
}

func TestRecordClassAttendanceCodeChecks(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")
	now := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// No session for today yet.
	_, err := svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: now,
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: "123456",
	})
	assert.ErrorIs(t, err, ErrNoActiveSession)

	sess, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	wrong := "000000"
	if wrong == sess.PIN {
		wrong = "000001"
	}
	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: now,
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: wrong,
	})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: now,
		Status: model.StatusPresent, Method: model.MethodBarcode, Barcode: "not-the-barcode",
	})
	assert.ErrorIs(t, err, ErrInvalidCode)

	// After the session expires the day's code stops working.
	svc.now = func() time.Time { return sess.ExpiresAt.Add(time.Minute) }
	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: sess.ExpiresAt.Add(time.Minute),
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: sess.PIN,
	})
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRecordClassAttendanceStalePIN(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")

	day1 := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }
	old, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	// Next day a new session exists; yesterday's PIN must not verify
	// against it even though it matched yesterday.
	day2 := day1.Add(24 * time.Hour)
	svc.now = func() time.Time { return day2 }
	fresh, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	if old.PIN != fresh.PIN {
		_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
			StudentID: "stu1", ClassID: "class-1", Date: day2,
			Status: model.StatusPresent, Method: model.MethodPIN, PIN: old.PIN,
		})
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err = svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: day2,
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: fresh.PIN,
	})
	assert.NoError(t, err)
}

func TestRecordClassAttendanceBackfillUsesSuppliedDate(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedClass(t, st, "class-1")

	morning := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return morning }
	sess, err := svc.RotateClassSession(ctx, instructor, "class-1")
	assert.NoError(t, err)

	// Later the same day, a submission dated back to the morning still
	// verifies against that day's session.
	afternoon := morning.Add(5 * time.Hour)
	svc.now = func() time.Time { return afternoon }
	rec, err := svc.RecordClassAttendance(ctx, student, RecordInput{
		StudentID: "stu1", ClassID: "class-1", Date: morning,
		Status: model.StatusPresent, Method: model.MethodPIN, PIN: sess.PIN,
	})
	assert.NoError(t, err)
	assert.Equal(t, morning, rec.Date)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, string, string) error {
	f.calls++
	return errors.New("webhook down")
}

func TestSignInNotificationFailureIgnored(t *testing.T) {
	st := memory.NewStore()
	n := &failingNotifier{}
	svc := NewService(st, n, Cutoff{Location: time.UTC, Hour: 9, Minute: 30}, 18)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	sess, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)

	// A broken notifier must not fail the sign-in.
	evt, err := svc.SignIn(ctx, student, SignInInput{Code: sess.Code})
	assert.NoError(t, err)
	assert.True(t, evt.Validated)
	assert.Equal(t, 1, n.calls)
}

func TestListEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	sess, err := svc.OfficeSession(ctx)
	assert.NoError(t, err)
	_, err = svc.SignIn(ctx, student, SignInInput{Code: sess.Code})
	assert.NoError(t, err)

	// A student may only list their own events.
	_, err = svc.ListEvents(ctx, student, "someone-else", 10, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	own, err := svc.ListEvents(ctx, student, "stu1", 10, 0)
	assert.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := svc.ListEvents(ctx, staff, "", 10, 0)
	assert.NoError(t, err)
	assert.Len(t, all, 1)
}
