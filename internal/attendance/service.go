package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"presence/internal/model"
	"presence/internal/otp"
	"presence/internal/store"
)

const (
	secretLength  = 32
	tokenLength   = 20
	barcodeLength = 20
	codeLength    = 6
	pinLength     = 6
)

// Caller is the authenticated identity supplied by the auth layer. It is
// trusted completely; no independent verification happens here.
type Caller struct {
	ID   string
	Role model.Role
}

// Notifier delivers fire-and-forget notifications. Failures are logged and
// never surfaced to the caller.
type Notifier interface {
	Notify(ctx context.Context, channel, message string) error
}

// Cutoff is the local-time lateness boundary for office sign-in. A sign-in
// exactly at the cutoff instant is on time.
type Cutoff struct {
	Location *time.Location
	Hour     int
	Minute   int
}

// Service implements the attendance decision procedures. It is stateless;
// all cross-request coordination happens in the store.
type Service struct {
	store     store.Store
	notifier  Notifier
	cutoff    Cutoff
	closeHour int // class sessions expire at this local hour
	now       func() time.Time
}

// NewService wires the decision procedures. notifier may be nil.
func NewService(st store.Store, notifier Notifier, cutoff Cutoff, classCloseHour int) *Service {
	if cutoff.Location == nil {
		cutoff.Location = time.UTC
	}
	if classCloseHour <= 0 || classCloseHour > 23 {
		classCloseHour = 18
	}
	return &Service{
		store:     st,
		notifier:  notifier,
		cutoff:    cutoff,
		closeHour: classCloseHour,
		now:       time.Now,
	}
}

// OfficeSession returns today's daily session, creating it on first access.
// The store's conditional insert resolves concurrent first access; losing
// writers receive the winner's row. The 6-digit code is persisted in
// plaintext on purpose: it is displayed publicly and compared by direct
// equality at sign-in.
func (s *Service) OfficeSession(ctx context.Context) (model.DailySession, error) {
	now := s.now().UTC()
	dateKey := model.DateKey(now)

	secret, err := otp.GenerateCode(secretLength, otp.Alphanumeric)
	if err != nil {
		return model.DailySession{}, err
	}
	token, err := otp.GenerateCode(tokenLength, otp.Alphanumeric)
	if err != nil {
		return model.DailySession{}, err
	}
	_, dayEnd := model.DayBounds(now)
	bundle, err := otp.Issue(codeLength, dayEnd.Sub(now))
	if err != nil {
		return model.DailySession{}, err
	}

	sess, err := s.store.GetOrCreateDailySession(ctx, model.DailySession{
		DateKey:      dateKey,
		Secret:       secret,
		SessionToken: token,
		Code:         bundle.Plaintext,
	})
	if err != nil {
		return model.DailySession{}, fmt.Errorf("daily session: %w", err)
	}
	sessionRequests.WithLabelValues("daily").Inc()
	return sess, nil
}

// SignInInput carries the presence factors for office sign-in. Code or
// Secret is required; Session is optional alongside Secret.
type SignInInput struct {
	Code    string
	Secret  string
	Session string
}

// SignIn validates a presence factor against today's daily session and
// records one attendance event per (caller, session). A second valid
// submission for the same day is a conflict, not an upsert.
func (s *Service) SignIn(ctx context.Context, caller Caller, in SignInInput) (model.AttendanceEvent, error) {
	if caller.ID == "" {
		return model.AttendanceEvent{}, ErrUnauthenticated
	}
	if in.Code == "" && in.Secret == "" {
		signinTotal.WithLabelValues("unauthorized").Inc()
		return model.AttendanceEvent{}, ErrUnauthorized
	}

	sess, err := s.OfficeSession(ctx)
	if err != nil {
		return model.AttendanceEvent{}, err
	}

	// Every supplied factor must match; a wrong one rejects the sign-in
	// even when another factor is correct.
	if in.Code != "" && in.Code != sess.Code {
		signinTotal.WithLabelValues("unauthorized").Inc()
		return model.AttendanceEvent{}, ErrUnauthorized
	}
	if in.Secret != "" && in.Secret != sess.Secret {
		signinTotal.WithLabelValues("unauthorized").Inc()
		return model.AttendanceEvent{}, ErrUnauthorized
	}
	if in.Session != "" && in.Session != sess.SessionToken {
		signinTotal.WithLabelValues("unauthorized").Inc()
		return model.AttendanceEvent{}, ErrUnauthorized
	}

	if existing, err := s.store.GetAttendanceEvent(ctx, caller.ID, sess.ID); err == nil && existing != nil {
		signinTotal.WithLabelValues("conflict").Inc()
		return model.AttendanceEvent{}, ErrConflict
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.AttendanceEvent{}, err
	}

	now := s.now()
	evt, err := s.store.InsertAttendanceEvent(ctx, model.AttendanceEvent{
		UserID:     caller.ID,
		SessionID:  sess.ID,
		IsLate:     s.isLate(now),
		Validated:  true,
		OccurredAt: now.UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the duplicate race; the constraint is the backstop.
			signinTotal.WithLabelValues("conflict").Inc()
			return model.AttendanceEvent{}, ErrConflict
		}
		return model.AttendanceEvent{}, err
	}

	signinTotal.WithLabelValues("ok").Inc()
	if evt.IsLate {
		lateSignins.Inc()
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("user %s signed in at %s (late=%t)", evt.UserID, evt.OccurredAt.Format(time.RFC3339), evt.IsLate)
		if nerr := s.notifier.Notify(ctx, "attendance", msg); nerr != nil {
			log.Printf("sign-in notification failed: %v", nerr)
		}
	}
	return evt, nil
}

// isLate reports whether t falls after the configured local cutoff for
// t's own day. Exactly at the cutoff is on time.
func (s *Service) isLate(t time.Time) bool {
	local := t.In(s.cutoff.Location)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), s.cutoff.Hour, s.cutoff.Minute, 0, 0, s.cutoff.Location)
	return local.After(cutoff)
}

// RotateClassSession creates today's PIN/barcode session for a class, or
// returns the existing one. Staff and instructors only.
func (s *Service) RotateClassSession(ctx context.Context, caller Caller, classID string) (model.ClassSession, error) {
	if caller.ID == "" {
		return model.ClassSession{}, ErrUnauthenticated
	}
	if !caller.Role.Staff() {
		return model.ClassSession{}, ErrForbidden
	}
	if err := s.requireActiveClass(ctx, classID); err != nil {
		return model.ClassSession{}, err
	}

	pin, err := otp.GenerateCode(pinLength, otp.Numeric)
	if err != nil {
		return model.ClassSession{}, err
	}
	barcode, err := otp.GenerateCode(barcodeLength, otp.Alphanumeric)
	if err != nil {
		return model.ClassSession{}, err
	}

	now := s.now()
	local := now.In(s.cutoff.Location)
	expires := time.Date(local.Year(), local.Month(), local.Day(), s.closeHour, 0, 0, 0, s.cutoff.Location)

	sess, err := s.store.GetOrCreateClassSession(ctx, model.ClassSession{
		ClassID:   classID,
		DateKey:   model.DateKey(now),
		PIN:       pin,
		Barcode:   barcode,
		ExpiresAt: expires.UTC(),
	})
	if err != nil {
		return model.ClassSession{}, fmt.Errorf("class session: %w", err)
	}
	sessionRequests.WithLabelValues("class").Inc()
	return sess, nil
}

// ClassSessionToday returns today's session for a class, read-only.
// Students cannot create one by reading.
func (s *Service) ClassSessionToday(ctx context.Context, caller Caller, classID string) (model.ClassSession, error) {
	if caller.ID == "" {
		return model.ClassSession{}, ErrUnauthenticated
	}
	sess, err := s.store.GetClassSession(ctx, classID, model.DateKey(s.now()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ClassSession{}, ErrNotFound
		}
		return model.ClassSession{}, err
	}
	return *sess, nil
}

// RecordInput is one class attendance submission.
type RecordInput struct {
	StudentID string
	ClassID   string
	Date      time.Time
	Status    model.ClassStatus
	Method    model.Method
	PIN       string
	Barcode   string
}

// RecordClassAttendance runs the ordered hard-stop checks and then creates
// or updates the day's record. A later verified submission for the same day
// overwrites the earlier one; that upsert is policy, not an error.
func (s *Service) RecordClassAttendance(ctx context.Context, caller Caller, in RecordInput) (model.ClassAttendanceRecord, error) {
	if caller.ID == "" {
		return model.ClassAttendanceRecord{}, ErrUnauthenticated
	}
	if !caller.Role.Staff() && caller.ID != in.StudentID {
		return model.ClassAttendanceRecord{}, ErrForbidden
	}
	if in.Method == model.MethodManual && !caller.Role.Staff() {
		return model.ClassAttendanceRecord{}, ErrForbidden
	}
	if in.Status != model.StatusPresent && in.Status != model.StatusAbsent {
		return model.ClassAttendanceRecord{}, fmt.Errorf("invalid status %q", in.Status)
	}

	enr, err := s.store.FindEnrollment(ctx, in.StudentID, in.ClassID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ClassAttendanceRecord{}, ErrNotEnrolled
		}
		return model.ClassAttendanceRecord{}, err
	}
	if enr.Status != model.EnrollmentActive {
		return model.ClassAttendanceRecord{}, ErrEnrollmentInactive
	}
	if err := s.requireActiveClass(ctx, in.ClassID); err != nil {
		return model.ClassAttendanceRecord{}, err
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}

	pinUsed := ""
	switch in.Method {
	case model.MethodPIN, model.MethodBarcode:
		// The session is looked up at the supplied date's key, not "now",
		// so same-day backfill verifies against that day's code.
		if err := s.verifyClassCode(ctx, in, date); err != nil {
			classAttendanceTotal.WithLabelValues("rejected").Inc()
			return model.ClassAttendanceRecord{}, err
		}
		if in.Method == model.MethodPIN {
			pinUsed = in.PIN
		}
	case model.MethodManual:
		// Trusted staff-entered path, no code verification.
	default:
		return model.ClassAttendanceRecord{}, fmt.Errorf("invalid method %q", in.Method)
	}

	rec := model.ClassAttendanceRecord{
		StudentID:  in.StudentID,
		ClassID:    in.ClassID,
		Date:       date.UTC(),
		Status:     in.Status,
		Method:     in.Method,
		RecordedBy: caller.ID,
		RecordedAt: s.now().UTC(),
		PinUsed:    pinUsed,
	}

	out, err := s.upsertRecord(ctx, rec)
	if err != nil {
		return model.ClassAttendanceRecord{}, err
	}
	classAttendanceTotal.WithLabelValues("ok").Inc()
	return out, nil
}

func (s *Service) verifyClassCode(ctx context.Context, in RecordInput, date time.Time) error {
	sess, err := s.store.GetClassSession(ctx, in.ClassID, model.DateKey(date))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoActiveSession
		}
		return err
	}
	if s.now().UTC().After(sess.ExpiresAt) {
		return ErrSessionExpired
	}
	switch in.Method {
	case model.MethodPIN:
		if in.PIN == "" || in.PIN != sess.PIN {
			invalidCodes.Inc()
			return ErrInvalidCode
		}
	case model.MethodBarcode:
		if in.Barcode == "" || in.Barcode != sess.Barcode {
			invalidCodes.Inc()
			return ErrInvalidCode
		}
	}
	return nil
}

// upsertRecord applies last-verified-submission-wins for the record's day.
// A losing concurrent insert converges to an update via the uniqueness
// constraint.
func (s *Service) upsertRecord(ctx context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error) {
	from, to := model.DayBounds(rec.Date)

	existing, err := s.store.FindClassAttendance(ctx, rec.StudentID, rec.ClassID, from, to)
	switch {
	case err == nil:
		rec.ID = existing.ID
		return s.store.UpdateClassAttendance(ctx, rec)
	case errors.Is(err, store.ErrNotFound):
		out, ierr := s.store.InsertClassAttendance(ctx, rec)
		if errors.Is(ierr, store.ErrConflict) {
			// Another writer created the row between our check and insert.
			winner, ferr := s.store.FindClassAttendance(ctx, rec.StudentID, rec.ClassID, from, to)
			if ferr != nil {
				return model.ClassAttendanceRecord{}, ferr
			}
			rec.ID = winner.ID
			return s.store.UpdateClassAttendance(ctx, rec)
		}
		return out, ierr
	default:
		return model.ClassAttendanceRecord{}, err
	}
}

func (s *Service) requireActiveClass(ctx context.Context, classID string) error {
	class, err := s.store.FindClass(ctx, classID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClassInactive
		}
		return err
	}
	if class.Status != model.ClassActive {
		return ErrClassInactive
	}
	return nil
}

// ListEvents exposes recent sign-in events for staff screens.
func (s *Service) ListEvents(ctx context.Context, caller Caller, userID string, limit, offset int) ([]model.AttendanceEvent, error) {
	if caller.ID == "" {
		return nil, ErrUnauthenticated
	}
	if !caller.Role.Staff() && userID != caller.ID {
		return nil, ErrForbidden
	}
	return s.store.ListAttendanceEvents(ctx, userID, limit, offset)
}
