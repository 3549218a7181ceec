package attendance

import "errors"

// Typed outcomes of the decision procedures. Every check is a hard stop;
// callers map these to transport status codes at the edge.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotEnrolled        = errors.New("not_enrolled")
	ErrEnrollmentInactive = errors.New("enrollment_inactive")
	ErrClassInactive      = errors.New("class_inactive")
	ErrNoActiveSession    = errors.New("no_active_session")
	ErrSessionExpired     = errors.New("session_expired")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
)
