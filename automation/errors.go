package automation

import "errors"

// Operation errors. Controllers map these onto HTTP statuses:
// not-found errors to 404, transition errors to 400, transport errors
// to 502; anything else is a store failure and surfaces as 500.
var (
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrSequenceEmpty      = errors.New("sequence has no steps")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrContactNotFound    = errors.New("contact not found")
	ErrListNotFound       = errors.New("contact list not found")
	ErrStepNotFound       = errors.New("sequence step not found")

	ErrAlreadyEnrolled   = errors.New("contact already has an active or paused enrollment")
	ErrInvalidTransition = errors.New("invalid enrollment state transition")

	// ErrAlreadyProcessed is returned by the executor when the scheduled
	// email is no longer in scheduled state: a retry after a crash, a
	// concurrent dispatch, or a just-cancelled row.
	ErrAlreadyProcessed = errors.New("scheduled email already processed")

	ErrContactSuppressed = errors.New("contact is bounced, unsubscribed or do-not-contact")
)

// TransportError wraps a mail transport failure so callers can
// distinguish it from store failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "mail transport failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
