package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrLocked         = errors.New("attendance for this class and date is closed and can no longer be edited")
	ErrSubmitInFlight = errors.New("attendance is already being saved")
	ErrUnknownStudent = errors.New("student is not on the roster of the selected class")
	ErrNoSelection    = errors.New("select a class and a date first")
	ErrInvalidClass   = errors.New("invalid class id")

	// ErrSelectionPending is returned for edits and submits made while the
	// view still shows an earlier class or date than the one selected.
	ErrSelectionPending = errors.New("the selected class and date are not loaded yet")

	// errStale marks events that belong to a superseded load.
	errStale = errors.New("stale event")
)

// ValidationError reports a precondition failure detected before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// RosterLoadError is returned when the roster of a class cannot be loaded.
type RosterLoadError struct {
	ClassID int64
	Err     error
}

func (e *RosterLoadError) Error() string {
	return fmt.Sprintf("load roster for class %d: %v", e.ClassID, e.Err)
}

func (e *RosterLoadError) Unwrap() error { return e.Err }

// RecordFetchError is returned when the attendance collection cannot be fetched.
type RecordFetchError struct {
	Err error
}

func (e *RecordFetchError) Error() string {
	return fmt.Sprintf("fetch attendance records: %v", e.Err)
}

func (e *RecordFetchError) Unwrap() error { return e.Err }

// SubmitError is returned when the batch upsert fails. The draft is kept.
type SubmitError struct {
	Selection Selection
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attendance (%s): %v", e.Selection, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// IdentityResolutionError means the acting teacher could not be resolved.
// No recording session can exist without one.
type IdentityResolutionError struct {
	Username string
	Err      error
}

func (e *IdentityResolutionError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("resolve teacher identity: %v", e.Err)
	}
	return fmt.Sprintf("resolve teacher %q: %v", e.Username, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

func rosterLoadError(classID int64, err error) error {
	var rle *RosterLoadError
	if errors.As(err, &rle) {
		return err
	}
	return &RosterLoadError{ClassID: classID, Err: err}
}
