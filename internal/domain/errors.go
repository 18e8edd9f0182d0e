package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies one member of the closed automation error taxonomy.
type ErrorCode string

const (
	// CodeSessionUnavailable means the account's session slot stayed busy past the re-enqueue limit
	CodeSessionUnavailable ErrorCode = "session_unavailable"

	// CodeTimeout means an action exceeded its per-kind deadline
	CodeTimeout ErrorCode = "timeout"

	// CodeNetworkFailure covers transport and page-load failures
	CodeNetworkFailure ErrorCode = "network_failure"

	// CodeTerminalFailure covers bans, suspensions and invalid credentials
	CodeTerminalFailure ErrorCode = "terminal_failure"

	// CodeInvalidSchedule rejects a due time that is not in the future
	CodeInvalidSchedule ErrorCode = "invalid_schedule"

	// CodeInvalidTransition rejects an illegal scheduled post status change
	CodeInvalidTransition ErrorCode = "invalid_transition"

	// CodeDatabaseError wraps a persistence collaborator failure
	CodeDatabaseError ErrorCode = "database_error"

	// CodeNotFound means a referenced account, post or batch does not exist
	CodeNotFound ErrorCode = "not_found"

	// CodeValidation rejects malformed input at the API boundary
	CodeValidation ErrorCode = "validation"

	// CodeCancelled marks work items skipped because their batch was cancelled
	CodeCancelled ErrorCode = "cancelled"
)

// Error is the single error type produced by the automation core.
// Retryable is fixed by the constructor for each code.
type Error struct {
	Code      ErrorCode
	Retryable bool
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrSessionUnavailable = &Error{Code: CodeSessionUnavailable}
	ErrTimeout            = &Error{Code: CodeTimeout}
	ErrNetworkFailure     = &Error{Code: CodeNetworkFailure}
	ErrTerminalFailure    = &Error{Code: CodeTerminalFailure}
	ErrInvalidSchedule    = &Error{Code: CodeInvalidSchedule}
	ErrInvalidTransition  = &Error{Code: CodeInvalidTransition}
	ErrDatabase           = &Error{Code: CodeDatabaseError}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrValidation         = &Error{Code: CodeValidation}
	ErrCancelled          = &Error{Code: CodeCancelled}
)

func SessionUnavailable(accountID string, attempts int) *Error {
	return &Error{
		Code:   CodeSessionUnavailable,
		Reason: fmt.Sprintf("session for account %s still busy after %d re-enqueues", accountID, attempts),
	}
}

func Timeout(reason string, err error) *Error {
	return &Error{Code: CodeTimeout, Retryable: true, Reason: reason, Err: err}
}

func NetworkFailure(reason string, err error) *Error {
	return &Error{Code: CodeNetworkFailure, Retryable: true, Reason: reason, Err: err}
}

func TerminalFailure(reason string) *Error {
	return &Error{Code: CodeTerminalFailure, Reason: reason}
}

func InvalidSchedule(reason string) *Error {
	return &Error{Code: CodeInvalidSchedule, Reason: reason}
}

func InvalidTransition(from, to PostStatus) *Error {
	return &Error{Code: CodeInvalidTransition, Reason: fmt.Sprintf("cannot move post from %s to %s", from, to)}
}

func DatabaseError(op string, err error) *Error {
	return &Error{Code: CodeDatabaseError, Reason: op, Err: err}
}

func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Reason: fmt.Sprintf("%s %s not found", kind, id)}
}

func Validation(reason string) *Error {
	return &Error{Code: CodeValidation, Reason: reason}
}

func Cancelled(batchID string) *Error {
	return &Error{Code: CodeCancelled, Reason: fmt.Sprintf("batch %s cancelled before dispatch", batchID)}
}

// AsError extracts the *Error from err's chain, or returns nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the taxonomy code for err; unknown errors report "".
func CodeOf(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}
