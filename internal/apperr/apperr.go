// Package apperr defines the canonical error taxonomy for CCCC daemon ops
// (spec §6.1, §7). Op handlers return a Go error; the IPC dispatcher
// converts it to a response at the boundary instead of using exceptions
// as control flow.
package apperr

import "fmt"

// Code is one of the canonical error codes from spec §6.1.
type Code string

const (
	MissingGroupID    Code = "missing_group_id"
	GroupNotFound     Code = "group_not_found"
	ActorNotFound     Code = "actor_not_found"
	PermissionDenied  Code = "permission_denied"
	InvalidRequest    Code = "invalid_request"
	InvalidPatch      Code = "invalid_patch"
	ScopeNotAttached  Code = "scope_not_attached"
	InvalidProjectRoot Code = "invalid_project_root"
	VersionConflict   Code = "version_conflict"
	DaemonUnavailable Code = "daemon_unavailable"
	StreamOverflow    Code = "stream_overflow"
	InternalError     Code = "internal_error"
	ActorIDMismatch   Code = "actor_id_mismatch"
)

// Error is the structured error type returned by op handlers.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with optional details.
func New(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func NotFound(code Code, message string) *Error { return New(code, message, nil) }
func Invalid(message string) *Error             { return New(InvalidRequest, message, nil) }
func Permission(message string) *Error          { return New(PermissionDenied, message, nil) }

// Internal wraps an unexpected error as internal_error, preserving the
// original error text the way an uncaught-exception boundary would
// surface the exception class name (spec §7 "Unexpected errors").
func Internal(err error) *Error {
	if err == nil {
		return New(InternalError, "unknown error", nil)
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return New(InternalError, err.Error(), nil)
}

// VersionConflictErr builds the version_conflict error with the expected
// and current values in Details, as spec §6.1 requires.
func VersionConflictErr(expected, current int) *Error {
	return New(VersionConflict, "automation version conflict", map[string]any{
		"expected_version": expected,
		"current_version":  current,
	})
}

// AsResponse converts any error into (code, message, details) for the
// wire response. Non-*Error values become internal_error.
func AsResponse(err error) (Code, string, map[string]any) {
	if err == nil {
		return "", "", nil
	}
	ae := Internal(err)
	return ae.Code, ae.Message, ae.Details
}
