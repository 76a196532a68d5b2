package core

import "errors"

// Error is the engine's tagged error value: one code from the taxonomy in
// codes.go, a human-readable message, and optional structured details for
// the observability report. Errors cross component boundaries only in this
// form; nothing carries a stack trace to callers.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	cause   error
}

// NewError tags cause with a taxonomy code. Details are free-form report
// context (node id, missing port keys, ...) and may be nil.
func NewError(cause error, code string, details map[string]any) *Error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	return &Error{Code: code, Message: message, Details: details, cause: cause}
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code == "":
		return e.Message
	default:
		return e.Code + ": " + e.Message
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// ErrorCode returns the taxonomy code carried by err (directly or wrapped),
// or "" for errors that never passed through NewError.
func ErrorCode(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return ""
}
