package effector

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/relayforge/relayforge/engine/core"
)

// PermanentError marks a provider failure no retry can fix: a missing or
// unsupported provider, a malformed request, an upstream auth rejection.
// Providers wrap such failures before returning them; anything unmarked
// is treated as transient and falls under the executor's retry policy.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as unfixable-by-retry. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a permanent mark anywhere in its
// chain.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

var statusPattern = regexp.MustCompile(`(?i)status(?: code)?[:=]? ?([1-5]\d{2})`)

// ClassifyHTTPStatus marks err permanent when its text carries an embedded
// HTTP client-error status (4xx other than 408 and 429 — request timeout
// and rate limiting stay retryable). Errors with no recognizable status,
// or a 5xx one, pass through unmarked.
func ClassifyHTTPStatus(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	status, _ := strconv.Atoi(m[1])
	if status >= 400 && status < 500 && status != 408 && status != 429 {
		return Permanent(err)
	}
	return err
}

// classifyProviderError tags a provider error with the taxonomy code the
// executor's retry gate keys on: EFFECTOR_PERMANENT for marked errors,
// EFFECTOR_TRANSIENT otherwise.
func classifyProviderError(err error, details map[string]any) *core.Error {
	code := core.CodeEffectorTransient
	if IsPermanent(err) {
		code = core.CodeEffectorPermanent
	}
	return core.NewError(err, code, details)
}
