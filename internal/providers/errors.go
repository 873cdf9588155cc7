package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode classifies a failed forward call.
type ErrorCode string

const (
	// CodeUnauthorized means the backend rejected the credentials. Never retried.
	CodeUnauthorized ErrorCode = "PROVIDER_UNAUTHORIZED"
	// CodeForwardFailed means every attempt failed with a non-auth error.
	CodeForwardFailed ErrorCode = "PROVIDER_FORWARD_FAILED"
	// CodeMaxRetriesReached means the retry loop ended without a result or an
	// error, which only happens when no attempt was allowed.
	CodeMaxRetriesReached ErrorCode = "PROVIDER_MAX_RETRIES_REACHED"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrUnsupportedModel = errors.New("model is not supported by provider")
	ErrMissingAPIKey    = errors.New("missing provider credentials")
	ErrEmptyResponse    = errors.New("provider returned an empty response")
)

// ProviderError is the structured error returned by Provider.Forward.
type ProviderError struct {
	Code      ErrorCode
	Provider  string
	Model     string
	Attempts  int
	StartedAt time.Time
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s/%s after %d attempt(s): %v", e.Code, e.Provider, e.Model, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s: %s/%s after %d attempt(s)", e.Code, e.Provider, e.Model, e.Attempts)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches another *ProviderError with the same code, so callers can write
// errors.Is(err, &ProviderError{Code: CodeUnauthorized}).
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	return ok && t.Code == e.Code
}

// HasCode reports whether err is a *ProviderError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}

// StatusError carries the HTTP status of a failed backend call. Backends wrap
// their SDK errors in it so the retry loop can tell auth failures apart.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err carries an HTTP 401.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

func withStatus(code int, err error) error {
	if code == 0 {
		return err
	}
	return &StatusError{StatusCode: code, Err: err}
}
