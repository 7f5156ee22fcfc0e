package stores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates provider failures.
type Kind string

const (
	KindAuthExpired Kind = "authExpired"
	KindTimeout     Kind = "timeout"
	KindTransport   Kind = "transportError"
	KindNotFound    Kind = "notFound"
)

var (
	ErrAuthExpired = &Error{Kind: KindAuthExpired}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrTransport   = &Error{Kind: KindTransport}
	ErrNotFound    = &Error{Kind: KindNotFound}

	// ErrUnsupported is returned by providers lacking an operation, such
	// as cart access on a search-only store.
	ErrUnsupported = errors.New("operation not supported by this store")
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.StatusCode != 0 {
		s += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout)
// works for every timeout regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Transient reports whether the failure may succeed on a later attempt.
func (e *Error) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindTransport
}

// Fail builds a classified error for op.
func Fail(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify wraps an arbitrary error into an *Error. Errors that are
// already classified are returned unchanged; deadlines map to timeouts and
// everything else to transport failures.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, ErrUnsupported) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fail(KindTimeout, op, err)
	}
	return Fail(KindTransport, op, err)
}

// KindForStatus maps an HTTP status code to a failure kind. ok is false
// for successful responses.
func KindForStatus(code int) (kind Kind, ok bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuthExpired, true
	case code == http.StatusNotFound:
		return KindNotFound, true
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout, true
	default:
		return KindTransport, true
	}
}

// IsTransient reports whether err is a timeout or transport failure.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Transient()
}
