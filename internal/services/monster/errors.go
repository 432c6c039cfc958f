package monster

import (
	"errors"
	"fmt"
)

// Kind classifies the failures the client can report.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindHTTPStatus
	KindDecode
	KindJobFailed
	KindTimeout
	KindCanceled
	KindFileTooLarge
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	case KindJobFailed:
		return "job_failed"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindFileTooLarge:
		return "file_too_large"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is returned by every client operation. Op is the layer description
// prepended to the message; Err is the underlying cause and stays reachable
// through errors.Is and errors.As.
type Error struct {
	Kind       Kind
	Op         string
	ProcessID  string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Op
	case e.Op == "":
		return e.Err.Error()
	default:
		return e.Op + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode returns the HTTP status code recorded in err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// wrapError prefixes err with op, keeping its kind and job details.
func wrapError(op string, err error) error {
	wrapped := &Error{Kind: KindOf(err), Op: op, Err: err}
	var inner *Error
	if errors.As(err, &inner) {
		wrapped.ProcessID = inner.ProcessID
		wrapped.StatusCode = inner.StatusCode
	}
	return wrapped
}

func statusError(op string, code int) *Error {
	return &Error{
		Kind:       KindHTTPStatus,
		Op:         op,
		StatusCode: code,
		Err:        fmt.Errorf("request failed with status code %d", code),
	}
}
