package scorer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind is the stable name of a failure, exposed to callers in error bodies.
type Kind string

const (
	KindValidation           Kind = "ValidationFailure"
	KindRemoteUnavailable    Kind = "RemoteUnavailable"
	KindRemoteRejected       Kind = "RemoteRejected"
	KindLocalTimeout         Kind = "LocalTimeout"
	KindLocalProcessError    Kind = "LocalProcessError"
	KindLocalMalformedOutput Kind = "LocalMalformedOutput"
	// KindOverloaded is returned by the admission gate when no slot frees up in time.
	KindOverloaded Kind = "Overloaded"
)

// Failure is the error returned by every Scorer and by the dispatcher.
type Failure struct {
	Kind Kind
	// Status and Body describe the last upstream answer (RemoteRejected).
	Status int
	Body   string
	// ExitCode and Stderr describe a local scorer that exited non-zero.
	ExitCode int
	Stderr   string
	// Raw keeps an excerpt of unusable local output for diagnostics only.
	Raw string
	Err error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Summary())
	switch {
	case f.Kind == KindRemoteRejected && f.Status > 0:
		fmt.Fprintf(&b, " (status %d)", f.Status)
	case f.Kind == KindLocalProcessError:
		fmt.Fprintf(&b, " (exit code %d)", f.ExitCode)
	}
	if d := f.Details(); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Summary is a short human-readable description of the kind.
func (f *Failure) Summary() string {
	switch f.Kind {
	case KindValidation:
		return "expected an 'input' object/list or a 'values' list"
	case KindRemoteUnavailable:
		return "ML service unavailable"
	case KindRemoteRejected:
		return "ML service error"
	case KindLocalTimeout:
		return "local scorer timed out"
	case KindLocalProcessError:
		return "local scorer failed"
	case KindLocalMalformedOutput:
		return "local scorer produced unusable output"
	case KindOverloaded:
		return "scorer overloaded"
	default:
		return "scoring failed"
	}
}

// Details returns the diagnostic text surfaced to callers.
func (f *Failure) Details() string {
	switch f.Kind {
	case KindRemoteRejected:
		if f.Body != "" {
			return f.Body
		}
	case KindLocalProcessError:
		if f.Stderr != "" {
			return f.Stderr
		}
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return ""
}

// StatusCode maps the failure to the HTTP status returned to the caller.
func (f *Failure) StatusCode() int {
	switch f.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindRemoteRejected:
		return http.StatusBadGateway
	case KindRemoteUnavailable:
		return http.StatusGatewayTimeout
	case KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Validation wraps a normalization error.
func Validation(err error) error { return &Failure{Kind: KindValidation, Err: err} }

// KindOf returns the failure kind carried by err, or "" when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsKind reports whether err is a Failure of kind k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// excerpt returns at most n bytes of b as valid UTF-8.
func excerpt(b []byte, n int) string {
	if n > 0 && len(b) > n {
		b = b[:n]
		for len(b) > 0 && !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
	}
	return strings.ToValidUTF8(string(b), "")
}
