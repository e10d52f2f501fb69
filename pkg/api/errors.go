package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Kind classifies a failed call
type Kind string

const (
	KindTransient    Kind = "TransientNetwork"
	KindRateLimited  Kind = "RateLimited"
	KindAuth         Kind = "AuthError"
	KindNotFound     Kind = "NotFound"
	KindConflict     Kind = "Conflict"
	KindParse        Kind = "ParseError"
	KindSizeExceeded Kind = "SizeExceeded"
	KindCanceled     Kind = "Canceled"
	KindUnknown      Kind = "Unknown"
)

// Retryable reports whether a call failing with k may be retried
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Service names a remote dependency
type Service string

const (
	ServiceHost  Service = "repository_host"
	ServiceModel Service = "model_provider"
)

// Error is the only error type that crosses the client boundary
type Error struct {
	Kind       Kind
	Service    Service
	Op         string
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var prefix string
	switch {
	case e.Service != "" && e.Op != "":
		prefix = fmt.Sprintf("%s %s: ", e.Service, e.Op)
	case e.Op != "":
		prefix = e.Op + ": "
	}
	msg := fmt.Sprintf("%s%s", prefix, e.Kind)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds an Error from a format string
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies any error. Errors not produced by this package are
// classified by shape: timeouts and dropped connections are transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the whole run
func IsFatal(err error) bool {
	return KindOf(err) == KindAuth
}

// ServiceOf returns the service an error was raised by, if known
func ServiceOf(err error) Service {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Service
	}
	return ""
}

// annotate converts err into an *Error stamped with the call site
func annotate(err error, svc Service, op string, attempts int) *Error {
	var src *Error
	if errors.As(err, &src) {
		out := *src
		if out.Service == "" {
			out.Service = svc
		}
		if out.Op == "" {
			out.Op = op
		}
		out.Attempts = attempts
		return &out
	}
	return &Error{
		Kind:     KindOf(err),
		Service:  svc,
		Op:       op,
		Attempts: attempts,
		Err:      err,
	}
}
