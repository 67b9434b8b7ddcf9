package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed call to the price source.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindHTTP
	KindTimeout
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindHTTP:
		return "http error"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network error"
	default:
		return "unexpected error"
	}
}

// SourceError is returned by every provider call that fails.
type SourceError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *SourceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s - %s", e.Op, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Message is the short text shown to the user in the status line.
func (e *SourceError) Message() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("HTTP error %d from price API", e.StatusCode)
	case KindTimeout:
		return "price API took too long to respond"
	case KindNetwork:
		return "could not reach price API"
	default:
		return "unexpected error talking to price API"
	}
}

// IsKind reports whether err is a SourceError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == kind
}

func classifyTransport(op string, err error) *SourceError {
	var se *SourceError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &SourceError{Op: op, Kind: KindTimeout, Detail: err.Error(), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SourceError{Op: op, Kind: KindTimeout, Detail: err.Error(), Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &SourceError{Op: op, Kind: KindUnexpected, Detail: "request canceled", Err: err}
	}
	return &SourceError{Op: op, Kind: KindNetwork, Detail: err.Error(), Err: err}
}

func unexpected(op string, err error) *SourceError {
	return &SourceError{Op: op, Kind: KindUnexpected, Detail: err.Error(), Err: err}
}
