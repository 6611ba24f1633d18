package ine

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindDecode  ErrorKind = "decode"
	KindShape   ErrorKind = "shape"
)

// FetchError is returned by Client.Fetch for every failure.
type FetchError struct {
	Kind       ErrorKind
	ExternalID string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("ine %s error for table %s", e.Kind, e.ExternalID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a request timeout.
func (e *FetchError) Timeout() bool {
	if e.Kind != KindNetwork || e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsKind reports whether err is a *FetchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// IsTimeout reports whether err is a fetch timeout.
func IsTimeout(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Timeout()
}
