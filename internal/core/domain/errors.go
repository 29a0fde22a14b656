package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies why fetching from an upstream failed.
type FailureKind string

const (
	FailureRateLimited        FailureKind = "rate_limited"
	FailureServiceUnavailable FailureKind = "service_unavailable"
	FailureTransientNetwork   FailureKind = "transient_network"
	FailurePermanent          FailureKind = "permanent"
	FailureEmptyData          FailureKind = "empty_data"
	FailureUnsupportedClient  FailureKind = "unsupported_client"
	FailureMalformedResponse  FailureKind = "malformed_response"
	FailureUnknown            FailureKind = "unknown"
)

// ErrUnsupportedClient is returned by the log fetcher for a client/network
// combination it has no protocol for. Callers treat it as "no data for this
// source".
var ErrUnsupportedClient = &FetchError{Kind: FailureUnsupportedClient, Message: "client/network is not supported"}

// FetchError is the typed failure returned by the price API and log clients.
type FetchError struct {
	Kind    FailureKind
	Status  int    // HTTP status, 0 when not applicable
	Message string // upstream message or body excerpt
	Err     error  // underlying transport error, if any
	Quiet   bool   // expected condition that callers should not log
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %s: %v", e.Kind, e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrUnsupportedClient) works for any
// FetchError of the same kind.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewFetchError builds a FetchError of the given kind.
func NewFetchError(kind FailureKind, status int, message string, err error) *FetchError {
	return &FetchError{Kind: kind, Status: status, Message: message, Err: err}
}

// KindOf extracts the FailureKind from err, FailureUnknown if err is not a FetchError.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureUnknown
}
