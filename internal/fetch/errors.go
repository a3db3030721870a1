package fetch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEndpoints is the cause recorded when a config has no usable URL.
var ErrNoEndpoints = errors.New("no endpoint URLs configured")

// TransportError is a failed attempt against one URL: network, timeout or a
// non-2xx status.
type TransportError struct {
	URL        string // masked
	Attempt    int
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "transport error: %s attempt %d", e.URL, e.Attempt)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InvalidResponseShapeError means the transport succeeded but the payload is
// not a recognized collection of records.
type InvalidResponseShapeError struct {
	URL    string // masked
	Reason string
}

func (e *InvalidResponseShapeError) Error() string {
	if e == nil {
		return ""
	}
	if e.URL == "" {
		return "invalid response shape: " + e.Reason
	}
	return fmt.Sprintf("invalid response shape from %s: %s", e.URL, e.Reason)
}

// AllEndpointsFailedError is the terminal failure after every candidate URL
// exhausted its attempts.
type AllEndpointsFailedError struct {
	URLs     []string // masked, in attempt order
	Attempts int
	// Causes holds the last error seen for each URL.
	Causes []error
}

func (e *AllEndpointsFailedError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.URLs) == 0 {
		return "all endpoints failed: " + ErrNoEndpoints.Error()
	}
	msg := fmt.Sprintf("all endpoints failed after %d attempts across %d urls", e.Attempts, len(e.URLs))
	if len(e.Causes) > 0 && e.Causes[len(e.Causes)-1] != nil {
		msg += ": last error: " + e.Causes[len(e.Causes)-1].Error()
	}
	return msg
}

func (e *AllEndpointsFailedError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return e.Causes
}
