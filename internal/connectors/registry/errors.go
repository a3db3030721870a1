package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrUninitializedDriver means an operation ran before Initialize.
	ErrUninitializedDriver = errors.New("driver is not initialized")
	// ErrUnsupportedEndpoint means the driver does not implement the requested logical endpoint.
	ErrUnsupportedEndpoint = errors.New("unsupported endpoint")
	// ErrDriverNotFound means the id failed validation.
	ErrDriverNotFound = errors.New("driver not found")
)

// UnsupportedEndpoint wraps ErrUnsupportedEndpoint with the driver and endpoint names.
func UnsupportedEndpoint(driver, endpoint string) error {
	return fmt.Errorf("%s: %w %q", driver, ErrUnsupportedEndpoint, endpoint)
}

// Uninitialized wraps ErrUninitializedDriver with the driver and operation names.
func Uninitialized(driver, op string) error {
	return fmt.Errorf("%s %s: %w", driver, op, ErrUninitializedDriver)
}
