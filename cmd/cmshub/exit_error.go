package main

import (
	"errors"
	"fmt"

	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/integrations"
	"github.com/cmshub/cmshub/internal/store"
)

// Process exit codes. Scripts rely on these, so keep them stable.
const (
	exitOK       = 0
	exitFailure  = 1
	exitNotFound = 2 // unknown driver, integration or endpoint, or bad input
	exitNegative = 3 // test or send ran and the remote said no
	exitCanceled = 130
)

type exitError struct {
	code   int
	err    error
	silent bool
}

func notFoundError(err error) *exitError {
	return &exitError{code: exitNotFound, err: err}
}

// negativeResult ends a command whose outcome is already on stdout.
func negativeResult() *exitError {
	return &exitError{code: exitNegative, silent: true}
}

func (e *exitError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// lookupFailed reports errors that mean the caller named something that does
// not exist or cannot be used as asked.
func lookupFailed(err error) bool {
	return errors.Is(err, registry.ErrDriverNotFound) ||
		errors.Is(err, registry.ErrUnsupportedEndpoint) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, integrations.ErrInactiveIntegration)
}
