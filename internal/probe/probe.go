// Package probe runs bounded external commands and filesystem checks on the inspected host.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a probe when the caller does not supply a timeout.
const DefaultTimeout = 5 * time.Second

// Runner executes one shell command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, command string, timeout time.Duration) (string, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	return f(ctx, command, timeout)
}

// Kind enumerates probe failure modes.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindNonZeroExit
	KindTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNonZeroExit:
		return "non_zero_exit"
	case KindTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is against an *Error.
var (
	ErrNotFound    = errors.New("command not found")
	ErrNonZeroExit = errors.New("command exited with failing status")
	ErrTimedOut    = errors.New("command timed out")
)

// Error is the typed failure returned by a Runner.
type Error struct {
	Kind     Kind
	Command  string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("probe %q: %s", e.Command, e.Kind)
	}
	return fmt.Sprintf("probe %q: %s: %v", e.Command, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrNonZeroExit:
		return e.Kind == KindNonZeroExit
	case ErrTimedOut:
		return e.Kind == KindTimedOut
	}
	return false
}

// KindOf extracts the probe failure kind from err.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsAbsence reports whether err only signals that the probed thing is not there.
func IsAbsence(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNonZeroExit)
}
