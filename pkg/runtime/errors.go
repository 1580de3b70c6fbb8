package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned for empty or malformed identities.
	// Rejected before any lock is taken.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrCapacityExceeded is returned when the registry is full even after
	// an idle sweep. Callers see this synchronously, nothing is queued.
	ErrCapacityExceeded = errors.New("identity capacity exceeded")

	// ErrConstructionTimeout is returned when a context build exceeds the
	// construction budget. The underlying build is cancelled and awaited
	// before this error is surfaced.
	ErrConstructionTimeout = errors.New("context construction timed out")

	// ErrShutdown is returned for any resolve attempted after shutdown began.
	ErrShutdown = errors.New("runtime is shut down")
)

// BuildError wraps a factory failure with the identity it occurred for.
// Failed builds are never cached; a retry attempts construction again.
type BuildError struct {
	Identity string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building context for identity %q: %v", e.Identity, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
