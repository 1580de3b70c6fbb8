package runtime

import "context"

// gate is a counting permit pool built on a buffered channel so that
// acquisition can be abandoned when the caller's context is cancelled.
// Permit waits are unbounded unless the caller's context carries a deadline.
type gate struct {
	permits chan struct{}
}

func newGate(capacity int) *gate {
	return &gate{
		permits: make(chan struct{}, capacity),
	}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking.
func (g *gate) TryAcquire() bool {
	select {
	case g.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a permit. Releasing a permit that was never acquired is a
// protocol violation.
func (g *gate) Release() {
	select {
	case <-g.permits:
	default:
		panic("runtime: gate release without acquire")
	}
}

// InUse returns the number of permits currently held.
func (g *gate) InUse() int {
	return len(g.permits)
}

// Capacity returns the total number of permits.
func (g *gate) Capacity() int {
	return cap(g.permits)
}
