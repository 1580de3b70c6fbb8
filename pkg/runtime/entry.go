package runtime

import (
	"context"
	"sync"
	"time"
)

// entry is the registry's record for one identity. It is created and removed
// only inside the registry's writer-lock critical section; its ref count and
// activity timestamp are guarded by the entry's own mutex so unrelated
// identities never contend with each other.
type entry struct {
	identity string

	mu           sync.Mutex
	refCount     int
	lastActivity time.Time

	// ready is closed once the build finished, successfully or not.
	ready chan struct{}
	// stop is the one-shot signal that makes the lifecycle goroutine
	// release the context's resources and terminate.
	stop     chan struct{}
	stopOnce sync.Once
	// done is closed when the lifecycle goroutine has terminated.
	done chan struct{}

	cancelBuild context.CancelFunc

	execCtx  ExecContext
	buildErr error

	// perIdentity bounds in-flight operations for this identity alone.
	// Nil when the per-identity limit is disabled.
	perIdentity *gate
}

func newEntry(identity string, maxPerIdentityInflight int) *entry {
	e := &entry{
		identity:     identity,
		lastActivity: time.Now(),
		ready:        make(chan struct{}),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if maxPerIdentityInflight > 0 {
		e.perIdentity = newGate(maxPerIdentityInflight)
	}
	return e
}

// touch records an access on the read path.
func (e *entry) touch() {
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// incRef marks the start of one operation against the context.
func (e *entry) incRef() {
	e.mu.Lock()
	e.refCount++
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// decRef marks the end of one operation. The idle clock restarts here so an
// entry only ages once nothing is using it.
func (e *entry) decRef() {
	e.mu.Lock()
	if e.refCount <= 0 {
		e.mu.Unlock()
		panic("runtime: entry ref count underflow")
	}
	e.refCount--
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

func (e *entry) refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refCount
}

// reapable reports whether the entry is idle past the timeout with no active
// references. An entry with refCount > 0 is never reapable, regardless of
// how long ago lastActivity was.
func (e *entry) reapable(now time.Time, idleTimeout time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refCount == 0 && now.Sub(e.lastActivity) > idleTimeout
}

// signalStop fires the one-shot stop signal. Safe to call multiple times.
func (e *entry) signalStop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
}
