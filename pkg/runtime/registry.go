package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/internal/observability"
)

const maxIdentityLength = 256

// registry maps identity to its live entry. At most one entry exists per
// identity at all times; the map holds only fully-built contexts.
type registry struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	lastSweep    time.Time
	shuttingDown bool
}

// normalizeIdentity validates the caller-supplied identity before any lock
// is taken. Empty identities map to the configured default when permitted.
func (m *Manager) normalizeIdentity(identity string) (string, error) {
	if identity == "" {
		if !m.allowDefaultIdentity {
			return "", fmt.Errorf("%w: empty identity", ErrInvalidIdentity)
		}
		identity = m.defaultIdentity
	}

	if len(identity) > maxIdentityLength {
		return "", fmt.Errorf("%w: identity exceeds %d bytes", ErrInvalidIdentity, maxIdentityLength)
	}
	if strings.Contains(identity, "..") {
		return "", fmt.Errorf("%w: identity cannot contain '..'", ErrInvalidIdentity)
	}
	if strings.ContainsAny(identity, "/\\") {
		return "", fmt.Errorf("%w: identity cannot contain path separators", ErrInvalidIdentity)
	}
	if strings.Contains(identity, "\x00") {
		return "", fmt.Errorf("%w: identity cannot contain null bytes", ErrInvalidIdentity)
	}

	return identity, nil
}

// resolve returns the live entry for identity, creating it if absent. Even
// under unlimited concurrent callers for the same identity, at most one
// context is ever constructed: creation runs inside the writer-lock critical
// section and re-checks the map after acquiring the lock.
func (m *Manager) resolve(ctx context.Context, identity string) (*entry, error) {
	// Fast path: reader lock only.
	m.reg.mu.RLock()
	if m.reg.shuttingDown {
		m.reg.mu.RUnlock()
		return nil, ErrShutdown
	}
	if e, ok := m.reg.entries[identity]; ok {
		// Touch while still holding the reader lock: the reaper takes the
		// writer lock, so it cannot observe the stale timestamp and evict
		// the entry out from under the caller.
		e.touch()
		m.reg.mu.RUnlock()
		return e, nil
	}
	m.reg.mu.RUnlock()

	// Slow path: writer lock.
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()

	if m.reg.shuttingDown {
		return nil, ErrShutdown
	}

	// Opportunistic sweep, throttled to once per sweep interval.
	if time.Since(m.reg.lastSweep) >= m.sweepInterval {
		m.sweepLocked()
	}

	// Another caller may have created the entry between the fast-path miss
	// and the writer-lock acquisition.
	if e, ok := m.reg.entries[identity]; ok {
		e.touch()
		return e, nil
	}

	if len(m.reg.entries) >= m.maxIdentities {
		// Synchronous reclaim attempt before giving up.
		m.sweepLocked()
		if len(m.reg.entries) >= m.maxIdentities {
			observability.RecordCapacityReject()
			return nil, fmt.Errorf("%w: %d identities active", ErrCapacityExceeded, len(m.reg.entries))
		}
	}

	e, err := m.buildEntry(ctx, identity)
	if err != nil {
		return nil, err
	}

	m.reg.entries[identity] = e
	observability.SetActiveIdentities(len(m.reg.entries))

	return e, nil
}

// buildEntry spawns the lifecycle goroutine for a new entry and waits,
// bounded by the construction budget, for it to report readiness. Nothing
// is published to the registry until the build succeeded.
func (m *Manager) buildEntry(ctx context.Context, identity string) (*entry, error) {
	e := newEntry(identity, m.maxPerIdentityInflight)
	cfg := m.template.DeriveForIdentity(identity)

	m.startLifecycle(e, cfg)

	timer := time.NewTimer(m.buildTimeout)
	defer timer.Stop()

	select {
	case <-e.ready:
	case <-timer.C:
		m.abortBuild(e)
		m.logger.Error().
			Str("identity", identity).
			Dur("budget", m.buildTimeout).
			Msg("Context construction timed out")
		return nil, fmt.Errorf("%w: identity %q after %s", ErrConstructionTimeout, identity, m.buildTimeout)
	case <-ctx.Done():
		m.abortBuild(e)
		return nil, ctx.Err()
	}

	if e.buildErr != nil {
		return nil, &BuildError{Identity: identity, Err: e.buildErr}
	}

	m.logger.Info().Str("identity", identity).Msg("Execution context built")
	return e, nil
}

// abortBuild cancels an in-progress build and awaits the lifecycle
// goroutine, so no half-built context is leaked. If the build managed to
// complete despite cancellation, the stop signal makes the goroutine release
// it immediately.
func (m *Manager) abortBuild(e *entry) {
	e.cancelBuild()
	e.signalStop()

	select {
	case <-e.done:
	case <-time.After(m.teardownTimeout):
		m.logger.Error().
			Str("identity", e.identity).
			Msg("Aborted build did not terminate in time, abandoning lifecycle goroutine")
		observability.RecordTeardownTimeout()
	}
}

// startLifecycle runs the context build on a dedicated goroutine that owns
// both acquisition and release. The goroutine builds, signals ready (also on
// failure, so the waiting creator is never left hanging), blocks on the stop
// signal, then releases on its own goroutine and terminates.
func (m *Manager) startLifecycle(e *entry, cfg *config.Config) {
	buildCtx, cancel := context.WithCancel(context.Background())
	e.cancelBuild = cancel

	go func() {
		defer close(e.done)
		defer cancel()

		start := time.Now()
		execCtx, release, err := m.factory.Build(buildCtx, cfg)
		observability.RecordContextBuild(time.Since(start), err == nil)

		e.execCtx = execCtx
		e.buildErr = err
		close(e.ready)

		if err != nil {
			return
		}

		<-e.stop

		if release != nil {
			if rerr := release(); rerr != nil {
				// Teardown failures are isolated per identity; they must
				// never reach unrelated callers.
				log.Error().
					Err(rerr).
					Str("identity", e.identity).
					Msg("Context teardown failed")
			}
		}
	}()
}
