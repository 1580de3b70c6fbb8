package runtime

import (
	"time"

	"github.com/harun/warden/internal/observability"
)

// Reap evicts every entry that is idle past the timeout and has no active
// references. Removal happens under the writer lock; release happens outside
// any lock, so teardown never blocks unrelated registry operations and no
// reader can observe a removed-but-unreleased entry. Returns the number of
// entries evicted.
func (m *Manager) Reap() int {
	start := time.Now()

	m.reg.mu.Lock()
	victims := m.collectIdleLocked()
	m.reg.mu.Unlock()

	m.finalize(victims, "idle")

	observability.RecordReap(time.Since(start))
	return len(victims)
}

// sweepLocked is the on-demand variant used on the slow path, where the
// writer lock is already held. Map slots are freed immediately; release runs
// on a separate goroutine, outside the lock.
func (m *Manager) sweepLocked() int {
	victims := m.collectIdleLocked()
	if len(victims) > 0 {
		go m.finalize(victims, "idle")
	}
	return len(victims)
}

// collectIdleLocked removes reap-eligible entries from the map and returns
// them. Caller must hold the writer lock.
func (m *Manager) collectIdleLocked() []*entry {
	now := time.Now()

	var victims []*entry
	for id, e := range m.reg.entries {
		if e.reapable(now, m.idleTimeout) {
			delete(m.reg.entries, id)
			victims = append(victims, e)
		}
	}

	m.reg.lastSweep = now
	observability.SetActiveIdentities(len(m.reg.entries))

	return victims
}

// finalize stops each evicted entry's lifecycle goroutine and awaits its
// termination, bounded by the teardown timeout. An overrunning teardown is
// abandoned with a logged error rather than blocking the reaper.
func (m *Manager) finalize(victims []*entry, reason string) {
	for _, e := range victims {
		e.signalStop()

		select {
		case <-e.done:
		case <-time.After(m.teardownTimeout):
			m.logger.Error().
				Str("identity", e.identity).
				Dur("timeout", m.teardownTimeout).
				Msg("Teardown timed out, abandoning lifecycle goroutine")
			observability.RecordTeardownTimeout()
		}

		observability.RecordEviction(reason)
		m.logger.Debug().Str("identity", e.identity).Str("reason", reason).Msg("Context evicted")
	}
}

// reaperLoop runs periodic sweeps until shutdown.
func (m *Manager) reaperLoop() {
	defer close(m.reaperDone)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := m.Reap(); evicted > 0 {
				m.logger.Info().Int("evicted", evicted).Msg("Idle sweep complete")
			}
		case <-m.reaperStop:
			return
		}
	}
}
