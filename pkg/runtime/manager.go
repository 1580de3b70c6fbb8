package runtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/internal/observability"
)

// Manager owns the registry of per-identity execution contexts, the
// concurrency gate, and the idle reaper. Created once at service start,
// shut down once at service stop; there is no process-wide singleton.
type Manager struct {
	template *config.Config
	factory  Factory
	logger   zerolog.Logger

	maxIdentities          int
	maxGlobalInflight      int
	maxPerIdentityInflight int
	idleTimeout            time.Duration
	buildTimeout           time.Duration
	teardownTimeout        time.Duration
	sweepInterval          time.Duration

	defaultIdentity      string
	allowDefaultIdentity bool

	reg registry

	globalGate *gate

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// Option configures the manager.
type Option func(*Manager)

// WithLogger injects a custom logger (used by tests).
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithBuildTimeout overrides the construction budget.
func WithBuildTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.buildTimeout = d
		}
	}
}

// WithTeardownTimeout overrides how long evictions wait for a lifecycle
// goroutine before abandoning it.
func WithTeardownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.teardownTimeout = d
		}
	}
}

// NewManager creates a runtime manager from the immutable configuration
// template and starts the periodic idle reaper.
func NewManager(template *config.Config, factory Factory, opts ...Option) *Manager {
	observability.EnsureRegistered()

	rt := template.Runtime

	m := &Manager{
		template: template,
		factory:  factory,
		logger:   log.With().Str("component", "runtime").Logger(),

		maxIdentities:          rt.MaxIdentities,
		maxGlobalInflight:      rt.MaxGlobalInflight,
		maxPerIdentityInflight: rt.MaxPerIdentityInflight,
		idleTimeout:            rt.IdleTimeout,
		buildTimeout:           rt.BuildTimeout,
		teardownTimeout:        rt.TeardownTimeout,
		sweepInterval:          rt.SweepInterval,

		defaultIdentity:      template.DefaultIdentity,
		allowDefaultIdentity: template.AllowDefaultIdentity,

		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.applyLimitFloors()

	m.reg.entries = make(map[string]*entry)
	m.reg.lastSweep = time.Now()
	m.globalGate = newGate(m.maxGlobalInflight)

	observability.SetIdentityLimit(m.maxIdentities)
	observability.SetInflightLimit(m.maxGlobalInflight)
	observability.SetActiveIdentities(0)
	observability.SetActiveInflight(0)

	go m.reaperLoop()

	m.logger.Info().
		Int("max_identities", m.maxIdentities).
		Int("max_global_inflight", m.maxGlobalInflight).
		Int("max_per_identity_inflight", m.maxPerIdentityInflight).
		Dur("idle_timeout", m.idleTimeout).
		Msg("Runtime manager started")

	return m
}

// applyLimitFloors replaces non-positive limits and timings with the
// packaged defaults. The validator rejects such configs up front, but a
// manager constructed from a hand-built template must not panic the ticker
// or wedge every acquire on a zero-capacity gate.
func (m *Manager) applyLimitFloors() {
	defaults := config.DefaultConfig().Runtime

	if m.maxIdentities <= 0 {
		m.maxIdentities = defaults.MaxIdentities
	}
	if m.maxGlobalInflight <= 0 {
		m.maxGlobalInflight = defaults.MaxGlobalInflight
	}
	if m.maxPerIdentityInflight < 0 {
		m.maxPerIdentityInflight = 0
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = defaults.IdleTimeout
	}
	if m.buildTimeout <= 0 {
		m.buildTimeout = defaults.BuildTimeout
	}
	if m.teardownTimeout <= 0 {
		m.teardownTimeout = defaults.TeardownTimeout
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = defaults.SweepInterval
	}
}

// ActiveIdentities returns the number of live execution contexts.
func (m *Manager) ActiveIdentities() int {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	return len(m.reg.entries)
}

// IdentityLimit returns the configured maximum number of identities.
func (m *Manager) IdentityLimit() int {
	return m.maxIdentities
}

// ActiveInflight returns the number of operations currently holding a
// global permit.
func (m *Manager) ActiveInflight() int {
	return m.globalGate.InUse()
}

// InflightLimit returns the configured global in-flight bound.
func (m *Manager) InflightLimit() int {
	return m.maxGlobalInflight
}

// Shutdown terminates every context and leaves the registry empty. New
// resolves are rejected once shutdown has begun. Idempotent; individual
// teardown failures are logged, never propagated.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.reg.mu.Lock()
	if m.reg.shuttingDown {
		m.reg.mu.Unlock()
		return nil
	}
	m.reg.shuttingDown = true

	victims := make([]*entry, 0, len(m.reg.entries))
	for id, e := range m.reg.entries {
		delete(m.reg.entries, id)
		victims = append(victims, e)
	}
	observability.SetActiveIdentities(0)
	m.reg.mu.Unlock()

	close(m.reaperStop)
	<-m.reaperDone

	for _, e := range victims {
		e.signalStop()

		timeout := m.teardownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}

		select {
		case <-e.done:
		case <-time.After(timeout):
			m.logger.Error().
				Str("identity", e.identity).
				Msg("Teardown timed out during shutdown, abandoning lifecycle goroutine")
			observability.RecordTeardownTimeout()
		}
		observability.RecordEviction("shutdown")
	}

	m.logger.Info().Int("evicted", len(victims)).Msg("Runtime manager shut down")
	return nil
}
