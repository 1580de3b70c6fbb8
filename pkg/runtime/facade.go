package runtime

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
)

// WithContext resolves the identity's execution context (creating it if
// absent), brackets fn with the reference count and concurrency permits, and
// invokes fn. Whatever error fn returns propagates unchanged. Cleanup is
// unconditional: permits are released and the reference count is decremented
// on success, error, and cancellation alike.
func (m *Manager) WithContext(ctx context.Context, identity string, fn func(context.Context, ExecContext) error) error {
	identity, err := m.normalizeIdentity(identity)
	if err != nil {
		return err
	}

	ctx = tracing.WithIdentity(ctx, identity)
	ctx, span := tracing.StartSpan(
		ctx,
		"warden.runtime",
		"runtime.with_context",
		attribute.String("identity", identity),
	)
	defer span.End()

	e, err := m.resolve(ctx, identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// The reference count is the only protection against the reaper while
	// the operation runs; it is taken before any wait on permits.
	e.incRef()
	defer e.decRef()

	if err := m.acquireGlobal(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer m.releaseGlobal()

	if e.perIdentity != nil {
		if err := e.perIdentity.Acquire(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		defer e.perIdentity.Release()
	}

	start := time.Now()
	err = fn(ctx, e.execCtx)
	observability.RecordOperation(time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Lease is a held reference to one identity's execution context. The caller
// must call Release exactly once; until then the context cannot be evicted.
type Lease struct {
	m    *Manager
	e    *entry
	once sync.Once
}

// Acquire resolves the identity's context and returns a lease holding the
// reference count and concurrency permits. Prefer WithContext; Acquire is
// for callers that need to hold the context across multiple calls.
func (m *Manager) Acquire(ctx context.Context, identity string) (*Lease, error) {
	identity, err := m.normalizeIdentity(identity)
	if err != nil {
		return nil, err
	}

	e, err := m.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	e.incRef()

	if err := m.acquireGlobal(ctx); err != nil {
		e.decRef()
		return nil, err
	}

	if e.perIdentity != nil {
		if err := e.perIdentity.Acquire(ctx); err != nil {
			m.releaseGlobal()
			e.decRef()
			return nil, err
		}
	}

	return &Lease{m: m, e: e}, nil
}

// Context returns the leased execution context.
func (l *Lease) Context() ExecContext {
	return l.e.execCtx
}

// Identity returns the identity the lease was resolved for.
func (l *Lease) Identity() string {
	return l.e.identity
}

// Release returns the permits and drops the reference. Safe to call more
// than once; only the first call has effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.e.perIdentity != nil {
			l.e.perIdentity.Release()
		}
		l.m.releaseGlobal()
		l.e.decRef()
	})
}

// AcquireGlobalSlot takes a global in-flight permit without resolving an
// identity, for callers that gate admission before routing. Blocks until a
// permit is free or ctx is done.
func (m *Manager) AcquireGlobalSlot(ctx context.Context) error {
	return m.acquireGlobal(ctx)
}

// ReleaseGlobalSlot returns a permit taken with AcquireGlobalSlot.
func (m *Manager) ReleaseGlobalSlot() {
	m.releaseGlobal()
}

func (m *Manager) acquireGlobal(ctx context.Context) error {
	if err := m.globalGate.Acquire(ctx); err != nil {
		return err
	}
	observability.SetActiveInflight(m.globalGate.InUse())
	return nil
}

func (m *Manager) releaseGlobal() {
	m.globalGate.Release()
	observability.SetActiveInflight(m.globalGate.InUse())
}
