package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/warden/internal/config"
)

// fakeContext is the execution context used throughout the runtime tests.
type fakeContext struct {
	identity string
	cfg      *config.Config
}

// fakeFactory counts builds and releases and can be told to fail, block, or
// ignore cancellation.
type fakeFactory struct {
	mu         sync.Mutex
	buildErr   error
	buildDelay time.Duration

	builds   atomic.Int64
	releases atomic.Int64
}

func (f *fakeFactory) setBuildErr(err error) {
	f.mu.Lock()
	f.buildErr = err
	f.mu.Unlock()
}

func (f *fakeFactory) Build(ctx context.Context, cfg *config.Config) (ExecContext, ReleaseFunc, error) {
	f.builds.Add(1)

	f.mu.Lock()
	err := f.buildErr
	delay := f.buildDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, nil, err
	}

	release := func() error {
		f.releases.Add(1)
		return nil
	}
	return &fakeContext{identity: cfg.Identity, cfg: cfg}, release, nil
}

// testConfig returns a template with timings short enough for tests.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Runtime.MaxIdentities = 8
	cfg.Runtime.MaxGlobalInflight = 16
	cfg.Runtime.MaxPerIdentityInflight = 4
	cfg.Runtime.IdleTimeout = time.Hour
	cfg.Runtime.BuildTimeout = 2 * time.Second
	cfg.Runtime.TeardownTimeout = time.Second
	cfg.Runtime.SweepInterval = time.Hour
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, factory Factory) *Manager {
	t.Helper()

	m := NewManager(cfg, factory)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}
