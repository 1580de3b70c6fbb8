package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/internal/logger"
	"github.com/harun/warden/pkg/runtime"
	"github.com/harun/warden/pkg/transcript"
)

type testContext struct {
	identity string
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Transcripts.Dir = filepath.Join(dir, "transcripts")
	cfg.Transcripts.ArchiveDir = filepath.Join(dir, "archive")
	cfg.Transcripts.ArchiveSchedule = ""
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false
	cfg.Runtime.TeardownTimeout = time.Second
	return cfg
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	orig := newFactory
	newFactory = func(*transcript.Store) runtime.Factory {
		return runtime.FactoryFunc(func(_ context.Context, cfg *config.Config) (runtime.ExecContext, runtime.ReleaseFunc, error) {
			return &testContext{identity: cfg.Identity}, func() error { return nil }, nil
		})
	}
	t.Cleanup(func() { newFactory = orig })

	log, err := logger.New(logger.Config{Level: "error", Console: true})
	require.NoError(t, err)

	d, err := New(testConfig(t), log)
	require.NoError(t, err)
	return d
}

func TestDaemon_StartStop(t *testing.T) {
	d := newTestDaemon(t)

	require.NoError(t, d.Start())
	status := d.Status()
	assert.True(t, status.Running)
	assert.False(t, status.StartTime.IsZero())

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
}

func TestDaemon_DoubleStartRejected(t *testing.T) {
	d := newTestDaemon(t)

	require.NoError(t, d.Start())
	assert.ErrorContains(t, d.Start(), "already running")
	require.NoError(t, d.Stop())
	assert.ErrorContains(t, d.Stop(), "not running")
}

func TestDaemon_RuntimeServesIdentities(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.Start())
	defer d.Stop()

	err := d.Runtime().WithContext(context.Background(), "alice", func(_ context.Context, ec runtime.ExecContext) error {
		tc, ok := ec.(*testContext)
		require.True(t, ok)
		assert.Equal(t, "alice", tc.identity)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, d.Status().ActiveIdentities)
}

func TestDaemon_InvalidArchiveSchedule(t *testing.T) {
	d := newTestDaemon(t)
	d.config.Transcripts.ArchiveSchedule = "not a cron expr"

	err := d.Start()
	assert.ErrorContains(t, err, "archive schedule")
	require.NoError(t, d.Stop())
}

func TestDaemon_ArchiveScheduleAccepted(t *testing.T) {
	d := newTestDaemon(t)
	d.config.Transcripts.ArchiveSchedule = "0 3 * * *"

	require.NoError(t, d.Start())
	require.NoError(t, d.Stop())
}
