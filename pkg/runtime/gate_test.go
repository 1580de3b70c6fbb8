package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_AcquireRelease(t *testing.T) {
	g := newGate(2)

	require.NoError(t, g.Acquire(context.Background()))
	require.NoError(t, g.Acquire(context.Background()))
	assert.Equal(t, 2, g.InUse())
	assert.Equal(t, 2, g.Capacity())

	g.Release()
	assert.Equal(t, 1, g.InUse())
	g.Release()
	assert.Equal(t, 0, g.InUse())
}

func TestGate_TryAcquire(t *testing.T) {
	g := newGate(1)

	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())

	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestGate_AcquireBlocksAtCapacity(t *testing.T) {
	g := newGate(1)
	require.NoError(t, g.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		_ = g.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while the gate is full")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire should proceed once a permit is released")
	}
}

func TestGate_AcquireHonorsCancellation(t *testing.T) {
	g := newGate(1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InUse(), "failed acquire must not consume a permit")
}

func TestGate_ReleaseWithoutAcquirePanics(t *testing.T) {
	g := newGate(1)
	assert.Panics(t, func() { g.Release() })
}
