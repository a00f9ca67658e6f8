package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-orchestrator/core/trainerrors"
)

func TestNewControllerRejectsBadLimits(t *testing.T) {
	var invalid *trainerrors.ErrInvalidArgument

	_, err := NewController(0, 1)
	require.ErrorAs(t, err, &invalid)

	_, err = NewController(1, -1)
	require.ErrorAs(t, err, &invalid)
}

func TestAcquireRelease(t *testing.T) {
	ctl, err := NewController(1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, ctl.Acquire(ctx, "alice"))
	ctl.Release("alice")
	require.NoError(t, ctl.Acquire(ctx, "alice"))
	ctl.Release("alice")
}

func TestSameTenantSerializedAtLimitOne(t *testing.T) {
	ctl, err := NewController(2, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, ctl.Acquire(ctx, "alice"))

	second := make(chan error, 1)
	go func() {
		second <- ctl.Acquire(ctx, "alice")
	}()

	select {
	case <-second:
		t.Fatal("second acquire should block while the first slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	ctl.Release("alice")
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed after release")
	}
	ctl.Release("alice")
}

func TestGlobalLimitSpansTenants(t *testing.T) {
	ctl, err := NewController(1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, ctl.Acquire(ctx, "alice"))

	second := make(chan error, 1)
	go func() {
		second <- ctl.Acquire(ctx, "bob")
	}()

	select {
	case <-second:
		t.Fatal("bob should block while alice holds the only global slot")
	case <-time.After(50 * time.Millisecond):
	}

	ctl.Release("alice")
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never admitted after alice released")
	}
	ctl.Release("bob")
}

func TestDistinctTenantsRunConcurrently(t *testing.T) {
	ctl, err := NewController(2, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, ctl.Acquire(ctx, "alice"))
	require.NoError(t, ctl.Acquire(ctx, "bob"))

	stats := ctl.Stats()
	assert.Equal(t, int64(2), stats.GlobalInUse)
	assert.Equal(t, int64(1), stats.TenantInUse["alice"])
	assert.Equal(t, int64(1), stats.TenantInUse["bob"])

	ctl.Release("alice")
	ctl.Release("bob")
}

func TestAcquireHonoursContextCancellation(t *testing.T) {
	ctl, err := NewController(1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, ctl.Acquire(ctx, "alice"))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, ctl.Acquire(waitCtx, "bob"), context.DeadlineExceeded)

	// A cancelled wait must not leak capacity.
	ctl.Release("alice")
	require.NoError(t, ctl.Acquire(ctx, "bob"))
	ctl.Release("bob")
}

func TestReleaseWithoutAcquireDoesNotGrowCapacity(t *testing.T) {
	ctl, err := NewController(1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ctl.Release("alice")
	require.NoError(t, ctl.Acquire(ctx, "alice"))
	ctl.Release("alice")
	ctl.Release("alice")

	require.NoError(t, ctl.Acquire(ctx, "alice"))

	second := make(chan error, 1)
	go func() {
		second <- ctl.Acquire(ctx, "bob")
	}()
	select {
	case <-second:
		t.Fatal("stray releases must not mint extra global slots")
	case <-time.After(50 * time.Millisecond):
	}

	ctl.Release("alice")
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never admitted")
	}
	ctl.Release("bob")
}

func TestStatsReportsWaiters(t *testing.T) {
	ctl, err := NewController(1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, ctl.Acquire(ctx, "alice"))

	done := make(chan error, 1)
	go func() {
		done <- ctl.Acquire(ctx, "bob")
	}()

	require.Eventually(t, func() bool {
		return ctl.Stats().Waiting == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctl.Release("alice")
	require.NoError(t, <-done)
	ctl.Release("bob")

	stats := ctl.Stats()
	assert.Equal(t, int64(0), stats.GlobalInUse)
	assert.Equal(t, 0, stats.Waiting)
	assert.Empty(t, stats.TenantInUse)
}
