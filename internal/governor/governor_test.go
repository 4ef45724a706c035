package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGovernor(free uint64) *Governor {
	cfg := DefaultConfig(8, 100000, 100000, 10000000)
	cfg.FreeMemory = func() uint64 { return free }
	cfg.PollInterval = 10 * time.Millisecond
	return New(cfg)
}

func TestModeTransitions(t *testing.T) {
	const gib = uint64(1) << 30

	g := newTestGovernor(8 * gib)
	require.Equal(t, Normal, g.Sample())
	require.Equal(t, 100000, g.ChunkSize())
	require.Equal(t, 100000, g.BatchSize())
	require.Equal(t, 10000000, g.DedupSetMax())
	require.False(t, g.UseStoreSideDedup())
	require.False(t, g.ShouldPauseDispatch())

	g = newTestGovernor(3 * gib)
	require.Equal(t, Throttled, g.Sample())
	require.Equal(t, 50000, g.ChunkSize())
	require.Equal(t, 50000, g.BatchSize())
	require.Equal(t, 5000000, g.DedupSetMax())
	require.False(t, g.UseStoreSideDedup())

	g = newTestGovernor(1 * gib)
	require.Equal(t, Critical, g.Sample())
	require.Equal(t, 0, g.DedupSetMax())
	require.True(t, g.UseStoreSideDedup())
	require.True(t, g.ShouldPauseDispatch())
}

func TestRunPollsUntilStopped(t *testing.T) {
	g := newTestGovernor(8 * (uint64(1) << 30))
	done := make(chan struct{})
	go func() {
		g.Run()
		close(done)
	}()

	// Give the loop a couple of ticks, then stop and expect Run to
	// return promptly.
	time.Sleep(30 * time.Millisecond)
	g.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
	require.Equal(t, Normal, g.Mode())
}

func TestWorkerCountStaysFixedAcrossModes(t *testing.T) {
	const gib = uint64(1) << 30
	g := newTestGovernor(1 * gib)
	g.Sample()
	require.Equal(t, 8, g.WorkerCount())
}
