package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-thread-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

func TestSnapshotPoller_CollectsPoolAndGroupStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Name:            "pool-a",
		Started:         true,
		ShutdownStarted: true,
		IncompleteTasks: 5,
		DelayedTasks:    2,
		Groups: []core.GroupStats{
			{Name: "pool-a-foreground", Workers: 4, IdleWorkers: 1, QueuedSources: 3},
			{Name: "pool-a-background", Workers: 2, IdleWorkers: 2, QueuedSources: 0},
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		incomplete := testutil.ToFloat64(poller.poolIncomplete.WithLabelValues("pool-a"))
		workers := testutil.ToFloat64(poller.groupWorkers.WithLabelValues("pool-a", "pool-a-foreground"))
		return incomplete == 5 && workers == 4
	})

	if got := testutil.ToFloat64(poller.poolShutdown.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("shutdown gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolDelayed.WithLabelValues("pool-a")); got != 2 {
		t.Fatalf("delayed gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.groupIdle.WithLabelValues("pool-a", "pool-a-background")); got != 2 {
		t.Fatalf("background idle gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.groupQueued.WithLabelValues("pool-a", "pool-a-foreground")); got != 3 {
		t.Fatalf("foreground queued gauge = %v, want 3", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
