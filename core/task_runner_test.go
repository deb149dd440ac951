package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestTaskRunner_PerCallTraitsRouteGroups verifies per-call routing
// Given: A parallel runner created with user-visible traits
// When: A call overrides the traits with best-effort
// Then: That task runs in the background group while default posts stay in
// the foreground group
func TestTaskRunner_PerCallTraitsRouteGroups(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	runner := pool.CreateTaskRunner(TraitsUserVisible())
	runner.PostTask(func(context.Context) {})
	runner.PostTaskWithTraits(func(context.Context) {}, TraitsBestEffort())
	pool.FlushForTesting()

	groupFor := map[TaskPriority]string{}
	for _, rec := range pool.RecentTasks(2) {
		groupFor[rec.Priority] = rec.GroupName
	}
	if got := groupFor[TaskPriorityUserVisible]; got != "test-pool-foreground" {
		t.Fatalf("user-visible ran in %q, want test-pool-foreground", got)
	}
	if got := groupFor[TaskPriorityBestEffort]; got != "test-pool-background" {
		t.Fatalf("best-effort ran in %q, want test-pool-background", got)
	}
}

// TestTaskRunner_Repeating verifies the repeating chain
// Given: A repeating task with a short interval
// When: A few repetitions have run and the handle is stopped
// Then: The tick count stops growing
func TestTaskRunner_Repeating(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	runner := pool.CreateSequencedTaskRunner(DefaultTaskTraits())

	var ticks atomic.Int32
	handle := runner.PostRepeatingTask(func(context.Context) { ticks.Add(1) },
		5*time.Millisecond)
	if handle.IsStopped() {
		t.Fatal("handle stopped immediately on a running pool")
	}

	deadline := time.Now().Add(5 * time.Second)
	for ticks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d ticks before deadline, want at least 3", ticks.Load())
		}
		time.Sleep(time.Millisecond)
	}

	handle.Stop()
	if !handle.IsStopped() {
		t.Fatal("IsStopped = false after Stop")
	}
	// One repetition may already be in flight; after it drains the count
	// must not move again.
	pool.FlushForTesting()
	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if got := ticks.Load(); got != settled {
		t.Fatalf("ticks advanced from %d to %d after Stop", settled, got)
	}
}

// TestSequencedTaskRunner_UpdatePriority verifies live re-ranking
// Given: A best-effort sequenced runner with queued work behind a held worker
// When: UpdatePriority raises it to user-blocking
// Then: Its queued task outranks a user-visible task posted earlier
func TestSequencedTaskRunner_UpdatePriority(t *testing.T) {
	tracker := newTestTracker()
	group := newTestGroup(t, tracker, 1)
	defer group.JoinForTesting()

	var generator EnqueueOrderGenerator

	// Hold the single worker so queue order is observable.
	entered := make(chan struct{})
	release := make(chan struct{})
	postToGroup(t, tracker, group, &generator, DefaultTaskTraits(),
		func(context.Context) {
			close(entered)
			<-release
		})
	<-entered

	order := make(chan string, 2)

	visible := NewSequence(TraitsUserVisible(), &generator, DefaultTickClock{})
	visibleTask := Task{Run: func(context.Context) { order <- "visible" }}
	if !tracker.WillPostTask(&visibleTask, ShutdownBehaviorSkipOnShutdown) {
		t.Fatal("WillPostTask failed")
	}
	tx := visible.BeginTransaction()
	tx.PushTask(visibleTask)
	tx.Release()
	group.PushTaskSourceAndWakeUpWorkers(TryRegisterTaskSource(visible))

	lowly := NewSequence(TraitsBestEffort(), &generator, DefaultTickClock{})
	lowlyTask := Task{Run: func(context.Context) { order <- "promoted" }}
	if !tracker.WillPostTask(&lowlyTask, ShutdownBehaviorSkipOnShutdown) {
		t.Fatal("WillPostTask failed")
	}
	tx = lowly.BeginTransaction()
	tx.PushTask(lowlyTask)
	tx.Release()
	group.PushTaskSourceAndWakeUpWorkers(TryRegisterTaskSource(lowly))

	lowly.UpdatePriority(TaskPriorityUserBlocking)
	group.UpdateSortKey(lowly)

	close(release)
	tracker.FlushForTesting()

	first := <-order
	if first != "promoted" {
		t.Fatalf("first executed = %q, want promoted", first)
	}
}

// TestSequencedTaskRunner_PendingTasks verifies the queue-length surface
// Given: A sequenced runner on a pool whose worker is held
// When: Tasks pile up behind the held one
// Then: PendingTasks reflects the backlog and drains to zero
func TestSequencedTaskRunner_PendingTasks(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	runner := pool.CreateSequencedTaskRunner(DefaultTaskTraits())

	entered := make(chan struct{})
	release := make(chan struct{})
	runner.PostTask(func(context.Context) {
		close(entered)
		<-release
	})
	<-entered

	for i := 0; i < 3; i++ {
		runner.PostTask(func(context.Context) {})
	}
	if got := runner.PendingTasks(); got != 3 {
		t.Fatalf("PendingTasks = %d, want 3", got)
	}

	close(release)
	pool.FlushForTesting()
	if got := runner.PendingTasks(); got != 0 {
		t.Fatalf("PendingTasks after flush = %d, want 0", got)
	}
}
