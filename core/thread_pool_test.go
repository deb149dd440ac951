package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T) *ThreadPool {
	t.Helper()
	pool := NewThreadPool("test-pool")
	cfg := DefaultConfig()
	cfg.MaxNumForegroundThreads = 4
	cfg.MaxNumBackgroundThreads = 2
	cfg.SuggestedReclaimTime = time.Second
	if err := pool.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return pool
}

// TestThreadPool_StartValidation verifies configuration checks
// Given: A config with zero foreground threads
// When: Start is called
// Then: It returns an error instead of creating goroutines
func TestThreadPool_StartValidation(t *testing.T) {
	pool := NewThreadPool("bad-pool")
	cfg := DefaultConfig()
	cfg.MaxNumForegroundThreads = 0
	if err := pool.Start(cfg); err == nil {
		t.Fatal("Start with zero foreground threads should fail")
	}
}

// TestThreadPool_RunsParallelTasks verifies unordered execution
// Given: A started pool
// When: Many independent tasks are posted
// Then: All of them run
func TestThreadPool_RunsParallelTasks(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		if !pool.PostTask(func(context.Context) { ran.Add(1) }) {
			t.Fatal("PostTask returned false on a running pool")
		}
	}
	pool.FlushForTesting()
	if got := ran.Load(); got != 50 {
		t.Fatalf("ran %d tasks, want 50", got)
	}
}

// TestThreadPool_SequencedRunnerFIFO verifies sequence ordering
// Given: A sequenced runner on a pool with several workers
// When: 100 tasks are posted to it
// Then: They run in posting order with no overlap
func TestThreadPool_SequencedRunnerFIFO(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	runner := pool.CreateSequencedTaskRunner(DefaultTaskTraits())

	var mu sync.Mutex
	var order []int
	var inFlight atomic.Int32
	for i := 0; i < 100; i++ {
		i := i
		runner.PostTask(func(context.Context) {
			if inFlight.Add(1) != 1 {
				t.Error("sequenced tasks overlapped")
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			inFlight.Add(-1)
		})
	}
	pool.FlushForTesting()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

// TestThreadPool_DelayedTaskNeverRunsEarly verifies delay semantics
// Given: A task posted with a 50ms delay
// When: It eventually runs
// Then: At least the requested delay has elapsed since posting
func TestThreadPool_DelayedTaskNeverRunsEarly(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	const delay = 50 * time.Millisecond
	posted := time.Now()
	ran := make(chan time.Time, 1)
	if !pool.PostDelayedTask(func(context.Context) { ran <- time.Now() }, delay) {
		t.Fatal("PostDelayedTask returned false")
	}

	select {
	case at := <-ran:
		if elapsed := at.Sub(posted); elapsed < delay {
			t.Fatalf("task ran after %v, want at least %v", elapsed, delay)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delayed task never ran")
	}
}

// TestThreadPool_ShutdownBlocksOnBlockShutdownTasks verifies drain behavior
// Given: A running BlockShutdown task and a queued SkipOnShutdown task
// When: Shutdown is called
// Then: Shutdown waits for the former, skips the latter, and later posts of
// any behavior return false
func TestThreadPool_ShutdownBlocksOnBlockShutdownTasks(t *testing.T) {
	pool := newTestPool(t)
	defer pool.JoinForTesting()

	blockTraits := DefaultTaskTraits().WithShutdownBehavior(ShutdownBehaviorBlockShutdown)
	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	pool.PostTaskWithTraits(func(context.Context) {
		close(entered)
		<-release
		close(finished)
	}, blockTraits)
	<-entered

	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned while a BlockShutdown task was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown never returned")
	}
	<-finished

	if pool.PostTask(func(context.Context) {}) {
		t.Fatal("PostTask succeeded after shutdown completed")
	}
	if pool.PostTaskWithTraits(func(context.Context) {}, blockTraits) {
		t.Fatal("BlockShutdown post succeeded after shutdown completed")
	}
}

// TestThreadPool_PostJob verifies job lifecycle through the pool
// Given: A job with a fixed amount of work
// When: PostJob is called and the handle joined
// Then: All work items execute and the handle reports completion
func TestThreadPool_PostJob(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	var remaining atomic.Int32
	remaining.Store(100)
	handle := pool.PostJob(func(context.Context) {
		remaining.Add(-1)
	}, func() int {
		if n := remaining.Load(); n > 0 {
			return int(n)
		}
		return 0
	}, TraitsUserVisible())

	handle.Join()
	if !handle.IsCompleted() {
		t.Fatal("IsCompleted = false after Join")
	}
	if got := remaining.Load(); got != 0 {
		t.Fatalf("remaining work = %d, want 0", got)
	}
}

// TestThreadPool_JobCancel verifies cooperative cancellation
// Given: A job with far more work than can finish instantly
// When: Cancel is called
// Then: Cancel returns once active iterations drain and the job stops short
func TestThreadPool_JobCancel(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	var done atomic.Int32
	handle := pool.PostJob(func(context.Context) {
		done.Add(1)
		time.Sleep(time.Millisecond)
	}, func() int { return 1 << 20 }, TraitsUserVisible())

	for done.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	handle.Cancel()
	if !handle.IsCompleted() {
		t.Fatal("IsCompleted = false after Cancel returned")
	}
	if got := done.Load(); got >= 1<<20 {
		t.Fatalf("job ran %d iterations, expected cancellation to stop it early", got)
	}
}

// TestThreadPool_JobConcurrencyIncrease verifies the wake-up path
// Given: A job whose first work item is held open
// When: More work appears and NotifyConcurrencyIncrease is called
// Then: The new work is executed and the job completes
func TestThreadPool_JobConcurrencyIncrease(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	var remaining atomic.Int32
	remaining.Store(1)
	var first atomic.Bool
	first.Store(true)
	gate := make(chan struct{})
	handle := pool.PostJob(func(context.Context) {
		if first.CompareAndSwap(true, false) {
			<-gate
		}
		remaining.Add(-1)
	}, func() int {
		if n := remaining.Load(); n > 0 {
			return int(n)
		}
		return 0
	}, TraitsUserVisible())

	// Grow the job while its first iteration is still in flight.
	remaining.Add(10)
	handle.NotifyConcurrencyIncrease()
	close(gate)

	done := make(chan struct{})
	go func() {
		handle.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never drained, remaining = %d", remaining.Load())
	}
	if got := remaining.Load(); got != 0 {
		t.Fatalf("remaining work = %d, want 0", got)
	}
}

// TestThreadPool_JobAliveAcrossShutdown verifies job teardown at shutdown
// Given: A job whose first iteration is still running when shutdown completes
// When: The iteration finishes
// Then: The job is cancelled instead of rescheduled, Join returns, and the
// scheduler does not spin skip records into the history
func TestThreadPool_JobAliveAcrossShutdown(t *testing.T) {
	pool := newTestPool(t)
	defer pool.JoinForTesting()

	var iterations atomic.Int32
	var first atomic.Bool
	first.Store(true)
	entered := make(chan struct{})
	release := make(chan struct{})
	handle := pool.PostJob(func(context.Context) {
		iterations.Add(1)
		if first.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
	}, func() int { return 1 }, TraitsUserVisible())
	<-entered

	// No BlockShutdown task is outstanding, so this returns immediately;
	// the job iteration is still in flight.
	pool.Shutdown()
	close(release)

	done := make(chan struct{})
	go func() {
		handle.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("JobHandle.Join hung after shutdown")
	}
	if got := iterations.Load(); got != 1 {
		t.Fatalf("job ran %d iterations, want 1 (none after shutdown)", got)
	}

	skipped := 0
	for _, rec := range pool.RecentTasks(0) {
		if rec.Skipped {
			skipped++
		}
	}
	if skipped > 1 {
		t.Fatalf("history holds %d skipped records, want at most 1", skipped)
	}
}

// TestThreadPool_DelayedPostGateDuringShutdown verifies post-time rejection
// Given: Shutdown has been requested but not completed
// When: Delayed tasks are posted
// Then: Non-BlockShutdown posts return false immediately; a BlockShutdown
// post is accepted and runs when it ripens
func TestThreadPool_DelayedPostGateDuringShutdown(t *testing.T) {
	pool := newTestPool(t)
	defer pool.JoinForTesting()

	blockTraits := DefaultTaskTraits().WithShutdownBehavior(ShutdownBehaviorBlockShutdown)
	entered := make(chan struct{})
	release := make(chan struct{})
	pool.PostTaskWithTraits(func(context.Context) {
		close(entered)
		<-release
	}, blockTraits)
	<-entered

	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()
	for !pool.Stats().ShutdownStarted {
		time.Sleep(time.Millisecond)
	}

	if pool.PostDelayedTask(func(context.Context) {}, time.Minute) {
		t.Fatal("SkipOnShutdown delayed post accepted during shutdown")
	}

	ran := make(chan struct{})
	if !pool.PostDelayedTaskWithTraits(func(context.Context) { close(ran) },
		10*time.Millisecond, blockTraits) {
		t.Fatal("BlockShutdown delayed post rejected during shutdown")
	}
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("BlockShutdown delayed task never ran")
	}

	close(release)
	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown never returned")
	}
}

// TestThreadPool_BestEffortRouting verifies group selection
// Given: A pool with distinct foreground and background groups
// When: Tasks of different priorities run
// Then: Best-effort work lands in the background group, the rest in the
// foreground group
func TestThreadPool_BestEffortRouting(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	pool.PostTaskWithTraits(func(context.Context) {}, TraitsBestEffort())
	pool.PostTaskWithTraits(func(context.Context) {}, TraitsUserBlocking())
	pool.FlushForTesting()

	records := pool.RecentTasks(2)
	if len(records) != 2 {
		t.Fatalf("RecentTasks returned %d records, want 2", len(records))
	}
	groupFor := map[TaskPriority]string{}
	for _, rec := range records {
		groupFor[rec.Priority] = rec.GroupName
	}
	if got := groupFor[TaskPriorityBestEffort]; got != "test-pool-background" {
		t.Fatalf("best-effort ran in %q, want test-pool-background", got)
	}
	if got := groupFor[TaskPriorityUserBlocking]; got != "test-pool-foreground" {
		t.Fatalf("user-blocking ran in %q, want test-pool-foreground", got)
	}
}

// TestThreadPool_AllTasksUserBlocking verifies the priority override
// Given: A pool started with AllTasksUserBlocking
// When: A best-effort task runs
// Then: It is routed to the foreground group
func TestThreadPool_AllTasksUserBlocking(t *testing.T) {
	pool := NewThreadPool("boosted-pool")
	cfg := DefaultConfig()
	cfg.MaxNumForegroundThreads = 2
	cfg.AllTasksUserBlocking = true
	if err := pool.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	pool.PostTaskWithTraits(func(context.Context) {}, TraitsBestEffort())
	pool.FlushForTesting()

	records := pool.RecentTasks(1)
	if len(records) != 1 || records[0].GroupName != "boosted-pool-foreground" {
		t.Fatalf("records = %+v, want one foreground execution", records)
	}
}

// TestThreadPool_Fence verifies the pool-level fence surface
// Given: A raised fence
// When: A task is posted, then the fence drops
// Then: The task runs only after the release
func TestThreadPool_Fence(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	pool.SetHasFence(true)
	ran := make(chan struct{})
	pool.PostTask(func(context.Context) { close(ran) })

	select {
	case <-ran:
		t.Fatal("task ran behind the fence")
	case <-time.After(50 * time.Millisecond):
	}

	pool.SetHasFence(false)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task never ran after the fence release")
	}
}

// TestThreadPool_Stats verifies the observability snapshot
// Given: A started pool that has run work
// When: Stats is queried
// Then: It reports the pool name, both groups, and a zero outstanding count
// after a flush
func TestThreadPool_Stats(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	pool.PostTask(func(context.Context) {})
	pool.FlushForTesting()

	stats := pool.Stats()
	if stats.Name != "test-pool" || !stats.Started {
		t.Fatalf("stats = %+v, want started pool test-pool", stats)
	}
	if len(stats.Groups) != 2 {
		t.Fatalf("stats has %d groups, want 2", len(stats.Groups))
	}
	if stats.IncompleteTasks != 0 {
		t.Fatalf("IncompleteTasks = %d, want 0 after flush", stats.IncompleteTasks)
	}
}

// TestThreadPool_GetCurrentTaskRunner verifies runner propagation
// Given: A task posted through a sequenced runner
// When: It inspects its context
// Then: GetCurrentTaskRunner returns the posting runner, usable for
// self-reposting
func TestThreadPool_GetCurrentTaskRunner(t *testing.T) {
	pool := newTestPool(t)
	defer func() {
		pool.Shutdown()
		pool.JoinForTesting()
	}()

	runner := pool.CreateSequencedTaskRunner(DefaultTaskTraits())
	second := make(chan struct{})
	runner.PostTask(func(ctx context.Context) {
		current := GetCurrentTaskRunner(ctx)
		if current == nil {
			t.Error("GetCurrentTaskRunner returned nil inside a task")
			close(second)
			return
		}
		current.PostTask(func(context.Context) { close(second) })
	})

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("self-reposted task never ran")
	}
}
