package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the configuration consumed by ThreadPool.Start.
// All handlers are optional; if not provided, default implementations will be used.
type Config struct {
	// MaxNumForegroundThreads bounds the foreground group's concurrency.
	MaxNumForegroundThreads int

	// MaxNumBackgroundThreads bounds the background group. When 0, it is
	// derived as max(1, MaxNumForegroundThreads/2).
	MaxNumBackgroundThreads int

	// SuggestedReclaimTime is how long an idle worker survives before being
	// reclaimed.
	SuggestedReclaimTime time.Duration

	// AllTasksUserBlocking routes everything to the foreground group. Used
	// for testing and low-end-device heuristics.
	AllTasksUserBlocking bool

	// Clock is the monotonic time source; injectable for testing.
	Clock TickClock

	// WorkerInit runs at the start of every worker goroutine.
	WorkerInit WorkerInitHook

	// HistoryCapacity sizes the recent-task ring buffer (0 = default).
	HistoryCapacity int

	Logger              Logger
	Metrics             Metrics
	PanicHandler        PanicHandler
	RejectedTaskHandler RejectedTaskHandler
	TaskObserver        TaskObserver
}

// DefaultConfig returns a config with default handlers and sizes.
func DefaultConfig() Config {
	return Config{
		MaxNumForegroundThreads: 4,
		SuggestedReclaimTime:    defaultReclaimTime,
		Clock:                   DefaultTickClock{},
		Logger:                  NewDefaultLogger(),
		Metrics:                 &NilMetrics{},
		PanicHandler:            &DefaultPanicHandler{},
		RejectedTaskHandler:     &DefaultRejectedTaskHandler{},
	}
}

// ThreadPool is the top-level scheduler façade. It wires together the
// TaskTracker, the DelayedTaskManager, a foreground and a background
// ThreadGroup, and the single-thread runner registry.
//
// Lifecycle contract: construct with NewThreadPool, call Start exactly once
// before posting, Shutdown once at the end. Tests may construct as many
// isolated pools as they want; there is no hidden process-wide state.
type ThreadPool struct {
	name string

	generator EnqueueOrderGenerator
	clock     TickClock
	logger    Logger
	metrics   Metrics

	tracker    *TaskTracker
	delayed    *DelayedTaskManager
	foreground *ThreadGroup
	background *ThreadGroup
	history    *executionHistory

	allTasksUserBlocking bool
	workerInit           WorkerInitHook
	started              atomic.Bool
	joined               atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	stMu               sync.Mutex
	singleThreadRunner []*SingleThreadTaskRunner
}

// NewThreadPool creates a stopped pool. Nothing runs until Start.
func NewThreadPool(name string) *ThreadPool {
	return &ThreadPool{name: name}
}

// Start creates the thread groups and the delayed-task service goroutine.
// Must be called exactly once, before any posting.
func (p *ThreadPool) Start(cfg Config) error {
	if cfg.MaxNumForegroundThreads < 1 {
		return fmt.Errorf("threadpool %q: MaxNumForegroundThreads must be >= 1, got %d",
			p.name, cfg.MaxNumForegroundThreads)
	}
	if cfg.MaxNumBackgroundThreads < 0 {
		return fmt.Errorf("threadpool %q: MaxNumBackgroundThreads must be >= 0, got %d",
			p.name, cfg.MaxNumBackgroundThreads)
	}
	checkf(!p.started.Load(), "pool %q started twice", p.name)

	if cfg.MaxNumBackgroundThreads == 0 {
		cfg.MaxNumBackgroundThreads = max(1, cfg.MaxNumForegroundThreads/2)
	}
	if cfg.Clock == nil {
		cfg.Clock = DefaultTickClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.SuggestedReclaimTime <= 0 {
		cfg.SuggestedReclaimTime = defaultReclaimTime
	}

	p.clock = cfg.Clock
	p.logger = cfg.Logger
	p.metrics = cfg.Metrics
	p.allTasksUserBlocking = cfg.AllTasksUserBlocking
	p.workerInit = cfg.WorkerInit
	p.ctx, p.cancel = context.WithCancel(context.Background())

	history := newExecutionHistory(cfg.HistoryCapacity)
	p.history = &history

	p.tracker = NewTaskTracker(cfg.Logger, cfg.Metrics, cfg.PanicHandler,
		cfg.RejectedTaskHandler, cfg.TaskObserver, p.history, cfg.Clock)
	p.delayed = NewDelayedTaskManager(cfg.Clock)

	p.foreground = NewThreadGroup(ThreadGroupConfig{
		Name:        p.name + "-foreground",
		MaxWorkers:  cfg.MaxNumForegroundThreads,
		ReclaimTime: cfg.SuggestedReclaimTime,
		WorkerInit:  cfg.WorkerInit,
	}, p.tracker, cfg.Logger, cfg.Metrics)
	p.background = NewThreadGroup(ThreadGroupConfig{
		Name:         p.name + "-background",
		MaxWorkers:   cfg.MaxNumBackgroundThreads,
		ReclaimTime:  cfg.SuggestedReclaimTime,
		PriorityHint: "background",
		WorkerInit:   cfg.WorkerInit,
	}, p.tracker, cfg.Logger, cfg.Metrics)

	p.foreground.Start(p.ctx)
	p.background.Start(p.ctx)
	p.delayed.Start()

	p.started.Store(true)
	p.logger.Info("thread pool started",
		F("pool", p.name),
		F("foreground_workers", cfg.MaxNumForegroundThreads),
		F("background_workers", cfg.MaxNumBackgroundThreads))
	return nil
}

// Name returns the pool's name.
func (p *ThreadPool) Name() string {
	return p.name
}

// =============================================================================
// Posting
// =============================================================================

// PostTask posts a one-shot task with default traits. Returns false when the
// task was rejected (pool shutting down).
func (p *ThreadPool) PostTask(run Closure) bool {
	return p.postDelayedTask(run, 0, DefaultTaskTraits())
}

// PostTaskWithTraits posts a one-shot task with the given traits.
func (p *ThreadPool) PostTaskWithTraits(run Closure, traits TaskTraits) bool {
	return p.postDelayedTask(run, 0, traits)
}

// PostDelayedTask posts a task that runs no earlier than now+delay.
func (p *ThreadPool) PostDelayedTask(run Closure, delay time.Duration) bool {
	return p.postDelayedTask(run, delay, DefaultTaskTraits())
}

// PostDelayedTaskWithTraits posts a delayed task with the given traits.
func (p *ThreadPool) PostDelayedTaskWithTraits(run Closure, delay time.Duration, traits TaskTraits) bool {
	return p.postDelayedTask(run, delay, traits)
}

func (p *ThreadPool) postDelayedTask(run Closure, delay time.Duration, traits TaskTraits) bool {
	checkf(p.started.Load(), "PostTask before Start on pool %q", p.name)
	task := Task{Run: run, PostedFrom: CallerLocation(2)}
	return p.schedule(task, delay, traits, nil, p.resolveGroup(traits), nil)
}

// schedule routes a task either directly onto a sequence or through the
// delayed task manager. A nil seq means a fresh one-off sequence per task.
func (p *ThreadPool) schedule(task Task, delay time.Duration, traits TaskTraits,
	seq *Sequence, group *ThreadGroup, keepAlive any) bool {
	if delay <= 0 {
		return p.postTaskNow(task, traits, seq, group)
	}
	if !p.tracker.WillPostDelayedTask(&task, traits.ShutdownBehavior) {
		return false
	}
	task.Delay = delay
	task.DelayedRunTime = p.clock.NowTicks().Add(delay)
	// Admission control runs again when the task ripens, so a delayed task
	// whose shutdown behavior does not block shutdown is still dropped if
	// the pool starts shutting down while it waits.
	p.delayed.AddDelayedTask(task, func(ripe Task) {
		p.postTaskNow(ripe, traits, seq, group)
	}, keepAlive)
	return true
}

// postTaskNow pushes a task through admission control onto a sequence and
// schedules the sequence with the target group. A nil seq means a one-off
// sequence carrying just this task (parallel execution mode).
func (p *ThreadPool) postTaskNow(task Task, traits TaskTraits, seq *Sequence, group *ThreadGroup) bool {
	if !p.tracker.WillPostTask(&task, traits.ShutdownBehavior) {
		return false
	}
	if seq == nil {
		seq = NewSequence(traits, &p.generator, p.clock)
	}

	tx := seq.BeginTransaction()
	shouldEnqueue := tx.PushTask(task)
	tx.Release()

	if shouldEnqueue {
		if rts := TryRegisterTaskSource(seq); rts.Valid() {
			group.PushTaskSourceAndWakeUpWorkers(rts)
		}
	}
	return true
}

// resolveGroup maps traits to the foreground or background group.
func (p *ThreadPool) resolveGroup(traits TaskTraits) *ThreadGroup {
	if p.allTasksUserBlocking || traits.Priority > TaskPriorityBestEffort {
		return p.foreground
	}
	return p.background
}

// =============================================================================
// Task runners
// =============================================================================

// CreateTaskRunner returns a runner whose tasks may run in parallel with each
// other, in no particular order.
func (p *ThreadPool) CreateTaskRunner(traits TaskTraits) TaskRunner {
	checkf(p.started.Load(), "CreateTaskRunner before Start on pool %q", p.name)
	return &parallelTaskRunner{pool: p, traits: traits, group: p.resolveGroup(traits)}
}

// CreateSequencedTaskRunner returns a runner whose tasks run one at a time,
// in posting order, but not necessarily on the same worker.
func (p *ThreadPool) CreateSequencedTaskRunner(traits TaskTraits) *SequencedTaskRunner {
	checkf(p.started.Load(), "CreateSequencedTaskRunner before Start on pool %q", p.name)
	return &SequencedTaskRunner{
		pool:   p,
		traits: traits,
		group:  p.resolveGroup(traits),
		seq:    NewSequence(traits, &p.generator, p.clock),
	}
}

// CreateSingleThreadTaskRunner returns a runner with a dedicated goroutine.
// Use it for blocking IO loops, cgo with thread-local state, or anything that
// needs thread affinity. The pool joins it in JoinForTesting.
func (p *ThreadPool) CreateSingleThreadTaskRunner(traits TaskTraits) *SingleThreadTaskRunner {
	checkf(p.started.Load(), "CreateSingleThreadTaskRunner before Start on pool %q", p.name)
	r := newSingleThreadTaskRunner(p, traits)
	p.stMu.Lock()
	p.singleThreadRunner = append(p.singleThreadRunner, r)
	p.stMu.Unlock()
	return r
}

// =============================================================================
// Jobs
// =============================================================================

// JobHandle controls a parallel job posted with PostJob.
type JobHandle struct {
	source *JobTaskSource
	pool   *ThreadPool
	group  *ThreadGroup
}

// PostJob schedules run to be invoked concurrently by up to maxConcurrency()
// workers. The job completes when maxConcurrency returns 0 and no iteration
// is in flight.
func (p *ThreadPool) PostJob(run Closure, maxConcurrency MaxConcurrencyCallback, traits TaskTraits) *JobHandle {
	checkf(p.started.Load(), "PostJob before Start on pool %q", p.name)

	source := NewJobTaskSource(run, maxConcurrency, traits, &p.generator, p.clock)
	group := p.resolveGroup(traits)
	handle := &JobHandle{source: source, pool: p, group: group}

	if maxConcurrency() <= 0 {
		// Nothing to do; complete immediately.
		source.Cancel()
		return handle
	}
	if rts := TryRegisterTaskSource(source); rts.Valid() {
		group.PushTaskSourceAndWakeUpWorkers(rts)
	}
	return handle
}

// Join blocks until the job completes or is cancelled and drained.
func (h *JobHandle) Join() {
	<-h.source.Done()
}

// Cancel cooperatively stops the job and blocks until running iterations
// finish.
func (h *JobHandle) Cancel() {
	h.source.Cancel()
	<-h.source.Done()
}

// IsCompleted reports whether the job has completed or been cancelled and
// drained.
func (h *JobHandle) IsCompleted() bool {
	select {
	case <-h.source.Done():
		return true
	default:
		return false
	}
}

// NotifyConcurrencyIncrease tells the scheduler that maxConcurrency() grew,
// re-enqueueing the job so more workers can join.
func (h *JobHandle) NotifyConcurrencyIncrease() {
	if rts := TryRegisterTaskSource(h.source); rts.Valid() {
		h.group.PushTaskSourceAndWakeUpWorkers(rts)
	}
}

// =============================================================================
// Fences
// =============================================================================

// SetHasFence holds every queued task source back from workers while set.
func (p *ThreadPool) SetHasFence(hasFence bool) {
	if p.tracker.SetHasFence(hasFence) {
		p.didUpdateCanRunPolicy()
	}
}

// SetHasBestEffortFence holds best-effort task sources back while set.
func (p *ThreadPool) SetHasBestEffortFence(hasFence bool) {
	if p.tracker.SetHasBestEffortFence(hasFence) {
		p.didUpdateCanRunPolicy()
	}
}

func (p *ThreadPool) didUpdateCanRunPolicy() {
	p.foreground.DidUpdateCanRunPolicy()
	p.background.DidUpdateCanRunPolicy()
}

// =============================================================================
// Shutdown, flushing, joining
// =============================================================================

// Shutdown transitions the pool to SHUTDOWN_REQUESTED and blocks until every
// BlockShutdown task has completed. Tasks posted afterwards are rejected
// unless they are BlockShutdown. Worker goroutines stay alive (idle) until
// JoinForTesting.
func (p *ThreadPool) Shutdown() {
	checkf(p.started.Load(), "Shutdown before Start on pool %q", p.name)
	p.tracker.Shutdown()
	p.logger.Info("thread pool shutdown complete", F("pool", p.name))
}

// FlushForTesting blocks until all posted tasks have run or been skipped.
func (p *ThreadPool) FlushForTesting() {
	p.tracker.FlushForTesting()
}

// FlushAsyncForTesting invokes callback once all posted tasks have run or
// been skipped.
func (p *ThreadPool) FlushAsyncForTesting(callback func()) {
	p.tracker.FlushAsyncForTesting(callback)
}

// JoinForTesting joins every worker goroutine in every group, the delayed
// task service goroutine, and all single-thread runners. Only legal after
// Shutdown has fully drained; calling it earlier is a programming error.
func (p *ThreadPool) JoinForTesting() {
	checkf(p.started.Load(), "JoinForTesting before Start on pool %q", p.name)
	checkf(p.tracker.IsShutdownComplete(), "JoinForTesting before shutdown drained on pool %q", p.name)
	if !p.joined.CompareAndSwap(false, true) {
		return
	}

	p.delayed.Stop()
	p.foreground.JoinForTesting()
	p.background.JoinForTesting()

	p.stMu.Lock()
	runners := p.singleThreadRunner
	p.singleThreadRunner = nil
	p.stMu.Unlock()
	for _, r := range runners {
		r.Stop()
	}

	p.cancel()
}

// =============================================================================
// Introspection
// =============================================================================

// Stats returns a point-in-time snapshot of the pool.
func (p *ThreadPool) Stats() PoolStats {
	stats := PoolStats{
		Name:    p.name,
		Started: p.started.Load(),
	}
	if !stats.Started {
		return stats
	}
	stats.ShutdownStarted = p.tracker.HasShutdownStarted()
	stats.IncompleteTasks = p.tracker.IncompleteTaskCount()
	stats.DelayedTasks = p.delayed.TaskCount()
	stats.Groups = []GroupStats{p.foreground.Stats(), p.background.Stats()}
	return stats
}

// RecentTasks returns completed task execution records, newest first.
func (p *ThreadPool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.tracker.RecentTasks(limit)
}
