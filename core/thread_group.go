package core

import (
	"context"
	"sync"
	"time"
)

const defaultReclaimTime = 30 * time.Second

// WorkerInitHook runs at the start of every worker goroutine; the returned
// function (if any) runs when the worker exits. This is the injection point
// for per-thread environment setup (runtime.LockOSThread, foreign-runtime
// apartment initialization, etc.).
type WorkerInitHook func(groupName string, workerID int) func()

// ThreadGroupConfig configures one worker group.
type ThreadGroupConfig struct {
	Name string

	// MaxWorkers bounds concurrency. Workers running MayBlock tasks do not
	// count against the bound, so blocking tasks cannot starve the group.
	MaxWorkers int

	// MinWorkers is the number of workers kept alive through idle periods.
	// Defaults to 0: a fully idle group eventually has no goroutines.
	MinWorkers int

	// ReclaimTime is how long a worker stays idle before self-terminating.
	ReclaimTime time.Duration

	// PriorityHint is an opaque scheduling hint for the group's workers. Go
	// does not expose portable thread priorities, so it is only logged.
	PriorityHint string

	WorkerInit WorkerInitHook
}

// ThreadGroup owns a set of worker goroutines and a priority queue of ready
// task sources. Workers pop the most important eligible source, run one task
// from it through the TaskTracker, and re-enqueue the source if it has more
// work. Idle workers block on a wake channel with a reclaim timeout; the
// group grows and shrinks between MinWorkers and MaxWorkers on demand.
type ThreadGroup struct {
	name         string
	maxWorkers   int
	minWorkers   int
	reclaimTime  time.Duration
	priorityHint string
	workerInit   WorkerInitHook

	tracker *TaskTracker
	logger  Logger
	metrics Metrics

	mu             sync.Mutex
	pq             *PriorityQueue
	numWorkers     int
	idleWorkers    int
	blockedWorkers int // workers currently inside a MayBlock task
	nextWorkerID   int
	started        bool
	joining        bool

	wake   chan struct{}
	joinCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewThreadGroup creates a stopped group. Workers are not created until
// Start; work pushed before Start queues up.
func NewThreadGroup(cfg ThreadGroupConfig, tracker *TaskTracker, logger Logger, metrics Metrics) *ThreadGroup {
	checkf(cfg.MaxWorkers > 0, "thread group %q needs at least one worker", cfg.Name)
	checkf(cfg.MinWorkers >= 0 && cfg.MinWorkers <= cfg.MaxWorkers,
		"thread group %q min workers out of range", cfg.Name)
	if cfg.ReclaimTime <= 0 {
		cfg.ReclaimTime = defaultReclaimTime
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	return &ThreadGroup{
		name:         cfg.Name,
		maxWorkers:   cfg.MaxWorkers,
		minWorkers:   cfg.MinWorkers,
		reclaimTime:  cfg.ReclaimTime,
		priorityHint: cfg.PriorityHint,
		workerInit:   cfg.WorkerInit,
		tracker:      tracker,
		logger:       logger,
		metrics:      metrics,
		pq:           NewPriorityQueue(),
		wake:         make(chan struct{}, cfg.MaxWorkers*2),
		joinCh:       make(chan struct{}),
	}
}

// Name returns the group's name.
func (g *ThreadGroup) Name() string {
	return g.name
}

// Start allows workers to be created. Repeated calls are no-ops.
func (g *ThreadGroup) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return
	}
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.started = true
	if g.priorityHint != "" {
		g.logger.Info("thread group started",
			F("group", g.name), F("priority_hint", g.priorityHint))
	}
	g.ensureEnoughWorkersLocked()
}

// PushTaskSourceAndWakeUpWorkers inserts a registered source into the
// priority queue, then wakes (or spawns) a worker if one could run it.
func (g *ThreadGroup) PushTaskSourceAndWakeUpWorkers(source RegisteredTaskSource) {
	g.mu.Lock()
	g.pq.Insert(source, source.Source().SortKey())
	depth := g.pq.Len()
	g.ensureEnoughWorkersLocked()
	g.mu.Unlock()

	g.metrics.RecordQueueDepth(g.name, depth)
}

// UpdateSortKey re-ranks a source whose priority changed while registered in
// this group's queue. No-op when a worker currently holds the source; the
// worker recomputes the key on re-enqueue.
func (g *ThreadGroup) UpdateSortKey(source TaskSource) {
	g.mu.Lock()
	if g.pq.UpdateSortKey(source, source.SortKey()) {
		g.ensureEnoughWorkersLocked()
	}
	g.mu.Unlock()
}

// DidUpdateCanRunPolicy re-evaluates eligibility after a fence toggle and
// wakes idle workers that might now have eligible work.
func (g *ThreadGroup) DidUpdateCanRunPolicy() {
	g.mu.Lock()
	idle := g.idleWorkers
	g.ensureEnoughWorkersLocked()
	g.mu.Unlock()

	for i := 0; i < idle; i++ {
		select {
		case g.wake <- struct{}{}:
		default:
		}
	}
}

// JoinForTesting terminates and joins every worker. Only legal once shutdown
// has fully drained; enforced by the pool.
func (g *ThreadGroup) JoinForTesting() {
	g.mu.Lock()
	if g.joining {
		g.mu.Unlock()
		return
	}
	g.joining = true
	g.mu.Unlock()

	close(g.joinCh)
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

// Stats returns a snapshot of the group's state.
func (g *ThreadGroup) Stats() GroupStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GroupStats{
		Name:          g.name,
		Workers:       g.numWorkers,
		IdleWorkers:   g.idleWorkers,
		MaxWorkers:    g.maxWorkers,
		QueuedSources: g.pq.Len(),
	}
}

// WorkerCount returns the current number of live workers.
func (g *ThreadGroup) WorkerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.numWorkers
}

// =============================================================================
// Worker management
// =============================================================================

// ensureEnoughWorkersLocked wakes an idle worker, or spawns a new one, when
// the queue holds eligible work and the group is under capacity. Workers
// blocked in MayBlock tasks extend capacity so the group keeps its nominal
// concurrency.
func (g *ThreadGroup) ensureEnoughWorkersLocked() {
	if !g.started || g.joining {
		return
	}
	key, ok := g.pq.PeekSortKey()
	if !ok || !g.tracker.CanRunPriority(key.Priority()) {
		return
	}

	if g.idleWorkers > 0 {
		select {
		case g.wake <- struct{}{}:
		default:
		}
		return
	}

	capacity := g.maxWorkers + g.blockedWorkers
	if g.numWorkers < capacity {
		g.spawnWorkerLocked()
	}
}

func (g *ThreadGroup) spawnWorkerLocked() {
	g.numWorkers++
	id := g.nextWorkerID
	g.nextWorkerID++
	g.wg.Add(1)
	go g.workerLoop(id)

	g.metrics.RecordWorkerCount(g.name, g.numWorkers)
	g.logger.Debug("worker started", F("group", g.name), F("worker", id))
}

// workerLoop: IDLE -> RUNNING_TASK -> (IDLE | RECLAIMED). RECLAIMED is
// terminal: the goroutine returns after an idle timeout with no work, or at
// join.
func (g *ThreadGroup) workerLoop(id int) {
	defer g.wg.Done()

	if g.workerInit != nil {
		if cleanup := g.workerInit(g.name, id); cleanup != nil {
			defer cleanup()
		}
	}

	for {
		source, ok := g.getWork()
		if !ok {
			g.logger.Debug("worker reclaimed", F("group", g.name), F("worker", id))
			return
		}

		mayBlock := source.Traits().MayBlock
		if mayBlock {
			g.adjustBlocked(1)
		}
		again := g.tracker.RunAndPopNextTask(g.ctx, source, g.name)
		if mayBlock {
			g.adjustBlocked(-1)
		}

		if again {
			g.reEnqueueSource(source)
		}
	}
}

func (g *ThreadGroup) adjustBlocked(delta int) {
	g.mu.Lock()
	g.blockedWorkers += delta
	if delta > 0 {
		// A replacement may be needed while this worker blocks.
		g.ensureEnoughWorkersLocked()
	}
	g.mu.Unlock()
}

// getWork blocks until an eligible task source is available, returning false
// when the worker should terminate (join or idle reclaim).
func (g *ThreadGroup) getWork() (TaskSource, bool) {
	g.mu.Lock()
	timedOut := false

	for {
		if g.joining {
			g.numWorkers--
			g.mu.Unlock()
			return nil, false
		}

		if key, ok := g.pq.PeekSortKey(); ok && g.tracker.CanRunPriority(key.Priority()) {
			rts, _ := g.pq.PopTaskSource()
			rts.Unregister()
			source := rts.Source()
			g.mu.Unlock()

			switch source.WillRunTask() {
			case RunStatusDisallowed:
				// Drained or saturated by workers that popped it earlier.
				g.mu.Lock()
				continue
			case RunStatusAllowedNotSaturated:
				// The source can feed more workers concurrently: hand it
				// back to the queue before running our share.
				if again := TryRegisterTaskSource(source); again.Valid() {
					g.mu.Lock()
					g.pq.Insert(again, source.SortKey())
					g.ensureEnoughWorkersLocked()
					g.mu.Unlock()
				}
				return source, true
			default:
				return source, true
			}
		}

		if timedOut && g.numWorkers > g.minWorkers {
			g.numWorkers--
			count := g.numWorkers
			g.mu.Unlock()
			g.metrics.RecordWorkerCount(g.name, count)
			return nil, false
		}
		timedOut = false

		g.idleWorkers++
		g.mu.Unlock()

		timer := time.NewTimer(g.reclaimTime)
		select {
		case <-g.wake:
			timer.Stop()
		case <-timer.C:
			timedOut = true
		case <-g.joinCh:
			timer.Stop()
		}

		g.mu.Lock()
		g.idleWorkers--
	}
}

// reEnqueueSource puts a source a worker just ran back into the queue, unless
// another poster already re-registered it.
func (g *ThreadGroup) reEnqueueSource(source TaskSource) {
	rts := TryRegisterTaskSource(source)
	if !rts.Valid() {
		return
	}

	g.mu.Lock()
	if g.joining {
		g.mu.Unlock()
		rts.Unregister()
		return
	}
	g.pq.Insert(rts, source.SortKey())
	g.ensureEnoughWorkersLocked()
	g.mu.Unlock()
}
