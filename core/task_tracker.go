package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ShutdownState tracks the pool-wide shutdown phase.
type ShutdownState int32

const (
	// StateRunning: All tasks are admitted.
	StateRunning ShutdownState = iota

	// StateShutdownRequested: Shutdown() has been called. Only BlockShutdown
	// tasks are admitted; queued tasks with weaker behaviors are skipped when
	// a worker reaches them.
	StateShutdownRequested

	// StateComplete: All BlockShutdown tasks finished; the process may exit.
	// Nothing is admitted or run.
	StateComplete
)

// CanRunPolicy gates which priorities workers may pop from their queues.
// Toggled by fences; re-evaluated by thread groups before each pop.
type CanRunPolicy int32

const (
	CanRunAll CanRunPolicy = iota
	CanRunForegroundOnly
	CanRunNone
)

// TaskTracker is the shutdown and flow-control gatekeeper. It decides whether
// a newly posted task may run given the current shutdown phase, counts
// in-flight tasks for FlushForTesting and shutdown draining, and owns the
// fence state feeding CanRunPolicy.
type TaskTracker struct {
	mu   sync.Mutex
	cond *sync.Cond // broadcast when counters or state change

	state              ShutdownState
	incompleteTasks    int // admitted tasks not yet finished or skipped
	blockShutdownTasks int // subset with ShutdownBehaviorBlockShutdown

	hasFence           bool
	hasBestEffortFence bool
	canRunPolicy       atomic.Int32

	flushCallbacks []func()

	logger          Logger
	metrics         Metrics
	panicHandler    PanicHandler
	rejectedHandler RejectedTaskHandler
	observer        TaskObserver
	history         *executionHistory
	clock           TickClock
}

// NewTaskTracker wires the tracker with the pool's collaborators. Any nil
// handler falls back to a default.
func NewTaskTracker(logger Logger, metrics Metrics, panicHandler PanicHandler,
	rejectedHandler RejectedTaskHandler, observer TaskObserver,
	history *executionHistory, clock TickClock) *TaskTracker {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	if panicHandler == nil {
		panicHandler = &DefaultPanicHandler{}
	}
	if rejectedHandler == nil {
		rejectedHandler = &DefaultRejectedTaskHandler{}
	}
	if clock == nil {
		clock = DefaultTickClock{}
	}
	t := &TaskTracker{
		logger:          logger,
		metrics:         metrics,
		panicHandler:    panicHandler,
		rejectedHandler: rejectedHandler,
		observer:        observer,
		history:         history,
		clock:           clock,
	}
	t.cond = sync.NewCond(&t.mu)
	t.canRunPolicy.Store(int32(CanRunAll))
	return t
}

// =============================================================================
// Admission control
// =============================================================================

// WillPostTask gate-checks a task about to be posted. Returns false when the
// task must be silently dropped (the only caller-visible signal is the
// boolean result of the PostTask-family call). On true, the task is counted
// as outstanding and MUST eventually reach RunAndPopNextTask so the counter
// is decremented on every exit path.
func (t *TaskTracker) WillPostTask(task *Task, behavior TaskShutdownBehavior) bool {
	t.mu.Lock()
	switch t.state {
	case StateComplete:
		t.mu.Unlock()
		t.rejectTask(task, "shutdown_complete")
		return false
	case StateShutdownRequested:
		if behavior != ShutdownBehaviorBlockShutdown {
			t.mu.Unlock()
			t.rejectTask(task, "shutdown_requested")
			return false
		}
	}

	t.incompleteTasks++
	if behavior == ShutdownBehaviorBlockShutdown {
		t.blockShutdownTasks++
	}
	t.mu.Unlock()
	return true
}

// WillPostDelayedTask gate-checks a task entering the delayed-task queue. It
// applies the same shutdown rules as WillPostTask but does not count the task
// as outstanding; full admission runs again when the task ripens.
func (t *TaskTracker) WillPostDelayedTask(task *Task, behavior TaskShutdownBehavior) bool {
	switch t.State() {
	case StateComplete:
		t.rejectTask(task, "shutdown_complete")
		return false
	case StateShutdownRequested:
		if behavior != ShutdownBehaviorBlockShutdown {
			t.rejectTask(task, "shutdown_requested")
			return false
		}
	}
	return true
}

func (t *TaskTracker) rejectTask(task *Task, reason string) {
	t.rejectedHandler.HandleRejectedTask(task.PostedFrom, reason)
	t.metrics.RecordTaskRejected("pool", reason)
}

// =============================================================================
// Execution
// =============================================================================

// RunAndPopNextTask executes exactly one task from the source (or skips it if
// the shutdown phase no longer allows it), decrements the outstanding counter
// on every exit path, and reports whether the source has remaining work and
// should be re-enqueued by the caller.
//
// The caller must hold a WillRunTask admission on the source.
func (t *TaskTracker) RunAndPopNextTask(ctx context.Context, source TaskSource, groupName string) bool {
	task := source.TakeTask()
	traits := source.Traits()

	if t.canRunTask(traits.ShutdownBehavior) {
		t.runTask(ctx, task, traits, groupName)
	} else {
		// A job whose iterations can no longer start will never finish its
		// work. Cancel it so DidProcessTask below drains it and closes Done
		// instead of asking to be re-enqueued.
		if job, ok := source.(*JobTaskSource); ok {
			job.Cancel()
		}
		if t.history != nil {
			t.history.Add(TaskExecutionRecord{
				SequenceNum: task.SequenceNum,
				PostedFrom:  task.PostedFrom,
				GroupName:   groupName,
				Priority:    traits.Priority,
				Skipped:     true,
			})
		}
	}

	// Job iterations are admitted by WillRunTask, not WillPostTask, so they
	// never entered the outstanding counters.
	if _, isJob := source.(*JobTaskSource); !isJob {
		t.didCompleteTask(traits.ShutdownBehavior)
	}
	return source.DidProcessTask()
}

// RunPostedTask executes a task that was admitted by WillPostTask but runs
// outside the thread-group protocol (dedicated-thread runners). It applies
// the same shutdown gating and decrements the outstanding counter.
func (t *TaskTracker) RunPostedTask(ctx context.Context, task *Task, traits TaskTraits, groupName string) {
	if t.canRunTask(traits.ShutdownBehavior) {
		t.runTask(ctx, task, traits, groupName)
	} else if t.history != nil {
		t.history.Add(TaskExecutionRecord{
			SequenceNum: task.SequenceNum,
			PostedFrom:  task.PostedFrom,
			GroupName:   groupName,
			Priority:    traits.Priority,
			Skipped:     true,
		})
	}
	t.didCompleteTask(traits.ShutdownBehavior)
}

func (t *TaskTracker) canRunTask(behavior TaskShutdownBehavior) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateRunning {
		return true
	}
	// Once shutdown starts, only BlockShutdown tasks may begin.
	return behavior == ShutdownBehaviorBlockShutdown && t.state != StateComplete
}

func (t *TaskTracker) runTask(ctx context.Context, task *Task, traits TaskTraits, groupName string) {
	if t.observer != nil {
		t.observer.BeforeRunTask(traits)
	}

	startedAt := t.clock.NowTicks()
	panicked := false

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				panicked = true
				t.panicHandler.HandlePanic(ctx, groupName, task.PostedFrom, rec, debug.Stack())
				t.metrics.RecordTaskPanic(groupName, rec)
			}
		}()
		task.Run(ctx)
	}()

	finishedAt := t.clock.NowTicks()
	t.metrics.RecordTaskDuration(groupName, traits.Priority, finishedAt.Sub(startedAt))
	if t.history != nil {
		t.history.Add(TaskExecutionRecord{
			SequenceNum: task.SequenceNum,
			PostedFrom:  task.PostedFrom,
			GroupName:   groupName,
			Priority:    traits.Priority,
			StartedAt:   startedAt,
			FinishedAt:  finishedAt,
			Duration:    finishedAt.Sub(startedAt),
			Panicked:    panicked,
		})
	}

	if t.observer != nil {
		t.observer.AfterRunTask(traits)
	}
}

// didCompleteTask decrements the outstanding counters and wakes waiters.
// Called exactly once per admitted task (run or skipped).
func (t *TaskTracker) didCompleteTask(behavior TaskShutdownBehavior) {
	t.mu.Lock()

	t.incompleteTasks--
	checkf(t.incompleteTasks >= 0, "negative outstanding task count")
	if behavior == ShutdownBehaviorBlockShutdown {
		t.blockShutdownTasks--
		checkf(t.blockShutdownTasks >= 0, "negative block-shutdown task count")
		if t.blockShutdownTasks == 0 && t.state == StateShutdownRequested {
			t.state = StateComplete
		}
	}

	var callbacks []func()
	if t.incompleteTasks == 0 {
		callbacks = t.flushCallbacks
		t.flushCallbacks = nil
	}

	t.cond.Broadcast()
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// =============================================================================
// Shutdown and flushing
// =============================================================================

// StartShutdown transitions to StateShutdownRequested (or directly to
// StateComplete when no BlockShutdown task is outstanding). Idempotent.
func (t *TaskTracker) StartShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return
	}
	if t.blockShutdownTasks == 0 {
		t.state = StateComplete
	} else {
		t.state = StateShutdownRequested
	}
	t.cond.Broadcast()
}

// CompleteShutdown blocks until every BlockShutdown task has finished.
func (t *TaskTracker) CompleteShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	checkf(t.state != StateRunning, "CompleteShutdown before StartShutdown")
	for t.state != StateComplete {
		t.cond.Wait()
	}
}

// Shutdown runs the full RUNNING -> SHUTDOWN_REQUESTED -> COMPLETE
// transition, blocking the caller until all BlockShutdown tasks are done.
func (t *TaskTracker) Shutdown() {
	t.StartShutdown()
	t.CompleteShutdown()
}

// State returns the current shutdown phase.
func (t *TaskTracker) State() ShutdownState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// HasShutdownStarted reports whether Shutdown has been requested.
func (t *TaskTracker) HasShutdownStarted() bool {
	return t.State() != StateRunning
}

// IsShutdownComplete reports whether every BlockShutdown task has finished.
func (t *TaskTracker) IsShutdownComplete() bool {
	return t.State() == StateComplete
}

// IncompleteTaskCount returns the number of admitted tasks that have not
// finished or been skipped yet.
func (t *TaskTracker) IncompleteTaskCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.incompleteTasks
}

// FlushForTesting blocks until the outstanding-task counter reaches zero.
func (t *TaskTracker) FlushForTesting() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.incompleteTasks > 0 {
		t.cond.Wait()
	}
}

// FlushAsyncForTesting invokes callback once the outstanding-task counter
// reaches zero. If it is already zero, the callback runs on a new goroutine.
func (t *TaskTracker) FlushAsyncForTesting(callback func()) {
	checkf(callback != nil, "nil flush callback")

	t.mu.Lock()
	if t.incompleteTasks == 0 {
		t.mu.Unlock()
		go callback()
		return
	}
	t.flushCallbacks = append(t.flushCallbacks, callback)
	t.mu.Unlock()
}

// =============================================================================
// Fences
// =============================================================================

// SetHasFence toggles the global fence. While set, no task source is handed
// to workers. Returns true when the resulting CanRunPolicy changed; the
// caller must then notify every thread group (DidUpdateCanRunPolicy).
func (t *TaskTracker) SetHasFence(hasFence bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasFence = hasFence
	return t.updateCanRunPolicyLocked()
}

// SetHasBestEffortFence toggles the best-effort fence. While set, sources at
// TaskPriorityBestEffort are held in their queues.
func (t *TaskTracker) SetHasBestEffortFence(hasFence bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasBestEffortFence = hasFence
	return t.updateCanRunPolicyLocked()
}

func (t *TaskTracker) updateCanRunPolicyLocked() bool {
	policy := CanRunAll
	switch {
	case t.hasFence:
		policy = CanRunNone
	case t.hasBestEffortFence:
		policy = CanRunForegroundOnly
	}
	changed := t.canRunPolicy.Swap(int32(policy)) != int32(policy)
	return changed
}

// CanRunPolicy returns the current policy. Lock-free; workers read it before
// every pop.
func (t *TaskTracker) CanRunPolicy() CanRunPolicy {
	return CanRunPolicy(t.canRunPolicy.Load())
}

// CanRunPriority applies the current policy to a priority.
func (t *TaskTracker) CanRunPriority(priority TaskPriority) bool {
	switch t.CanRunPolicy() {
	case CanRunAll:
		return true
	case CanRunForegroundOnly:
		return priority > TaskPriorityBestEffort
	default:
		return false
	}
}

// RecentTasks returns completed task execution records, newest first.
func (t *TaskTracker) RecentTasks(limit int) []TaskExecutionRecord {
	if t.history == nil {
		return nil
	}
	return t.history.Recent(limit)
}
