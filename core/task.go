package core

import (
	"context"
	"time"
)

// Closure is the unit of work. The core never inspects its contents; it is
// executed exactly once on a worker goroutine.
type Closure func(ctx context.Context)

// =============================================================================
// TaskTraits: Define task attributes (priority, blocking behavior, etc.)
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority. Best-effort work is routed to
	// the background thread group and can be held back by a best-effort fence.
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority.
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority. The user is waiting on the
	// result, so the scheduler prefers these sources over everything else.
	TaskPriorityUserBlocking
)

// String returns the lowercase label used in logs and metrics.
func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

// TaskShutdownBehavior describes what happens to a task when Shutdown() is
// called on the pool that owns it.
type TaskShutdownBehavior int

const (
	// ShutdownBehaviorContinueOnShutdown: The task may be skipped once
	// shutdown starts and never delays shutdown completion.
	ShutdownBehaviorContinueOnShutdown TaskShutdownBehavior = iota

	// ShutdownBehaviorSkipOnShutdown: The task is not started once shutdown
	// has been requested. Default.
	ShutdownBehaviorSkipOnShutdown

	// ShutdownBehaviorBlockShutdown: Shutdown() does not return until this
	// task has completed. Posting is still allowed during shutdown.
	ShutdownBehaviorBlockShutdown
)

// String returns the lowercase label used in logs and metrics.
func (b TaskShutdownBehavior) String() string {
	switch b {
	case ShutdownBehaviorContinueOnShutdown:
		return "continue_on_shutdown"
	case ShutdownBehaviorSkipOnShutdown:
		return "skip_on_shutdown"
	case ShutdownBehaviorBlockShutdown:
		return "block_shutdown"
	default:
		return "unknown"
	}
}

// TaskTraits is an immutable value describing how a task should be scheduled.
// It is copied into the Task at post time; the poster keeps ownership of its
// own copy.
type TaskTraits struct {
	Priority TaskPriority

	// MayBlock indicates the task may perform blocking calls (IO, cgo). The
	// owning thread group may spawn a replacement worker to preserve
	// concurrency while such a task blocks.
	MayBlock bool

	ShutdownBehavior TaskShutdownBehavior
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible, ShutdownBehavior: ShutdownBehaviorSkipOnShutdown}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking, ShutdownBehavior: ShutdownBehaviorSkipOnShutdown}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort, ShutdownBehavior: ShutdownBehaviorSkipOnShutdown}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible, ShutdownBehavior: ShutdownBehaviorSkipOnShutdown}
}

// WithShutdownBehavior returns a copy of the traits with the given behavior.
func (t TaskTraits) WithShutdownBehavior(b TaskShutdownBehavior) TaskTraits {
	t.ShutdownBehavior = b
	return t
}

// WithMayBlock returns a copy of the traits with MayBlock set.
func (t TaskTraits) WithMayBlock() TaskTraits {
	t.MayBlock = true
	return t
}

// =============================================================================
// Task: One closure plus scheduling metadata
// =============================================================================

// Task owns a single one-shot closure. It is created at post time, moved into
// a task source, and consumed exactly once when executed. Tasks are never
// copied after they enter a source.
type Task struct {
	Run        Closure
	PostedFrom Location

	// Delay is the requested delay at post time; DelayedRunTime is the
	// absolute tick at which the task becomes ripe (zero for immediate tasks).
	Delay          time.Duration
	DelayedRunTime time.Time

	// QueueTime is when the task entered its sequence; feeds the sort key.
	QueueTime time.Time

	// SequenceNum is assigned from the pool-wide EnqueueOrderGenerator when
	// the task is pushed onto a sequence. Within one sequence, values are
	// strictly increasing.
	SequenceNum EnqueueOrder
}

// =============================================================================
// TaskRunner interfaces
// =============================================================================

// TaskRunner posts tasks to a thread pool. PostTask-family calls return false
// when the task was rejected (pool shutting down); rejection is normal
// behavior during shutdown, not an error.
type TaskRunner interface {
	PostTask(run Closure) bool
	PostTaskWithTraits(run Closure, traits TaskTraits) bool
	PostDelayedTask(run Closure, delay time.Duration) bool
	PostDelayedTaskWithTraits(run Closure, delay time.Duration, traits TaskTraits) bool
}

// RepeatingTaskHandle controls the lifecycle of a repeating task.
type RepeatingTaskHandle interface {
	// Stop prevents future repetitions. The currently running repetition, if
	// any, is not interrupted.
	Stop()
	IsStopped() bool
}

// =============================================================================
// Context Helper
// =============================================================================

type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the TaskRunner the current task was posted to,
// or nil when the context does not come from a task execution.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}

func withTaskRunner(ctx context.Context, r TaskRunner) context.Context {
	return context.WithValue(ctx, taskRunnerKey, r)
}
