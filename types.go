package threadpool

import (
	"context"
	"time"

	"github.com/Swind/go-thread-pool/core"
)

// Re-export commonly used types from the core package for convenience.
// This allows users to import only the threadpool package for most use cases.

// Closure is the unit of work.
type Closure = core.Closure

// Task is a closure plus its scheduling metadata.
type Task = core.Task

// TaskTraits defines task attributes (priority, blocking, shutdown behavior).
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks.
type TaskPriority = core.TaskPriority

// TaskShutdownBehavior defines what happens to a task at shutdown.
type TaskShutdownBehavior = core.TaskShutdownBehavior

// TaskRunner is the interface for posting tasks.
type TaskRunner = core.TaskRunner

// SequencedTaskRunner ensures sequential execution of tasks.
type SequencedTaskRunner = core.SequencedTaskRunner

// SingleThreadTaskRunner ensures all tasks execute on the same dedicated goroutine.
type SingleThreadTaskRunner = core.SingleThreadTaskRunner

// RepeatingTaskHandle controls the lifecycle of a repeating task.
type RepeatingTaskHandle = core.RepeatingTaskHandle

// JobHandle controls a parallel job posted with PostJob.
type JobHandle = core.JobHandle

// MaxConcurrencyCallback reports how many workers a job wants right now.
type MaxConcurrencyCallback = core.MaxConcurrencyCallback

// ThreadPool is the scheduler facade owning the thread groups.
type ThreadPool = core.ThreadPool

// Config configures ThreadPool.Start.
type Config = core.Config

// PoolStats and friends are point-in-time introspection snapshots.
type PoolStats = core.PoolStats
type GroupStats = core.GroupStats
type TaskExecutionRecord = core.TaskExecutionRecord

// Priority constants.
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Shutdown behavior constants.
const (
	ShutdownBehaviorContinueOnShutdown TaskShutdownBehavior = core.ShutdownBehaviorContinueOnShutdown
	ShutdownBehaviorSkipOnShutdown     TaskShutdownBehavior = core.ShutdownBehaviorSkipOnShutdown
	ShutdownBehaviorBlockShutdown      TaskShutdownBehavior = core.ShutdownBehaviorBlockShutdown
)

// Convenience functions for creating TaskTraits.
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsBestEffort   = core.TraitsBestEffort
	TraitsUserVisible  = core.TraitsUserVisible
)

// DefaultConfig returns a Config with default handlers and sizes.
var DefaultConfig = core.DefaultConfig

// NewThreadPool creates a stopped pool; call Start before posting. Most
// applications use the global helpers in pool.go instead.
var NewThreadPool = core.NewThreadPool

// GetCurrentTaskRunner retrieves the current TaskRunner from context.
var GetCurrentTaskRunner = core.GetCurrentTaskRunner

// TaskWithResult and ReplyWithResult for the generic PostTaskAndReply pattern.
// Generic type aliases require a newer Go toolchain, so these mirror the core
// definitions structurally and convert at the wrapper boundary.
type TaskWithResult[T any] func(ctx context.Context) (T, error)
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// PostTaskAndReply runs task on targetRunner, then posts reply to replyRunner.
var PostTaskAndReply = core.PostTaskAndReply

// PostTaskAndReplyWithResult passes the task's result to the reply callback.
// Generic functions cannot be re-exported through a var, so these are thin
// wrappers.
func PostTaskAndReplyWithResult[T any](targetRunner TaskRunner, task TaskWithResult[T],
	reply ReplyWithResult[T], replyRunner TaskRunner) bool {
	return core.PostTaskAndReplyWithResult(targetRunner,
		core.TaskWithResult[T](task), core.ReplyWithResult[T](reply), replyRunner)
}

// PostDelayedTaskAndReplyWithResult delays the task; the reply still runs
// immediately after the task completes.
func PostDelayedTaskAndReplyWithResult[T any](targetRunner TaskRunner, task TaskWithResult[T],
	delay time.Duration, reply ReplyWithResult[T], replyRunner TaskRunner) bool {
	return core.PostDelayedTaskAndReplyWithResult(targetRunner,
		core.TaskWithResult[T](task), delay, core.ReplyWithResult[T](reply), replyRunner)
}
