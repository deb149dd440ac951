// Package threadpool provides a Chromium-inspired task scheduling architecture
// for Go.
//
// This library implements a threading model where developers post tasks to
// virtual threads (TaskRunners) rather than managing goroutines directly. The
// core design follows Chromium's Threading and Tasks system: tasks carry
// traits (priority, shutdown behavior), task sources group tasks that share
// ordering and concurrency semantics, and thread groups of worker goroutines
// pull the highest-priority source and execute one task at a time.
//
// # Quick Start
//
// Initialize the global thread pool at application startup:
//
//	threadpool.InitGlobal("app", threadpool.DefaultConfig())
//	defer threadpool.ShutdownGlobal()
//
// Create a SequencedTaskRunner for sequential task execution:
//
//	runner := threadpool.CreateSequencedTaskRunner(threadpool.DefaultTaskTraits())
//	runner.PostTask(func(ctx context.Context) {
//		// Your code here - guaranteed sequential execution
//	})
//
// # Key Concepts
//
// TaskRunner: Interface for posting tasks. Tasks posted to a
// SequencedTaskRunner execute sequentially, eliminating the need for locks on
// resources owned by that runner. A parallel runner places no ordering
// constraints at all, and a SingleThreadTaskRunner adds thread affinity on
// top of sequencing.
//
// TaskTraits: Describes task attributes including priority (BestEffort,
// UserVisible, UserBlocking) and shutdown behavior (ContinueOnShutdown,
// SkipOnShutdown, BlockShutdown). Priority determines when a sequence gets
// scheduled, never the order within a sequence.
//
// ThreadPool: The execution engine. It owns a foreground and a background
// thread group, a delayed-task service, and the shutdown bookkeeping.
// Best-effort work runs on the background group so it can never starve
// user-blocking work of workers.
//
// Jobs: PostJob schedules a user-supplied iteration closure across many
// workers at once, with a dynamic concurrency limit. Use it for
// data-parallel work that a plain task cannot express.
//
// # Shutdown
//
// Shutdown() blocks until every BlockShutdown task has completed.
// SkipOnShutdown tasks that have not started are skipped; ContinueOnShutdown
// tasks are best-effort. Posting after shutdown simply returns false, which
// is normal during teardown, not an error.
//
// # Thread Safety
//
// Tasks within a sequence never run concurrently, allowing lock-free
// programming for resources owned by that sequence. The scheduler asserts
// this invariant at runtime.
package threadpool
