package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task
	// - groupName: The thread group the panic occurred in
	// - postedFrom: Where the panicking task was posted
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, groupName string, postedFrom Location, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, groupName string, postedFrom Location, panicInfo any, stackTrace []byte) {
	fmt.Printf("[%s] Panic in task posted from %s: %v\nStack trace:\n%s",
		groupName, postedFrom, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance; they run inline on worker goroutines.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(groupName string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(groupName string, panicInfo any)

	// RecordQueueDepth records the number of task sources queued in a group.
	RecordQueueDepth(groupName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(groupName string, reason string)

	// RecordWorkerCount records the current worker count of a group.
	RecordWorkerCount(groupName string, count int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(groupName string, priority TaskPriority, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(groupName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(groupName string, depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(groupName string, reason string) {
}

// RecordWorkerCount is a no-op.
func (m *NilMetrics) RecordWorkerCount(groupName string, count int) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when admission control drops a task. This
// happens when the pool is shutting down and the task's shutdown behavior
// does not allow it to run.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a task is rejected.
	HandleRejectedTask(postedFrom Location, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(postedFrom Location, reason string) {
	fmt.Printf("Task posted from %s rejected: %s\n", postedFrom, reason)
}

// =============================================================================
// TaskObserver: Inline pre/post execution hooks
// =============================================================================

// TaskObserver is invoked immediately before and after each task runs, on the
// worker goroutine. Implementations must be fast and non-blocking.
type TaskObserver interface {
	BeforeRunTask(traits TaskTraits)
	AfterRunTask(traits TaskTraits)
}
