package threadpool

import (
	"sync"
	"time"

	"github.com/Swind/go-thread-pool/core"
)

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalPool *core.ThreadPool
	globalMu   sync.Mutex
)

// InitGlobal initializes and starts the process-wide thread pool. Call once
// at application startup. Returns the error from Start for invalid configs;
// a second call is a no-op returning nil.
func InitGlobal(name string, cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		return nil // Already initialized
	}

	pool := core.NewThreadPool(name)
	if err := pool.Start(cfg); err != nil {
		return err
	}
	globalPool = pool
	return nil
}

// Global returns the global thread pool instance. It panics if InitGlobal has
// not been called; posting before initialization is a startup-order bug.
func Global() *core.ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		panic("threadpool: global pool not initialized, call InitGlobal() first")
	}
	return globalPool
}

// ShutdownGlobal shuts down the global pool, blocking until every
// BlockShutdown task completes, and clears the singleton so tests can
// re-initialize.
func ShutdownGlobal() {
	globalMu.Lock()
	pool := globalPool
	globalPool = nil
	globalMu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}

// =============================================================================
// Convenience posting via the global pool
// =============================================================================

// PostTask posts a one-shot parallel task to the global pool.
func PostTask(run Closure) bool {
	return Global().PostTask(run)
}

// PostTaskWithTraits posts a one-shot parallel task with the given traits.
func PostTaskWithTraits(run Closure, traits TaskTraits) bool {
	return Global().PostTaskWithTraits(run, traits)
}

// PostDelayedTask posts a task that runs no earlier than now+delay.
func PostDelayedTask(run Closure, delay time.Duration) bool {
	return Global().PostDelayedTask(run, delay)
}

// PostJob schedules a data-parallel job on the global pool.
func PostJob(run Closure, maxConcurrency MaxConcurrencyCallback, traits TaskTraits) *JobHandle {
	return Global().PostJob(run, maxConcurrency, traits)
}

// CreateTaskRunner returns a parallel runner backed by the global pool.
func CreateTaskRunner(traits TaskTraits) TaskRunner {
	return Global().CreateTaskRunner(traits)
}

// CreateSequencedTaskRunner returns a sequenced runner backed by the global
// pool. This is the recommended way to get ordered execution.
func CreateSequencedTaskRunner(traits TaskTraits) *SequencedTaskRunner {
	return Global().CreateSequencedTaskRunner(traits)
}

// CreateSingleThreadTaskRunner returns a dedicated-goroutine runner backed by
// the global pool.
func CreateSingleThreadTaskRunner(traits TaskTraits) *SingleThreadTaskRunner {
	return Global().CreateSingleThreadTaskRunner(traits)
}
