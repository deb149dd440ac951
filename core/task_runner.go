package core

import (
	"context"
	"sync/atomic"
	"time"
)

// =============================================================================
// Parallel task runner: tasks may run concurrently, no ordering
// =============================================================================

// parallelTaskRunner posts each task as its own single-task sequence, so
// unrelated tasks can run on as many workers as the group allows.
type parallelTaskRunner struct {
	pool   *ThreadPool
	traits TaskTraits
	group  *ThreadGroup
}

func (r *parallelTaskRunner) PostTask(run Closure) bool {
	return r.post(run, 0, r.traits, CallerLocation(1))
}

func (r *parallelTaskRunner) PostTaskWithTraits(run Closure, traits TaskTraits) bool {
	return r.post(run, 0, traits, CallerLocation(1))
}

func (r *parallelTaskRunner) PostDelayedTask(run Closure, delay time.Duration) bool {
	return r.post(run, delay, r.traits, CallerLocation(1))
}

func (r *parallelTaskRunner) PostDelayedTaskWithTraits(run Closure, delay time.Duration, traits TaskTraits) bool {
	return r.post(run, delay, traits, CallerLocation(1))
}

func (r *parallelTaskRunner) post(run Closure, delay time.Duration, traits TaskTraits, from Location) bool {
	task := Task{Run: bindRunner(run, r), PostedFrom: from}
	// Per-call traits may target a different group than the runner default.
	return r.pool.schedule(task, delay, traits, nil, r.pool.resolveGroup(traits), r)
}

// PostRepeatingTask runs the closure every interval until the handle is
// stopped. The first run happens after one interval.
func (r *parallelTaskRunner) PostRepeatingTask(run Closure, interval time.Duration) RepeatingTaskHandle {
	return postRepeating(r, run, interval)
}

// =============================================================================
// Sequenced task runner: strict FIFO, one task at a time
// =============================================================================

// SequencedTaskRunner guarantees its tasks run one at a time, in posting
// order. Consecutive tasks may run on different workers; callers get ordering,
// not thread affinity.
type SequencedTaskRunner struct {
	pool   *ThreadPool
	traits TaskTraits
	group  *ThreadGroup
	seq    *Sequence
}

func (r *SequencedTaskRunner) PostTask(run Closure) bool {
	return r.post(run, 0, r.traits, CallerLocation(1))
}

// PostTaskWithTraits posts with the given traits. The sequence's priority is
// fixed at runner creation (use UpdatePriority to change it); the per-call
// traits only contribute the shutdown behavior used for admission.
func (r *SequencedTaskRunner) PostTaskWithTraits(run Closure, traits TaskTraits) bool {
	return r.post(run, 0, traits, CallerLocation(1))
}

func (r *SequencedTaskRunner) PostDelayedTask(run Closure, delay time.Duration) bool {
	return r.post(run, delay, r.traits, CallerLocation(1))
}

func (r *SequencedTaskRunner) PostDelayedTaskWithTraits(run Closure, delay time.Duration, traits TaskTraits) bool {
	return r.post(run, delay, traits, CallerLocation(1))
}

func (r *SequencedTaskRunner) post(run Closure, delay time.Duration, traits TaskTraits, from Location) bool {
	task := Task{Run: bindRunner(run, r), PostedFrom: from}
	// The sequence is bound to its group for life; per-call traits cannot
	// move tasks across groups without breaking FIFO.
	return r.pool.schedule(task, delay, traits, r.seq, r.group, r)
}

// PostRepeatingTask runs the closure every interval, in sequence order,
// until the handle is stopped.
func (r *SequencedTaskRunner) PostRepeatingTask(run Closure, interval time.Duration) RepeatingTaskHandle {
	return postRepeating(r, run, interval)
}

// UpdatePriority changes the priority of all queued and future tasks on this
// runner and immediately re-ranks the sequence in its group's queue.
func (r *SequencedTaskRunner) UpdatePriority(priority TaskPriority) {
	r.seq.UpdatePriority(priority)
	r.traits.Priority = priority
	r.group.UpdateSortKey(r.seq)
}

// PendingTasks returns how many tasks are queued on the sequence, not
// counting one currently running.
func (r *SequencedTaskRunner) PendingTasks() int {
	return r.seq.Len()
}

// =============================================================================
// Shared helpers
// =============================================================================

// bindRunner makes the posting runner reachable from inside the task via
// GetCurrentTaskRunner.
func bindRunner(run Closure, r TaskRunner) Closure {
	return func(ctx context.Context) {
		run(withTaskRunner(ctx, r))
	}
}

type repeatingHandle struct {
	stopped atomic.Bool
}

func (h *repeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *repeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

// postRepeating schedules run every interval on the given runner. Each
// repetition reposts the next one, so a stopped handle simply breaks the
// chain. Rejection at repost time (pool shutting down) also ends the chain.
func postRepeating(r TaskRunner, run Closure, interval time.Duration) RepeatingTaskHandle {
	checkf(interval > 0, "repeating task interval must be positive, got %v", interval)
	handle := &repeatingHandle{}

	var tick Closure
	tick = func(ctx context.Context) {
		if handle.stopped.Load() {
			return
		}
		run(ctx)
		if handle.stopped.Load() {
			return
		}
		if !r.PostDelayedTask(tick, interval) {
			handle.stopped.Store(true)
		}
	}
	if !r.PostDelayedTask(tick, interval) {
		handle.stopped.Store(true)
	}
	return handle
}
