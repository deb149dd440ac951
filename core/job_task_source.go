package core

import (
	"sync"
	"time"
)

// MaxConcurrencyCallback reports how many workers the job wants right now.
// It is called frequently from the scheduling path and must be fast. The job
// is complete once it returns 0 with no workers active.
type MaxConcurrencyCallback func() int

// JobTaskSource is the parallel task source: one repeating closure that many
// workers run concurrently, up to min(MaxConcurrencyCallback(), workers
// willing to join). Created by ThreadPool.PostJob.
type JobTaskSource struct {
	mu sync.Mutex

	taskSourceBase

	run            Closure
	maxConcurrency MaxConcurrencyCallback
	traits         TaskTraits

	// activeWorkers counts workers between WillRunTask and DidProcessTask.
	activeWorkers int
	cancelled     bool

	// done is closed when the job completes (no remaining concurrency and no
	// active workers) or is cancelled and drains.
	done     chan struct{}
	doneOnce sync.Once

	creationOrder EnqueueOrder
	creationTime  time.Time
}

// NewJobTaskSource wraps a repeating closure with a concurrency limit.
func NewJobTaskSource(run Closure, maxConcurrency MaxConcurrencyCallback, traits TaskTraits,
	generator *EnqueueOrderGenerator, clock TickClock) *JobTaskSource {
	checkf(run != nil, "job closure must not be nil")
	checkf(maxConcurrency != nil, "max concurrency callback must not be nil")
	return &JobTaskSource{
		run:            run,
		maxConcurrency: maxConcurrency,
		traits:         traits,
		done:           make(chan struct{}),
		creationOrder:  generator.GenerateNext(),
		creationTime:   clock.NowTicks(),
	}
}

// =============================================================================
// TaskSource implementation
// =============================================================================

// WillRunTask admits one more worker if the job still wants concurrency.
func (j *JobTaskSource) WillRunTask() RunStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	limit := j.remainingConcurrencyLocked()
	if limit <= j.activeWorkers {
		// The last admitted worker may already have left; this refusal is
		// then the final scheduler contact with the job.
		if limit == 0 && j.activeWorkers == 0 {
			j.signalDoneLocked()
		}
		return RunStatusDisallowed
	}
	j.activeWorkers++
	if j.activeWorkers < limit {
		return RunStatusAllowedNotSaturated
	}
	return RunStatusAllowedSaturated
}

// TakeTask materializes one iteration of the repeating closure.
func (j *JobTaskSource) TakeTask() *Task {
	j.mu.Lock()
	defer j.mu.Unlock()

	checkf(j.activeWorkers > 0, "TakeTask without WillRunTask admission")
	return &Task{
		Run:         j.run,
		QueueTime:   j.creationTime,
		SequenceNum: j.creationOrder,
	}
}

// DidProcessTask releases the worker slot. Returns true if the job still
// wants workers and should be re-enqueued.
func (j *JobTaskSource) DidProcessTask() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	checkf(j.activeWorkers > 0, "DidProcessTask without WillRunTask admission")
	j.activeWorkers--

	remaining := j.remainingConcurrencyLocked()
	if remaining == 0 && j.activeWorkers == 0 {
		j.signalDoneLocked()
	}
	return remaining > j.activeWorkers
}

// SortKey ranks the job by priority and creation order. Unlike a sequence the
// key is stable: the job has no "front task".
func (j *JobTaskSource) SortKey() SequenceSortKey {
	j.mu.Lock()
	defer j.mu.Unlock()
	return NewSequenceSortKey(j.traits.Priority, j.creationOrder)
}

// Traits returns the job's traits.
func (j *JobTaskSource) Traits() TaskTraits {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.traits
}

// UpdatePriority changes the job's priority for future scheduling decisions.
func (j *JobTaskSource) UpdatePriority(priority TaskPriority) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.traits.Priority = priority
}

// =============================================================================
// Job-specific operations
// =============================================================================

// Cancel cooperatively stops the job: no further iterations start; iterations
// already running finish normally.
func (j *JobTaskSource) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.cancelled = true
	if j.activeWorkers == 0 {
		j.signalDoneLocked()
	}
}

// IsCancelled reports whether Cancel has been called.
func (j *JobTaskSource) IsCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// ActiveWorkerCount returns the number of workers currently inside the job.
func (j *JobTaskSource) ActiveWorkerCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.activeWorkers
}

// Done returns a channel closed when the job has completed or been cancelled
// and all active iterations have finished.
func (j *JobTaskSource) Done() <-chan struct{} {
	return j.done
}

func (j *JobTaskSource) remainingConcurrencyLocked() int {
	if j.cancelled {
		return 0
	}
	limit := j.maxConcurrency()
	if limit < 0 {
		return 0
	}
	return limit
}

func (j *JobTaskSource) signalDoneLocked() {
	j.doneOnce.Do(func() { close(j.done) })
}
