package core

import (
	"sync"
)

const defaultSequenceCap = 8

// Sequence is the FIFO task source: tasks run one at a time, in posting
// order, but not necessarily on the same worker. A Sequence is shared between
// the task runner that posts to it and the thread group that schedules it;
// the garbage collector reclaims it when the last holder drops it.
type Sequence struct {
	mu sync.Mutex

	taskSourceBase

	tasks  []Task
	traits TaskTraits

	// hasWorker is true while one worker is between WillRunTask and
	// DidProcessTask. It enforces concurrency 1: a second worker that pops
	// this sequence meanwhile is turned away with RunStatusDisallowed.
	hasWorker bool

	generator *EnqueueOrderGenerator
	clock     TickClock
}

// NewSequence creates an empty sequence. Tasks pushed onto it get their
// enqueue order from generator and their queue time from clock.
func NewSequence(traits TaskTraits, generator *EnqueueOrderGenerator, clock TickClock) *Sequence {
	return &Sequence{
		tasks:     make([]Task, 0, defaultSequenceCap),
		traits:    traits,
		generator: generator,
		clock:     clock,
	}
}

// =============================================================================
// Transaction: Exclusive mutation window
// =============================================================================

// SequenceTransaction holds the sequence lock open so a poster can push one or
// more tasks atomically with respect to the worker-side protocol. Release must
// be called exactly once.
type SequenceTransaction struct {
	seq *Sequence
}

// BeginTransaction locks the sequence for mutation.
func (s *Sequence) BeginTransaction() SequenceTransaction {
	s.mu.Lock()
	return SequenceTransaction{seq: s}
}

// PushTask appends a task, stamping its enqueue order and queue time. Returns
// true if the sequence went from empty-and-idle to ready, in which case the
// caller must register and enqueue the sequence with a thread group.
func (t SequenceTransaction) PushTask(task Task) bool {
	s := t.seq
	task.SequenceNum = s.generator.GenerateNext()
	task.QueueTime = s.clock.NowTicks()
	s.tasks = append(s.tasks, task)
	return len(s.tasks) == 1 && !s.hasWorker
}

// Release unlocks the sequence.
func (t SequenceTransaction) Release() {
	t.seq.mu.Unlock()
}

// =============================================================================
// TaskSource implementation
// =============================================================================

// WillRunTask reserves the right to take one task. Concurrency 1: at most one
// worker holds the reservation at a time.
func (s *Sequence) WillRunTask() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasWorker || len(s.tasks) == 0 {
		return RunStatusDisallowed
	}
	s.hasWorker = true
	return RunStatusAllowedSaturated
}

// TakeTask consumes the front task. Only valid after WillRunTask allowed it.
func (s *Sequence) TakeTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkf(s.hasWorker, "TakeTask without WillRunTask reservation")
	checkf(len(s.tasks) > 0, "TakeTask on empty sequence")

	task := s.tasks[0]
	// Zero out the slot so the closure is collectable immediately.
	s.tasks[0] = Task{}
	s.tasks = s.tasks[1:]
	s.maybeCompactLocked()
	return &task
}

// DidProcessTask releases the reservation. Returns true if the sequence still
// holds tasks and should be re-enqueued by the caller.
func (s *Sequence) DidProcessTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkf(s.hasWorker, "DidProcessTask without WillRunTask reservation")
	s.hasWorker = false
	return len(s.tasks) > 0
}

// SortKey ranks the sequence by its priority and the enqueue order of its
// front task.
func (s *Sequence) SortKey() SequenceSortKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := enqueueOrderNone
	if len(s.tasks) > 0 {
		next = s.tasks[0].SequenceNum
	}
	return NewSequenceSortKey(s.traits.Priority, next)
}

// Traits returns the sequence's traits.
func (s *Sequence) Traits() TaskTraits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits
}

// UpdatePriority changes the sequence's priority. The owning thread group must
// be notified separately (ThreadGroup.UpdateSortKey) for the change to affect
// an already-queued sequence.
func (s *Sequence) UpdatePriority(priority TaskPriority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traits.Priority = priority
}

// Len returns the number of queued tasks.
func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Clear drops all queued tasks, releasing their closures.
func (s *Sequence) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make([]Task, 0, defaultSequenceCap)
}

const (
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

func (s *Sequence) maybeCompactLocked() {
	n := len(s.tasks)
	c := cap(s.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		s.tasks = make([]Task, 0, defaultSequenceCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultSequenceCap), n)
	newSlice := make([]Task, n, newCap)
	copy(newSlice, s.tasks)
	s.tasks = newSlice
}
