package core

import "sync/atomic"

// RunStatus is returned by TaskSource.WillRunTask and tells the worker how
// much more work the source holds.
type RunStatus int

const (
	// RunStatusDisallowed: No task may be taken right now (source drained,
	// job cancelled, or concurrency limit reached).
	RunStatusDisallowed RunStatus = iota

	// RunStatusAllowedNotSaturated: A task may be taken and the source can
	// still feed additional workers concurrently.
	RunStatusAllowedNotSaturated

	// RunStatusAllowedSaturated: A task may be taken but the source cannot
	// accept more concurrent workers afterwards.
	RunStatusAllowedSaturated
)

// TaskSource is a schedulable group of tasks sharing ordering and concurrency
// semantics. Exactly two implementations exist: Sequence (FIFO, concurrency 1)
// and JobTaskSource (parallel, dynamic concurrency limit). The interface is
// closed: the embedded taskSourceBase cannot be implemented outside this
// package.
//
// The scheduling protocol, always in this order on a worker:
//
//	status := source.WillRunTask()   // reserve the right to run one task
//	task := source.TakeTask()        // consume it (only if status allows)
//	... execute ...
//	again := source.DidProcessTask() // release; true if more work remains
type TaskSource interface {
	WillRunTask() RunStatus
	TakeTask() *Task
	DidProcessTask() bool

	// SortKey snapshots the source's rank for the priority queue.
	SortKey() SequenceSortKey

	// Traits of the source. Priority is the only mutable trait; UpdatePriority
	// takes effect the next time the sort key is computed.
	Traits() TaskTraits
	UpdatePriority(priority TaskPriority)

	base() *taskSourceBase
}

// taskSourceBase carries the registration flag shared by both task source
// variants. "Registered" means the source is tracked by exactly one thread
// group at this instant: either sitting in its priority queue or held by one
// worker that popped it. The flag makes double-scheduling detectable.
type taskSourceBase struct {
	registered atomic.Bool
}

func (b *taskSourceBase) base() *taskSourceBase { return b }

// tryRegister attempts the unregistered->registered transition.
func (b *taskSourceBase) tryRegister() bool {
	return b.registered.CompareAndSwap(false, true)
}

func (b *taskSourceBase) unregister() {
	checkf(b.registered.CompareAndSwap(true, false), "unregister of unregistered task source")
}

// RegisteredTaskSource is the capability proving its holder is the single
// tracker of a task source. Ownership transfers along the scheduling path
// (runner -> priority queue -> worker) and is never shared. The zero value is
// empty.
type RegisteredTaskSource struct {
	source TaskSource
}

// RegisterTaskSource claims tracking of the source. It aborts the process if
// the source is already tracked somewhere; that is a scheduler bug, not a
// runtime condition.
func RegisterTaskSource(source TaskSource) RegisteredTaskSource {
	checkf(source.base().tryRegister(), "task source registered twice")
	return RegisteredTaskSource{source: source}
}

// TryRegisterTaskSource claims tracking of the source, or returns an empty
// capability if some other holder already tracks it.
func TryRegisterTaskSource(source TaskSource) RegisteredTaskSource {
	if !source.base().tryRegister() {
		return RegisteredTaskSource{}
	}
	return RegisteredTaskSource{source: source}
}

// Valid reports whether the capability holds a source.
func (r RegisteredTaskSource) Valid() bool {
	return r.source != nil
}

// Source returns the tracked task source.
func (r RegisteredTaskSource) Source() TaskSource {
	return r.source
}

// Unregister releases tracking, allowing the source to be registered again by
// a future post. The capability must not be used afterwards.
func (r RegisteredTaskSource) Unregister() {
	r.source.base().unregister()
}
