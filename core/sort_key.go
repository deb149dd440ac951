package core

// SequenceSortKey is an immutable snapshot ranking a task source in a thread
// group's priority queue. It is recomputed every time the source re-enters the
// queue, so priority updates take effect on the next scheduling decision.
type SequenceSortKey struct {
	priority TaskPriority

	// Enqueue order of the next task to run in the source when the key was
	// created. Earlier orders win among equal priorities.
	nextTaskSequenceNum EnqueueOrder
}

// NewSequenceSortKey builds a key from the source's current priority and the
// enqueue order of its next task.
func NewSequenceSortKey(priority TaskPriority, nextTaskSequenceNum EnqueueOrder) SequenceSortKey {
	return SequenceSortKey{priority: priority, nextTaskSequenceNum: nextTaskSequenceNum}
}

// Priority returns the priority captured by this key.
func (k SequenceSortKey) Priority() TaskPriority {
	return k.priority
}

// NextTaskSequenceNum returns the enqueue order captured by this key.
func (k SequenceSortKey) NextTaskSequenceNum() EnqueueOrder {
	return k.nextTaskSequenceNum
}

// Less reports whether k ranks strictly before other; "before" means more
// important. Higher priority wins; ties are broken by the earlier enqueue
// order, which is unique process-wide and therefore makes the order total.
func (k SequenceSortKey) Less(other SequenceSortKey) bool {
	if k.priority != other.priority {
		return k.priority > other.priority
	}
	return k.nextTaskSequenceNum < other.nextTaskSequenceNum
}
