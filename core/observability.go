package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	SequenceNum EnqueueOrder
	PostedFrom  Location
	GroupName   string
	Priority    TaskPriority
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Panicked    bool
	Skipped     bool
}

// GroupStats represents runtime observability state for one thread group.
type GroupStats struct {
	Name          string
	Workers       int
	IdleWorkers   int
	MaxWorkers    int
	QueuedSources int
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	Name            string
	Started         bool
	ShutdownStarted bool
	IncompleteTasks int
	DelayedTasks    int
	Groups          []GroupStats
}
