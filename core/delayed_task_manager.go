package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// PostTaskNowCallback hands a ripe task back into the immediate posting path.
type PostTaskNowCallback func(task Task)

// delayedTask is one heap entry. The keepAlive reference retains the posting
// TaskRunner until the task ripens, matching the contract that a delayed task
// keeps its runner reachable.
type delayedTask struct {
	task      Task
	postNow   PostTaskNowCallback
	keepAlive any
	index     int // for heap bookkeeping
}

// delayedTaskHeap implements heap.Interface ordered by DelayedRunTime.
type delayedTaskHeap []*delayedTask

func (h delayedTaskHeap) Len() int { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool {
	return h[i].task.DelayedRunTime.Before(h[j].task.DelayedRunTime)
}
func (h delayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedTaskHeap) Peek() *delayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayedTaskManager holds tasks with a future run time in a min-heap keyed
// by DelayedRunTime. A single service goroutine drives a timer and forwards
// ripe tasks to their post-now callbacks, so ProcessRipeTasks is never
// concurrent with itself; AddDelayedTask may race with it and takes the same
// lock.
type DelayedTaskManager struct {
	mu     sync.Mutex
	pq     delayedTaskHeap
	clock  TickClock
	wakeup chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped chan struct{}
}

// NewDelayedTaskManager creates a manager using the given clock. Tasks are
// not forwarded until Start is called.
func NewDelayedTaskManager(clock TickClock) *DelayedTaskManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayedTaskManager{
		pq:      make(delayedTaskHeap, 0),
		clock:   clock,
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	heap.Init(&dm.pq)
	return dm
}

// Start launches the service goroutine. Repeated calls are no-ops.
func (dm *DelayedTaskManager) Start() {
	dm.mu.Lock()
	if dm.started {
		dm.mu.Unlock()
		return
	}
	dm.started = true
	dm.mu.Unlock()

	go dm.loop()
}

// AddDelayedTask schedules postNow(task) for when task.DelayedRunTime
// arrives. keepAlive retains a reference (typically the posting TaskRunner)
// until then.
func (dm *DelayedTaskManager) AddDelayedTask(task Task, postNow PostTaskNowCallback, keepAlive any) {
	checkf(!task.DelayedRunTime.IsZero(), "delayed task without a delayed run time")

	dm.mu.Lock()
	item := &delayedTask{task: task, postNow: postNow, keepAlive: keepAlive}
	heap.Push(&dm.pq, item)
	isNext := item.index == 0
	dm.mu.Unlock()

	// Only the new earliest entry changes the timer deadline.
	if isNext {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

// ProcessRipeTasks pops every entry whose run time has arrived and forwards
// it to its post-now callback. Callbacks run outside the heap lock.
func (dm *DelayedTaskManager) ProcessRipeTasks() {
	dm.mu.Lock()

	now := dm.clock.NowTicks()
	var ripe []*delayedTask
	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.task.DelayedRunTime.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		ripe = append(ripe, item)
	}

	dm.mu.Unlock()

	for _, item := range ripe {
		item.postNow(item.task)
	}
}

// NextScheduledRunTime returns the run time of the earliest entry, if any.
func (dm *DelayedTaskManager) NextScheduledRunTime() (time.Time, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return time.Time{}, false
	}
	return item.task.DelayedRunTime, true
}

// TaskCount returns the number of tasks waiting to ripen.
func (dm *DelayedTaskManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}

// Stop terminates the service goroutine and drops pending entries, releasing
// their task runner references.
func (dm *DelayedTaskManager) Stop() {
	dm.mu.Lock()
	started := dm.started
	dm.mu.Unlock()

	dm.cancel()
	if started {
		<-dm.stopped
	}

	dm.mu.Lock()
	dm.pq = make(delayedTaskHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()
}

func (dm *DelayedTaskManager) loop() {
	defer close(dm.stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		wait, idle := dm.timeUntilNextRun()
		if idle {
			// No tasks, wait for a wakeup.
			wait = 1000 * time.Hour
		}
		timer.Reset(wait)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.ProcessRipeTasks()
		case <-dm.wakeup:
			// New earliest task, recalculate the deadline.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// timeUntilNextRun returns how long until the earliest entry ripens, or
// idle=true when the heap is empty. A non-positive wait means an entry is
// already ripe.
func (dm *DelayedTaskManager) timeUntilNextRun() (wait time.Duration, idle bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, true
	}
	return item.task.DelayedRunTime.Sub(dm.clock.NowTicks()), false
}
