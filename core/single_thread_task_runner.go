package core

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated goroutine to execute tasks
// sequentially. All of its tasks run on the same goroutine (thread affinity),
// unlike SequencedTaskRunner whose tasks hop between pool workers.
//
// Use cases:
// 1. Blocking IO loops (e.g. a network receiver)
// 2. cgo calls that require thread-local state
// 3. Simulating a main thread / UI thread
//
// Tasks still flow through the pool's TaskTracker, so shutdown behavior,
// flushing, panic handling, and metrics apply exactly as they do on pool
// workers. The pool joins the dedicated goroutine in JoinForTesting.
type SingleThreadTaskRunner struct {
	pool   *ThreadPool
	traits TaskTraits
	name   string

	mu     sync.Mutex
	queue  []singleThreadWorkItem
	wake   chan struct{}
	closed atomic.Bool

	stopOnce sync.Once
	stopping chan struct{}
	stopped  chan struct{}
}

type singleThreadWorkItem struct {
	task   Task
	traits TaskTraits
}

var singleThreadRunnerSeq atomic.Uint64

func newSingleThreadTaskRunner(pool *ThreadPool, traits TaskTraits) *SingleThreadTaskRunner {
	r := &SingleThreadTaskRunner{
		pool:     pool,
		traits:   traits,
		name:     pool.name + "-dedicated-" + strconv.FormatUint(singleThreadRunnerSeq.Add(1), 10),
		wake:     make(chan struct{}, 1),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go r.runLoop()
	return r
}

// Name returns the runner's unique name, used as the metrics group label.
func (r *SingleThreadTaskRunner) Name() string {
	return r.name
}

func (r *SingleThreadTaskRunner) PostTask(run Closure) bool {
	return r.post(run, 0, r.traits, CallerLocation(1))
}

func (r *SingleThreadTaskRunner) PostTaskWithTraits(run Closure, traits TaskTraits) bool {
	return r.post(run, 0, traits, CallerLocation(1))
}

func (r *SingleThreadTaskRunner) PostDelayedTask(run Closure, delay time.Duration) bool {
	return r.post(run, delay, r.traits, CallerLocation(1))
}

func (r *SingleThreadTaskRunner) PostDelayedTaskWithTraits(run Closure, delay time.Duration, traits TaskTraits) bool {
	return r.post(run, delay, traits, CallerLocation(1))
}

// PostRepeatingTask runs the closure every interval on the dedicated
// goroutine until the handle is stopped.
func (r *SingleThreadTaskRunner) PostRepeatingTask(run Closure, interval time.Duration) RepeatingTaskHandle {
	return postRepeating(r, run, interval)
}

func (r *SingleThreadTaskRunner) post(run Closure, delay time.Duration, traits TaskTraits, from Location) bool {
	if r.closed.Load() {
		return false
	}
	task := Task{Run: bindRunner(run, r), PostedFrom: from}
	if delay > 0 {
		if !r.pool.tracker.WillPostDelayedTask(&task, traits.ShutdownBehavior) {
			return false
		}
		task.Delay = delay
		task.DelayedRunTime = r.pool.clock.NowTicks().Add(delay)
		r.pool.delayed.AddDelayedTask(task, func(ripe Task) {
			r.enqueue(ripe, traits)
		}, r)
		return true
	}
	return r.enqueue(task, traits)
}

// enqueue runs admission control and appends to the local queue. A task that
// passes admission is guaranteed a trip through the tracker, either run or
// skipped, even if the runner stops first.
func (r *SingleThreadTaskRunner) enqueue(task Task, traits TaskTraits) bool {
	if !r.pool.tracker.WillPostTask(&task, traits.ShutdownBehavior) {
		return false
	}

	r.mu.Lock()
	r.queue = append(r.queue, singleThreadWorkItem{task: task, traits: traits})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// runLoop occupies the dedicated goroutine. On stop it drains the queue
// through the tracker so admitted tasks are accounted for (run or skipped
// according to the shutdown phase), then exits.
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped)

	if r.pool.workerInit != nil {
		if cleanup := r.pool.workerInit(r.name, 0); cleanup != nil {
			defer cleanup()
		}
	}

	for {
		item, ok := r.dequeue()
		if ok {
			r.pool.tracker.RunPostedTask(context.Background(), &item.task, item.traits, r.name)
			continue
		}
		select {
		case <-r.wake:
		case <-r.stopping:
			if !r.hasQueued() {
				return
			}
		}
	}
}

func (r *SingleThreadTaskRunner) dequeue() (singleThreadWorkItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return singleThreadWorkItem{}, false
	}
	item := r.queue[0]
	r.queue[0] = singleThreadWorkItem{}
	r.queue = r.queue[1:]
	if len(r.queue) == 0 {
		r.queue = nil
	}
	return item, true
}

func (r *SingleThreadTaskRunner) hasQueued() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue) > 0
}

// IsClosed reports whether Stop has been called.
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop rejects future posts, drains already-admitted tasks through the
// tracker, and blocks until the dedicated goroutine exits. Idempotent.
func (r *SingleThreadTaskRunner) Stop() {
	r.stopOnce.Do(func() {
		r.closed.Store(true)
		close(r.stopping)
	})
	<-r.stopped
}

// WaitIdle blocks until every task queued before the call has completed.
// Implemented by posting a barrier task; tasks posted afterwards are not
// waited for.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	if !r.PostTaskWithTraits(func(context.Context) { close(done) },
		r.traits.WithShutdownBehavior(ShutdownBehaviorBlockShutdown)) {
		close(done)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts a barrier task that invokes callback once all prior tasks
// complete. Non-blocking alternative to WaitIdle.
func (r *SingleThreadTaskRunner) FlushAsync(callback func()) {
	r.PostTask(func(context.Context) { callback() })
}
