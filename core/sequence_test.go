package core

import (
	"context"
	"testing"
)

// TestSequence_ProtocolRoundTrip verifies the worker-side protocol
// Given: A sequence with two tasks
// When: A worker runs WillRunTask/TakeTask/DidProcessTask twice
// Then: Tasks come out in FIFO order and the final DidProcessTask reports no
// remaining work
func TestSequence_ProtocolRoundTrip(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)

	var order []int
	for i := 1; i <= 2; i++ {
		id := i
		tx := seq.BeginTransaction()
		shouldEnqueue := tx.PushTask(Task{Run: func(context.Context) {
			order = append(order, id)
		}})
		tx.Release()

		if (i == 1) != shouldEnqueue {
			t.Fatalf("PushTask %d shouldEnqueue = %v", i, shouldEnqueue)
		}
	}

	for i := 0; i < 2; i++ {
		if status := seq.WillRunTask(); status != RunStatusAllowedSaturated {
			t.Fatalf("WillRunTask = %v, want saturated", status)
		}
		task := seq.TakeTask()
		task.Run(context.Background())
		again := seq.DidProcessTask()
		if (i == 0) != again {
			t.Fatalf("DidProcessTask after task %d = %v", i+1, again)
		}
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %v, want [1 2]", order)
	}
}

// TestSequence_ConcurrencyOne verifies the single-worker reservation
// Given: A sequence with a task and an active reservation
// When: A second worker calls WillRunTask
// Then: It is turned away until the first worker releases
func TestSequence_ConcurrencyOne(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)
	pushOneTask(seq)
	pushOneTask(seq)

	if seq.WillRunTask() != RunStatusAllowedSaturated {
		t.Fatal("first reservation should be allowed")
	}
	if seq.WillRunTask() != RunStatusDisallowed {
		t.Fatal("second reservation should be disallowed while the first is active")
	}

	seq.TakeTask()
	seq.DidProcessTask()

	if seq.WillRunTask() != RunStatusAllowedSaturated {
		t.Fatal("reservation should be allowed again after release")
	}
}

// TestSequence_EmptyDisallowed verifies empty sequences refuse workers
func TestSequence_EmptyDisallowed(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)

	if seq.WillRunTask() != RunStatusDisallowed {
		t.Error("empty sequence should disallow WillRunTask")
	}
}

// TestSequence_PushWhileWorkerActive verifies the re-enqueue handshake
// Given: A worker holding the sequence's reservation
// When: A poster pushes a new task
// Then: PushTask reports no enqueue needed; the worker's DidProcessTask
// reports remaining work instead
func TestSequence_PushWhileWorkerActive(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)
	pushOneTask(seq)

	seq.WillRunTask()
	seq.TakeTask()

	tx := seq.BeginTransaction()
	shouldEnqueue := tx.PushTask(Task{Run: func(context.Context) {}})
	tx.Release()
	if shouldEnqueue {
		t.Error("push during active reservation must not request an enqueue")
	}

	if !seq.DidProcessTask() {
		t.Error("DidProcessTask should report the task pushed meanwhile")
	}
}

// TestSequence_SortKeyTracksFrontTask verifies the key advances as tasks run
func TestSequence_SortKeyTracksFrontTask(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)
	pushOneTask(seq)
	pushOneTask(seq)

	first := seq.SortKey()
	seq.WillRunTask()
	seq.TakeTask()
	seq.DidProcessTask()
	second := seq.SortKey()

	if !first.Less(second) {
		t.Errorf("front key should advance: first=%d second=%d",
			first.NextTaskSequenceNum(), second.NextTaskSequenceNum())
	}
	if second.Priority() != TaskPriorityUserVisible {
		t.Errorf("priority = %v, want user-visible", second.Priority())
	}
}

// TestSequence_Compaction verifies the backing array shrinks after bursts
func TestSequence_Compaction(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)

	const burst = 256
	for i := 0; i < burst; i++ {
		pushOneTask(seq)
	}
	for i := 0; i < burst; i++ {
		seq.WillRunTask()
		seq.TakeTask()
		seq.DidProcessTask()
	}

	if seq.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", seq.Len())
	}
	if c := cap(seq.tasks); c > compactMinCap {
		t.Errorf("cap after drain = %d, want <= %d", c, compactMinCap)
	}
}

// TestRegisteredTaskSource_Transfer verifies the registration capability
func TestRegisteredTaskSource_Transfer(t *testing.T) {
	var generator EnqueueOrderGenerator
	seq := newTestSequence(TaskPriorityUserVisible, &generator)

	rts := TryRegisterTaskSource(seq)
	if !rts.Valid() {
		t.Fatal("first registration should succeed")
	}
	if TryRegisterTaskSource(seq).Valid() {
		t.Fatal("second registration should fail while the first is held")
	}

	rts.Unregister()
	if !TryRegisterTaskSource(seq).Valid() {
		t.Fatal("registration should succeed again after unregister")
	}
}
