package core

import "testing"

// TestSequenceSortKey_PriorityDominates verifies priority ordering
// Given: Two keys with different priorities
// When: Compared with Less
// Then: The higher priority ranks first regardless of enqueue order
func TestSequenceSortKey_PriorityDominates(t *testing.T) {
	older := NewSequenceSortKey(TaskPriorityBestEffort, 1)
	newer := NewSequenceSortKey(TaskPriorityUserBlocking, 99)

	if !newer.Less(older) {
		t.Error("user-blocking key should rank before best-effort key")
	}
	if older.Less(newer) {
		t.Error("best-effort key should not rank before user-blocking key")
	}
}

// TestSequenceSortKey_EnqueueOrderBreaksTies verifies FIFO among equals
// Given: Two keys with the same priority
// When: Compared with Less
// Then: The earlier enqueue order wins, making the order total
func TestSequenceSortKey_EnqueueOrderBreaksTies(t *testing.T) {
	first := NewSequenceSortKey(TaskPriorityUserVisible, 10)
	second := NewSequenceSortKey(TaskPriorityUserVisible, 11)

	if !first.Less(second) {
		t.Error("earlier enqueue order should rank first among equal priorities")
	}
	if second.Less(first) {
		t.Error("later enqueue order should not rank first")
	}
	if first.Less(first) {
		t.Error("a key must not rank before itself")
	}
}

func TestSequenceSortKey_Accessors(t *testing.T) {
	key := NewSequenceSortKey(TaskPriorityUserBlocking, 42)
	if key.Priority() != TaskPriorityUserBlocking {
		t.Errorf("Priority() = %v, want user-blocking", key.Priority())
	}
	if key.NextTaskSequenceNum() != 42 {
		t.Errorf("NextTaskSequenceNum() = %d, want 42", key.NextTaskSequenceNum())
	}
}
