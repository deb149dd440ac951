package core

import "sync/atomic"

// EnqueueOrder is a strictly monotonic sequence number used as a deterministic
// tie-breaker between task sources of equal priority. Values are never reused
// within one generator's lifetime.
type EnqueueOrder uint64

// enqueueOrderNone sorts before every generated value.
const enqueueOrderNone EnqueueOrder = 0

// EnqueueOrderGenerator issues EnqueueOrder values. Safe for concurrent use
// from any goroutine; a single atomic increment, no blocking. Cross-goroutine
// ordering is provided by the priority queue's own locking, not by this
// counter's memory order.
type EnqueueOrderGenerator struct {
	counter atomic.Uint64
}

// GenerateNext returns a value strictly greater than any value previously
// returned by this generator.
func (g *EnqueueOrderGenerator) GenerateNext() EnqueueOrder {
	return EnqueueOrder(g.counter.Add(1))
}
