package core

import "time"

// TickClock is the monotonic "now" source consumed by the scheduling core.
// Injecting a fake implementation lets tests control when delayed tasks ripen
// without sleeping.
type TickClock interface {
	// NowTicks returns the current monotonic time. Values are only compared
	// with each other, never with wall-clock timestamps.
	NowTicks() time.Time
}

// DefaultTickClock reads time.Now. Go's time.Time carries a monotonic reading
// when obtained from time.Now, so comparisons are immune to wall clock jumps.
type DefaultTickClock struct{}

// NowTicks returns time.Now().
func (DefaultTickClock) NowTicks() time.Time {
	return time.Now()
}
