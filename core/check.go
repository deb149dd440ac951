package core

import "fmt"

// checkf aborts the process (via panic) when an internal invariant is
// violated. Invariant violations are programming errors, never recoverable
// runtime conditions; callers must not recover from these panics.
func checkf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("threadpool: "+format, args...))
	}
}
