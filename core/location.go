package core

import (
	"fmt"
	"runtime"
)

// Location records the source position a task was posted from.
// It exists purely for diagnostics: panic reports, execution history and
// logging all show where the offending task entered the pool.
type Location struct {
	File string
	Line int
}

// CallerLocation captures the file/line of the caller, skipping `skip`
// additional stack frames (0 = the caller of CallerLocation).
func CallerLocation(skip int) Location {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	return Location{File: file, Line: line}
}

// String formats the location as "file:line", or "unknown" when the posting
// site could not be resolved.
func (l Location) String() string {
	if l.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}
