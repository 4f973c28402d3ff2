package funnel

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// StackTrace is a snapshot of a goroutine's call stack, innermost frame first.
//
// Parent is set when a trace is linked to the trace of another goroutine, e.g. the goroutine that
// started the one the snapshot was taken on. Parent traces are rendered after Frames by
// [StackTrace.String].
type StackTrace struct {
	Frames []StackFrame
	Parent *StackTrace
}

// StackFrame is a single entry in a [StackTrace].
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// GetStackTrace returns the stack of the calling goroutine, skipping the innermost skip frames (not
// counting GetStackTrace itself).
func GetStackTrace(parent *StackTrace, skip uint) StackTrace {
	return StackTrace{Frames: callerFrames(skip + 1), Parent: parent}
}

// panicSiteTrace returns the stack of the calling goroutine, skipping skip frames. If the first
// remaining frame is a deferred call run by a panic in flight, the result starts at the frame that
// panicked instead.
//
// Code further down from the deferred call (e.g. a hook invoked while recovering) gets its own stack,
// even though the recovered panic is still on it.
func panicSiteTrace(skip uint) StackTrace {
	frames := callerFrames(skip + 1)

	// The runtime may run deferred calls through helpers (deferCallSave, runOpenDeferFrame, ...)
	if len(frames) > 1 {
		i := 1
		for i < len(frames) && frames[i].Function != "runtime.gopanic" && isRuntimeFrame(frames[i]) {
			i += 1
		}
		if i < len(frames) && frames[i].Function == "runtime.gopanic" {
			return StackTrace{Frames: trimPanicHelpers(frames[i+1:])}
		}
	}

	return StackTrace{Frames: frames}
}

// recoveredTrace is panicSiteTrace for the deferred functions in this package that called recover.
// They may be reached through a compiler-generated wrapper, so the nearest runtime.gopanic is used.
func recoveredTrace(skip uint) StackTrace {
	frames := callerFrames(skip + 1)

	for i, f := range frames {
		if f.Function == "runtime.gopanic" {
			return StackTrace{Frames: trimPanicHelpers(frames[i+1:])}
		}
	}
	return StackTrace{Frames: frames}
}

// trimPanicHelpers drops runtime helpers (sigpanic, panicIndex, ...) that raised on behalf of the
// faulting function.
func trimPanicHelpers(frames []StackFrame) []StackFrame {
	for len(frames) > 1 && isRuntimeFrame(frames[0]) {
		frames = frames[1:]
	}
	return frames
}

func isRuntimeFrame(f StackFrame) bool {
	return strings.HasPrefix(f.Function, "runtime.")
}

// Origin returns the innermost frame of the trace, or the zero StackFrame if the trace is empty.
func (st StackTrace) Origin() StackFrame {
	if len(st.Frames) == 0 {
		return StackFrame{}
	}
	return st.Frames[0]
}

// SameAs reports whether st and other refer to the same snapshot, i.e. whether one was copied from
// the other rather than captured separately.
func (st StackTrace) SameAs(other StackTrace) bool {
	if len(st.Frames) != len(other.Frames) || st.Parent != other.Parent {
		return false
	}
	if len(st.Frames) == 0 {
		return true
	}
	return &st.Frames[0] == &other.Frames[0]
}

func (st StackTrace) String() string {
	var b strings.Builder

	for {
		if len(st.Frames) == 0 {
			b.WriteString("<empty stack>\n")
		}
		for _, f := range st.Frames {
			f.writeTo(&b)
		}

		if st.Parent == nil {
			return b.String()
		}
		st = *st.Parent
	}
}

func (f StackFrame) writeTo(b *strings.Builder) {
	if f.Function == "" {
		b.WriteString("<unknown function>")
	} else {
		b.WriteString(f.Function)
		b.WriteString("(...)")
	}

	b.WriteString("\n\t")

	if f.File == "" {
		b.WriteString("<unknown file>")
	} else {
		b.WriteString(f.File)
		if f.Line != 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')
}

var pcBufPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 128)
		return &buf
	},
}

func putPCBuffer(buf *[]uintptr) {
	if len(*buf) < 1024 {
		pcBufPool.Put(buf)
	}
}

func callerFrames(skip uint) []StackFrame {
	skip += 2 // callerFrames and runtime.Callers

	pcBuf := pcBufPool.Get().(*[]uintptr)
	defer putPCBuffer(pcBuf)

	// grow the buffer until the whole stack fits
	var pc []uintptr
	for {
		n := runtime.Callers(0, *pcBuf)
		if n == 0 {
			panic("runtime.Callers(0, ...) returned zero")
		}
		if n < len(*pcBuf) {
			pc = (*pcBuf)[:n]
			break
		}
		*pcBuf = make([]uintptr, 2*len(*pcBuf))
	}

	iter := runtime.CallersFrames(pc)
	var frames []StackFrame
	for more := true; more; {
		var frame runtime.Frame
		frame, more = iter.Next()

		if skip > 0 {
			skip -= 1
			continue
		}

		frames = append(frames, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
	}

	return frames
}
