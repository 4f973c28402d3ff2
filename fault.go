package funnel

import (
	"fmt"
)

// Origin identifies the channel that delivered a [Fault]. It is informational only: every channel
// is routed to the same hook.
type Origin int

const (
	// OriginUnknown is the origin of a Fault that hasn't been delivered by any channel yet, e.g. one
	// created by [Capture] on a worker goroutine.
	OriginUnknown Origin = iota
	// OriginUnobservedProcess marks faults that escaped a goroutine without being caught anywhere.
	OriginUnobservedProcess
	// OriginDispatcher marks faults raised by work running on the UI loop.
	OriginDispatcher
	// OriginAbandonedAsync marks faults of async units that were reclaimed without their fault ever
	// being retrieved.
	OriginAbandonedAsync
)

func (o Origin) String() string {
	switch o {
	case OriginUnobservedProcess:
		return "unobserved-process"
	case OriginDispatcher:
		return "dispatcher"
	case OriginAbandonedAsync:
		return "abandoned-async"
	default:
		return "unknown"
	}
}

// Kind classifies a delivered [Fault].
type Kind int

const (
	KindUnknown Kind = iota
	KindUIThread
	KindWorkerUnobserved
	KindAbandonedAsync
	// KindUnknownPayload is used for any fault whose original payload was not an error, regardless
	// of the channel it came from.
	KindUnknownPayload
)

func (k Kind) String() string {
	switch k {
	case KindUIThread:
		return "ui-thread"
	case KindWorkerUnobserved:
		return "worker-unobserved"
	case KindAbandonedAsync:
		return "abandoned-async"
	case KindUnknownPayload:
		return "unknown-payload"
	default:
		return "unknown"
	}
}

// Fault is a normalized unhandled failure: an error, the stack it was first captured on, and the
// channel that delivered it.
//
// A Fault is immutable. Re-raising a Fault (e.g. with [ThrowOnUIThread]) hands the same cause and
// stack snapshot to the next channel; delivering it under a different origin produces a copy.
type Fault struct {
	err     error
	payload any
	stack   StackTrace
	origin  Origin
}

// UnknownPayloadError wraps a panic payload that was not an error.
type UnknownPayloadError struct {
	Payload any
}

func (e *UnknownPayloadError) Error() string {
	return fmt.Sprintf("unknown payload type %T: %v", e.Payload, e.Payload)
}

// Capture normalizes v into a Fault.
//
// If v is already a *Fault, it is returned unchanged. An error is wrapped with a snapshot of the
// caller's stack; when Capture is called directly by a deferred function while a panic is unwinding,
// the snapshot starts at the frame that panicked instead. Any other value is wrapped in an
// [UnknownPayloadError].
//
// Capture returns nil if v is nil.
func Capture(v any) *Fault {
	if v == nil {
		return nil
	}
	if f, ok := v.(*Fault); ok {
		return f
	}
	return newFault(v, panicSiteTrace(1))
}

// NewFault is like [Capture], for values already known to be errors.
func NewFault(err error) *Fault {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Fault); ok {
		return f
	}
	return newFault(err, panicSiteTrace(1))
}

// normalize is Capture for payloads whose stack was taken elsewhere.
func normalize(v any, stack StackTrace) *Fault {
	if f, ok := v.(*Fault); ok {
		return f
	}
	return newFault(v, stack)
}

func newFault(v any, stack StackTrace) *Fault {
	err, ok := v.(error)
	if !ok {
		err = &UnknownPayloadError{Payload: v}
	}
	return &Fault{err: err, payload: v, stack: stack}
}

func (f *Fault) withOrigin(o Origin) *Fault {
	if f.origin == o {
		return f
	}
	c := *f
	c.origin = o
	return &c
}

func (f *Fault) Error() string {
	return f.err.Error()
}

func (f *Fault) Unwrap() error {
	return f.err
}

// Is reports whether target is a Fault for the same failure, i.e. a copy of the same capture. The
// origin is ignored, so a re-raised fault matches its original.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	if f == t {
		return true
	}
	// the stack snapshot is only shared between copies of the same capture
	return len(f.stack.Frames) != 0 && f.stack.SameAs(t.stack)
}

// Message returns the human-readable message of the fault.
func (f *Fault) Message() string {
	return f.err.Error()
}

// TypeName returns the name of the concrete type of the underlying error, e.g. "*errors.errorString"
// or "*funnel.UnknownPayloadError".
func (f *Fault) TypeName() string {
	return fmt.Sprintf("%T", f.err)
}

// Stack returns the snapshot taken when the fault was first captured.
func (f *Fault) Stack() StackTrace {
	return f.stack
}

// Origin returns the channel that delivered the fault, or OriginUnknown if it hasn't been delivered.
func (f *Fault) Origin() Origin {
	return f.origin
}

// Payload returns the value the fault was captured from. For faults from a panic with a non-error
// value, this is the original value.
func (f *Fault) Payload() any {
	return f.payload
}

// Kind returns the error category of the fault.
func (f *Fault) Kind() Kind {
	if _, ok := f.err.(*UnknownPayloadError); ok {
		return KindUnknownPayload
	}
	switch f.origin {
	case OriginDispatcher:
		return KindUIThread
	case OriginUnobservedProcess:
		return KindWorkerUnobserved
	case OriginAbandonedAsync:
		return KindAbandonedAsync
	default:
		return KindUnknown
	}
}

// String returns the type, message, and stack of the fault.
func (f *Fault) String() string {
	return fmt.Sprintf("%s: %s\n%s", f.TypeName(), f.err.Error(), f.stack.String())
}
