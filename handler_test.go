package funnel_test

import (
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sharnoff/funnel"
	"golang.org/x/exp/slices"
)

// recorder is a Hook that also implements CatchFilter and LogSink, recording everything
type recorder struct {
	mu      sync.Mutex
	history []string
	faults  []*funnel.Fault
	logs    []string
	catch   func(*funnel.Fault) bool

	delivered chan *funnel.Fault
}

func newRecorder() *recorder {
	return &recorder{delivered: make(chan *funnel.Fault, 16)}
}

func (r *recorder) OnUnhandledFault(f *funnel.Fault) {
	r.mu.Lock()
	r.history = append(r.history, "hook")
	r.faults = append(r.faults, f)
	r.mu.Unlock()

	r.delivered <- f
}

func (r *recorder) ShouldCatchDispatcherFault(f *funnel.Fault) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, "filter")
	if r.catch != nil {
		return r.catch(f)
	}
	return true
}

func (r *recorder) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, "log")
	r.logs = append(r.logs, msg)
}

func (r *recorder) snapshot() (history []string, faults []*funnel.Fault, logs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history), slices.Clone(r.faults), slices.Clone(r.logs)
}

func (r *recorder) next(t *testing.T) *funnel.Fault {
	t.Helper()

	select {
	case f := <-r.delivered:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the hook to be called")
		return nil
	}
}

// expectQuiet fails the test if the hook is called within a short time
func (r *recorder) expectQuiet(t *testing.T) {
	t.Helper()

	select {
	case f := <-r.delivered:
		t.Fatalf("unexpected call to the hook with %s", f)
	case <-time.After(20 * time.Millisecond):
	}
}

// fakeSource is a FaultSource whose channels are fired by hand
type fakeSource struct {
	unobserved []func(*funnel.UnobservedFaultEvent)
	dispatcher []func(*funnel.DispatcherFaultEvent)
	filter     []func(*funnel.DispatcherFilterEvent)
	abandoned  []func(*funnel.AbandonedFaultEvent)
}

func remover[T any](list *[]T, idx int) func() {
	return func() {
		var zero T
		(*list)[idx] = zero
	}
}

func (s *fakeSource) OnUnobservedFault(f func(*funnel.UnobservedFaultEvent)) func() {
	s.unobserved = append(s.unobserved, f)
	return remover(&s.unobserved, len(s.unobserved)-1)
}

func (s *fakeSource) OnUIThreadFault(f func(*funnel.DispatcherFaultEvent)) func() {
	s.dispatcher = append(s.dispatcher, f)
	return remover(&s.dispatcher, len(s.dispatcher)-1)
}

func (s *fakeSource) OnUIThreadFilter(f func(*funnel.DispatcherFilterEvent)) func() {
	s.filter = append(s.filter, f)
	return remover(&s.filter, len(s.filter)-1)
}

func (s *fakeSource) OnAbandonedAsyncFault(f func(*funnel.AbandonedFaultEvent)) func() {
	s.abandoned = append(s.abandoned, f)
	return remover(&s.abandoned, len(s.abandoned)-1)
}

func fire[E any](callbacks []func(E), e E) {
	for _, f := range callbacks {
		if f != nil {
			f(e)
		}
	}
}

type writerFunc func([]byte) (int, error)

func (w writerFunc) Write(p []byte) (int, error) {
	return w(p)
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}

func TestHandlerSubscribesAndClosesAll(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	h := funnel.New(src, newRecorder())

	assert(len(src.unobserved) == 1 && src.unobserved[0] != nil)
	assert(len(src.dispatcher) == 1 && src.dispatcher[0] != nil)
	assert(len(src.filter) == 1 && src.filter[0] != nil)
	assert(len(src.abandoned) == 1 && src.abandoned[0] != nil)

	h.Close()
	h.Close()
	assert(src.unobserved[0] == nil)
	assert(src.dispatcher[0] == nil)
	assert(src.filter[0] == nil)
	assert(src.abandoned[0] == nil)
}

func TestHandlerDispatcherFault(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := newRecorder()
	h := funnel.New(src, rec)
	defer h.Close()

	f := funnel.Capture(&sampleError{msg: "This is a sample exception"})

	filter := &funnel.DispatcherFilterEvent{Fault: f, RequestCatch: true}
	fire(src.filter, filter)
	assert(filter.RequestCatch)

	ev := &funnel.DispatcherFaultEvent{Fault: f}
	fire(src.dispatcher, ev)
	assert(ev.Handled)

	got := rec.next(t)
	assert(got.Origin() == funnel.OriginDispatcher)
	assert(got.Kind() == funnel.KindUIThread)
	assert(got.Is(f))
	assert(got.Stack().SameAs(f.Stack()))
	// the original is never changed
	assert(f.Origin() == funnel.OriginUnknown)

	history, _, logs := rec.snapshot()
	if !slices.Equal(history, []string{"filter", "log", "hook"}) {
		t.Fatalf("bad history: %v", history)
	}
	assert(len(logs) == 1 && strings.Contains(logs[0], "This is a sample exception"))
}

func TestHandlerFilterRefuses(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := newRecorder()
	rec.catch = func(f *funnel.Fault) bool {
		assert(f.Origin() == funnel.OriginDispatcher)
		return false
	}
	h := funnel.New(src, rec)
	defer h.Close()

	filter := &funnel.DispatcherFilterEvent{Fault: funnel.Capture(&sampleError{msg: "ignored"}), RequestCatch: true}
	fire(src.filter, filter)
	assert(!filter.RequestCatch)

	rec.expectQuiet(t)
	history, _, _ := rec.snapshot()
	assert(slices.Equal(history, []string{"filter"}))
}

func TestHandlerUnobservedFault(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := newRecorder()
	h := funnel.New(src, rec)
	defer h.Close()

	stack := funnel.GetStackTrace(nil, 0)
	fire(src.unobserved, &funnel.UnobservedFaultEvent{
		Value:         &sampleError{msg: "Non UI Thread Exception"},
		Stack:         stack,
		IsTerminating: true,
	})

	got := rec.next(t)
	assert(got.Origin() == funnel.OriginUnobservedProcess)
	assert(got.Kind() == funnel.KindWorkerUnobserved)
	assert(got.Message() == "Non UI Thread Exception")
	assert(got.Stack().SameAs(stack))

	history, _, logs := rec.snapshot()
	assert(slices.Equal(history, []string{"log", "hook"}))
	assert(strings.Contains(logs[0], "terminating = true"))
}

func TestHandlerUnobservedUnknownPayload(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := newRecorder()
	h := funnel.New(src, rec)
	defer h.Close()

	fire(src.unobserved, &funnel.UnobservedFaultEvent{Value: "not an error"})

	got := rec.next(t)
	assert(got.Kind() == funnel.KindUnknownPayload)
	assert(got.Origin() == funnel.OriginUnobservedProcess)
	assert(got.Payload() == "not an error")
	assert(strings.Contains(got.Message(), "not an error"))
}

func TestHandlerAbandonedFault(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := newRecorder()
	h := funnel.New(src, rec)
	defer h.Close()

	ev := &funnel.AbandonedFaultEvent{Fault: funnel.Capture(&sampleError{msg: "Sample exception"}), Unit: "tcs"}
	fire(src.abandoned, ev)
	assert(ev.Observed())

	got := rec.next(t)
	assert(got.Origin() == funnel.OriginAbandonedAsync)
	assert(got.Kind() == funnel.KindAbandonedAsync)

	_, _, logs := rec.snapshot()
	assert(strings.Contains(logs[0], `"tcs"`))
}

func TestHandlerDefaults(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	var mu sync.Mutex
	out := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})

	src := &fakeSource{}
	delivered := make(chan *funnel.Fault, 1)
	h := funnel.New(src, funnel.HookFunc(func(f *funnel.Fault) { delivered <- f }), funnel.DebugLog(newLogger(out)))
	defer h.Close()

	// without a CatchFilter, everything is caught
	filter := &funnel.DispatcherFilterEvent{Fault: funnel.Capture(&sampleError{msg: "default"}), RequestCatch: false}
	fire(src.filter, filter)
	assert(filter.RequestCatch)

	fire(src.dispatcher, &funnel.DispatcherFaultEvent{Fault: filter.Fault})
	assert((<-delivered).Message() == "default")

	mu.Lock()
	defer mu.Unlock()
	assert(strings.Contains(buf.String(), "Unhandled fault on UI dispatcher"))
}
