package funnel

// Scheduler is anything that can schedule work onto the UI loop without waiting for it, like a
// [Dispatcher].
type Scheduler interface {
	BeginInvoke(fn func())
}

// ThrowOnUIThread re-raises err on the UI loop, so that a fault caught on a worker goroutine is
// handled the same way as one raised by UI work.
//
// The stack of err is preserved if it's already a *Fault (e.g. from [Capture] in a deferred
// recover). Otherwise it is captured here, at the caller. ThrowOnUIThread does not wait for the
// fault to be raised, and it doesn't report whether scheduling succeeded.
//
// The fault is raised from a separate work item, never from within the caller. If the loop is idle,
// that work item may run before the caller's recover block returns; hooks that need the worker to be
// finished must synchronize with it themselves.
//
// Typical use, in a goroutine:
//
//	defer func() {
//		if r := recover(); r != nil {
//			funnel.ThrowOnUIThread(d, funnel.Capture(r))
//		}
//	}()
func ThrowOnUIThread(s Scheduler, err error) {
	if err == nil {
		return
	}
	if f, ok := err.(*Fault); ok && f == nil {
		return
	}
	f := normalize(err, panicSiteTrace(1))
	s.BeginInvoke(func() {
		panic(f)
	})
}
