// obligatory // comment

/*
Package funnel routes every kind of unhandled failure in an application with a single UI goroutine
through one hook.

There are four fault channels, all exposed by a [FaultSource] (normally a [Runtime]):

- Unobserved faults: a panic escaped a worker goroutine started with [Runtime.Go], or one that
  defers [Runtime.HandlePanics].
- UI loop faults: a panic in work run by the [Dispatcher] on the UI loop.
- The UI loop filter: a decision, made before a UI loop fault unwinds, whether to catch it at all.
- Abandoned async faults: a [Task] completed with a fault that nobody retrieved before its [Scope]
  reclaimed it.

A [Handler] subscribes to all four, normalizes their payloads into a [Fault], and calls the
[Hook]. That's the whole contract: one call per unhandled fault, with no retries, no deduplication
across channels, and no locking around the hook.

# Faults

A [Fault] wraps an error together with the stack it was first captured on. Panic payloads that
aren't errors are wrapped in [UnknownPayloadError]. Faults are immutable, so handing the same Fault
to another channel (e.g. with [ThrowOnUIThread]) preserves its original stack.

# The UI loop

[Dispatcher] runs functions on a [Poster] - either the [MessageLoop] provided here, or an adapter
for a UI toolkit's own loop. [Dispatcher.BeginInvoke] schedules without waiting,
[Dispatcher.Invoke] waits, and [Dispatcher.Wrap] guards callbacks the toolkit already runs on its
loop. A UI loop fault that is caught and handled doesn't stop the loop; any other fault escalates to
the Runtime, which reports it as unobserved and then ends the process (see [Terminate]).

# Async units

[Task] is a completion source owned by a [Scope]. [Scope.Reclaim] and [Scope.Close] play the role
of a garbage collector reclaiming abandoned work: each faulted Task whose fault was never retrieved
is reported exactly once. Pending work is tracked by [Tracker], which can also be used on its own as
a named, hierarchical [sync.WaitGroup].

# Usage

	loop := funnel.NewMessageLoop()
	rt := funnel.NewRuntime(funnel.NewDispatcher(loop))
	h := funnel.New(rt, funnel.HookFunc(func(f *funnel.Fault) {
		log.Printf("%s: %s", f.TypeName(), f.Message())
	}))
	defer h.Close()

	_ = loop.Run(ctx)
*/
package funnel
