package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/rivo/tview"

	"github.com/sharnoff/funnel"
)

type demoError struct {
	msg string
}

func (e *demoError) Error() string {
	return e.msg
}

// demo holds what the actions need. Abandoned and observed tasks live in separate scopes, so that
// reclaiming one never touches the other.
type demo struct {
	rt    *funnel.Runtime
	debug *log.Logger

	abandoned *funnel.Scope
	observed  *funnel.Scope
}

func newDemo(rt *funnel.Runtime, debug *log.Logger) *demo {
	return &demo{
		rt:        rt,
		debug:     debug,
		abandoned: rt.NewScope("abandoned"),
		observed:  rt.NewScope("observed"),
	}
}

// Close ends both scopes, reporting anything left unobserved.
func (dm *demo) Close() {
	dm.abandoned.Close()
	dm.observed.Close()
}

func (dm *demo) raiseOnUI() {
	panic(&demoError{msg: "This is a sample exception"})
}

func (dm *demo) raiseOnWorker() {
	dm.rt.Go("worker", func() {
		panic(&demoError{msg: "Non UI Thread Exception"})
	})
}

func (dm *demo) abandonTask() {
	// dropped without ever retrieving the fault
	funnel.NewTask[bool](dm.abandoned, "tcs").SetFault(errors.New("Sample exception"))

	dm.rt.Go("reclaim", func() {
		dm.debug.Print("reclaiming completed tasks")
		n := dm.abandoned.Reclaim()
		dm.debug.Printf("reclaimed tasks, %d abandoned faults", n)
	})
}

func (dm *demo) observeTask() {
	task := funnel.Start(dm.observed, "observed", func() (int, error) {
		return 0, errors.New("expected failure")
	})
	dm.rt.Go("observer", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := task.Wait(ctx)
		dm.debug.Printf("task %q failed and was observed: %v", task.Name(), err)
		dm.observed.Reclaim()
	})
}

func (dm *demo) rethrow() {
	d := dm.rt.Dispatcher()
	dm.rt.Go("rethrow", func() {
		defer func() {
			if r := recover(); r != nil {
				dm.debug.Printf("caught on worker goroutine: %v", r)
				funnel.ThrowOnUIThread(d, funnel.Capture(r))
			}
		}()
		panic(&demoError{msg: "Worker exception, re-thrown on the UI loop"})
	})
}

// newActions builds the list of things the demo can do. Every item runs on the UI loop, guarded by
// the dispatcher.
func newActions(dm *demo, quit func()) *tview.List {
	d := dm.rt.Dispatcher()

	list := tview.NewList().
		AddItem("Raise on UI loop", "panic inside a UI callback", 'u', d.Wrap(dm.raiseOnUI)).
		AddItem("Raise on worker goroutine", "panic that nobody recovers", 'w', d.Wrap(dm.raiseOnWorker)).
		AddItem("Abandon faulted task", "fault a task, drop it, and reclaim its scope", 'a', d.Wrap(dm.abandonTask)).
		AddItem("Observe faulted task", "fault a task and wait on it (not reported)", 'o', d.Wrap(dm.observeTask)).
		AddItem("Re-throw from worker", "recover on a worker and raise again on the UI loop", 'r', d.Wrap(dm.rethrow)).
		AddItem("Quit", "", 'q', d.Wrap(quit))
	list.SetBorder(true).SetTitle("Actions")
	return list
}
