package funnel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sharnoff/funnel"
	"golang.org/x/exp/slices"
)

func TestAbandonedTaskReportedOnce(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, false)
	scope := host.rt.NewScope("abandon")

	tcs := funnel.NewTask[bool](scope, "tcs")
	assert(tcs.SetFault(errors.New("Sample exception")))
	tcs = nil

	assert(scope.Reclaim() == 1)
	f := host.rec.next(t)
	assert(f.Origin() == funnel.OriginAbandonedAsync)
	assert(f.Kind() == funnel.KindAbandonedAsync)
	assert(f.Message() == "Sample exception")
	expectOrigin(t, f.Stack(), `.*funnel_test\.TestAbandonedTaskReportedOnce`)

	// a second pass doesn't report it again
	assert(scope.Reclaim() == 0)
	assert(scope.Close() == 0)
	host.rec.expectQuiet(t)
}

func TestObservedTaskNotReported(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, false)
	scope := host.rt.NewScope("observed")

	viaErr := funnel.NewTask[int](scope, "via-err")
	viaErr.SetFault(errors.New("seen"))
	assert(viaErr.Err() != nil)

	viaWait := funnel.NewTask[int](scope, "via-wait")
	viaWait.SetFault(errors.New("seen"))
	_, err := viaWait.Wait(context.Background())
	assert(err != nil)

	succeeded := funnel.NewTask[int](scope, "ok")
	assert(succeeded.SetResult(3))
	assert(!succeeded.SetFault(errors.New("too late")))
	v, err := succeeded.Wait(context.Background())
	assert(v == 3 && err == nil)
	assert(succeeded.Err() == nil)

	assert(scope.Close() == 0)
	host.rec.expectQuiet(t)
}

func TestTaskCompletesOnce(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, false)
	scope := host.rt.NewScope("once")

	task := funnel.NewTask[string](scope, "task")
	assert(task.Name() == "task")
	assert(task.Err() == nil)
	assert(!isClosed(task.Done()))

	assert(task.SetResult("first"))
	assert(!task.SetResult("second"))
	assert(isClosed(task.Done()))

	v, err := task.Wait(context.Background())
	assert(v == "first" && err == nil)
}

func TestTaskWaitCanceledLeavesFaultUnobserved(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, false)
	scope := host.rt.NewScope("cancel")

	task := funnel.NewTask[int](scope, "slow")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := task.Wait(ctx)
	assert(err == context.Canceled)

	task.SetFault(errors.New("after cancel"))
	assert(scope.Reclaim() == 1)
	assert(host.rec.next(t).Message() == "after cancel")
}

func TestStartedTaskFaults(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, false)
	scope := host.rt.NewScope("started")

	failing := funnel.Start(scope, "failing", func() (int, error) {
		return 0, errors.New("returned")
	})
	panicking := funnel.Start(scope, "panicking", func() (int, error) {
		panic(&sampleError{msg: "panicked"})
	})
	working := funnel.Start(scope, "working", func() (int, error) {
		return 42, nil
	})

	assert(scope.TryWait(context.Background()) == nil)
	assert(scope.Pending() == nil)

	v, err := working.Wait(context.Background())
	assert(v == 42 && err == nil)

	// panics inside a task belong to the task, not to the goroutine
	assert(len(host.terminated) == 0)

	assert(scope.Close() == 2)
	var messages []string
	for i := 0; i < 2; i += 1 {
		messages = append(messages, host.rec.next(t).Message())
	}
	slices.Sort(messages)
	assert(slices.Equal(messages, []string{"panicked", "returned"}))

	_ = failing
	_ = panicking
}

func TestScopeReclaimsAfterClose(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, false)
	scope := host.rt.NewScope("late")

	task := funnel.NewTask[int](scope, "late-task")
	assert(slices.Equal(scope.Pending(), []funnel.PendingWork{{Name: "late-task", Count: 1}}))
	assert(!isClosed(scope.Wait()))

	tree := host.rt.Scopes().Tree()
	assert(len(tree.Children) == 1 && tree.Children[0].Name == "late")

	// nothing to reclaim yet
	assert(scope.Close() == 0)

	// completes after the scope ended, so it's reclaimed right away
	task.SetFault(errors.New("late fault"))
	f := host.rec.next(t)
	assert(f.Origin() == funnel.OriginAbandonedAsync)
	assert(f.Message() == "late fault")
	<-scope.Wait()
	assert(scope.Pending() == nil)
}

func TestEscalateAbandoned(t *testing.T) {
	t.Parallel()

	loop := funnel.NewMessageLoop()
	rt := funnel.NewRuntime(funnel.NewDispatcher(loop), funnel.NoTerminate(), funnel.EscalateAbandoned())

	unobserved := make(chan *funnel.UnobservedFaultEvent, 4)
	defer rt.OnUnobservedFault(func(e *funnel.UnobservedFaultEvent) { unobserved <- e })()

	scope := rt.NewScope("escalate")

	// nobody marks it observed, so it falls through
	funnel.NewTask[int](scope, "unseen").SetFault(errors.New("unseen"))
	assert(scope.Reclaim() == 1)
	select {
	case e := <-unobserved:
		assert(e.Value.(*funnel.Fault).Message() == "unseen")
	case <-time.After(5 * time.Second):
		t.Fatal("expected escalation to the unobserved channel")
	}

	// an observer stops it
	stop := rt.OnAbandonedAsyncFault(func(e *funnel.AbandonedFaultEvent) { e.SetObserved() })
	defer stop()
	funnel.NewTask[int](scope, "seen").SetFault(errors.New("seen"))
	assert(scope.Reclaim() == 1)
	assert(len(unobserved) == 0)
}
