package funnel_test

import (
	"context"
	"testing"
	"time"

	"github.com/sharnoff/funnel"
	"golang.org/x/exp/slices"
)

func TestMessageLoopOrdering(t *testing.T) {
	t.Parallel()

	loop := funnel.NewMessageLoop()

	var history []int
	record := func(x int) func() {
		return func() { history = append(history, x) }
	}

	// posting before Run is fine; nothing executes until the loop runs
	loop.Post(record(1))
	loop.Post(record(2))
	loop.Post(func() {
		loop.Post(record(4))
		history = append(history, 3)
	})
	loop.Post(func() {
		loop.Post(loop.Stop)
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error from Run: %s", err)
	}

	if !slices.Equal(history, []int{1, 2, 3, 4}) {
		t.Fatalf("bad ordering, got: %v", history)
	}
	assert(isClosed(loop.Stopped()))
}

func TestMessageLoopStopDropsWork(t *testing.T) {
	t.Parallel()

	loop := funnel.NewMessageLoop()

	ran := false
	loop.Post(loop.Stop)
	loop.Post(func() { ran = true })

	assert(loop.Run(context.Background()) == nil)
	assert(!ran)

	// posting after Stop is a no-op
	loop.Post(func() { ran = true })
	assert(loop.Run(context.Background()) == nil)
	assert(!ran)
}

func TestMessageLoopContextCancel(t *testing.T) {
	t.Parallel()

	loop := funnel.NewMessageLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx)
	assert(err == context.DeadlineExceeded)
}

func TestMessageLoopRunTwice(t *testing.T) {
	t.Parallel()

	loop := funnel.NewMessageLoop()
	defer loop.Stop()

	started := make(chan struct{})
	loop.Post(func() { close(started) })
	go func() { _ = loop.Run(context.Background()) }()
	<-started

	assert(loop.Run(context.Background()) == funnel.ErrLoopRunning)
}
