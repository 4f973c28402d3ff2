package funnel

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrLoopRunning is returned by [MessageLoop.Run] if the loop is already running.
var ErrLoopRunning = errors.New("message loop is already running")

// Poster is a single-goroutine message loop that work can be scheduled onto.
//
// Post must not block for long, and functions must run in the order they were posted. Functions
// posted after the loop shut down may be dropped.
type Poster interface {
	Post(fn func())
}

// MessageLoop is a minimal [Poster]: an unbounded FIFO of functions, executed by whichever goroutine
// calls [MessageLoop.Run].
//
// The zero value is not usable; create with [NewMessageLoop].
type MessageLoop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool

	wakeup chan struct{}
	done   chan struct{}
}

func NewMessageLoop() *MessageLoop {
	return &MessageLoop{
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post appends fn to the queue. It never blocks. If the loop has been stopped, fn is dropped.
func (l *MessageLoop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	l.queue = append(l.queue, fn)
	wake(l.wakeup)
}

// Run executes posted functions on the calling goroutine until Stop is called or ctx is canceled.
// The goroutine stays locked to its OS thread for the duration.
//
// Run returns nil after Stop, or ctx.Err() if the context was canceled first. Functions still queued
// at that point are not run. A panic in a posted function propagates out of Run; use a [Dispatcher]
// to funnel faults instead.
func (l *MessageLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.running = false
	}()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}

		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wakeup:
		}
	}
}

func (l *MessageLoop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Stop shuts the loop down. Functions already queued are discarded, and later calls to Post are
// ignored. Stop is idempotent.
func (l *MessageLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	l.stopped = true
	l.queue = nil
	close(l.done)
}

// Stopped returns a channel that is closed once Stop has been called.
func (l *MessageLoop) Stopped() <-chan struct{} {
	return l.done
}
