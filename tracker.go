package funnel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// Tracker counts named pieces of outstanding work, like a [sync.WaitGroup] with names.
//
// Trackers are hierarchical: work in a child tracker (from [Tracker.NewChild]) also keeps the parent
// from finishing. [Runtime] uses one tracker for its worker goroutines and one child per [Scope] for
// async units that haven't completed yet.
type Tracker struct {
	mu       sync.Mutex
	parent   *Tracker
	id       uint64
	name     string
	count    uint
	allDone  chan struct{}
	pending  map[string]uint
	children map[uint64]*Tracker
	nextID   uint64
}

// TrackerTree is a snapshot of the outstanding work in a [Tracker] and its children.
type TrackerTree struct {
	Name     string        `json:"name"`
	Pending  []PendingWork `json:"pending"`
	Children []TrackerTree `json:"children"`
}

// PendingWork is the number of outstanding pieces of work with a particular name. Count is never
// zero.
type PendingWork struct {
	Name  string `json:"name"`
	Count uint   `json:"count"`
}

func NewTracker(name string) *Tracker {
	return &Tracker{name: name}
}

func (t *Tracker) init() {
	if t.pending == nil {
		t.pending = make(map[string]uint)
		t.children = make(map[uint64]*Tracker)
	}
}

func (t *Tracker) Name() string {
	return t.name
}

// NewChild creates a tracker that counts towards t while it has outstanding work.
func (t *Tracker) NewChild(name string) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()

	id := t.nextID
	t.nextID += 1
	return &Tracker{parent: t, id: id, name: name}
}

// Add records one more piece of work with the name.
func (t *Tracker) Add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()

	t.count += 1
	t.pending[name] += 1
	t.becameBusy()
}

func (t *Tracker) becameBusy() {
	if t.count+uint(len(t.children)) != 1 || t.parent == nil {
		return
	}

	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()

	t.parent.children[t.id] = t
	t.parent.becameBusy()
}

// Done marks one piece of work with the name as finished. It panics if there is none outstanding.
func (t *Tracker) Done(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()

	c := t.pending[name]
	if c == 0 {
		panic(fmt.Sprintf("no outstanding work named %q", name))
	}
	if c == 1 {
		delete(t.pending, name)
	} else {
		t.pending[name] = c - 1
	}

	t.count -= 1
	t.becameIdle()
}

func (t *Tracker) becameIdle() {
	if t.count+uint(len(t.children)) != 0 {
		return
	}

	if t.allDone != nil {
		close(t.allDone)
		t.allDone = nil
	}

	if t.parent != nil {
		t.parent.mu.Lock()
		defer t.parent.mu.Unlock()

		delete(t.parent.children, t.id)
		t.parent.becameIdle()
	}
}

// Wait returns a channel that is closed once there is no outstanding work.
func (t *Tracker) Wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == 0 && len(t.children) == 0 {
		return alwaysClosed
	}
	if t.allDone == nil {
		t.allDone = make(chan struct{})
	}
	return t.allDone
}

// TryWait waits for all work to finish, returning ctx.Err() if the context is canceled first. If
// the context is already canceled, TryWait always returns its error.
func (t *Tracker) TryWait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Wait():
		return nil
	}
}

// Finished reports whether there is no outstanding work.
func (t *Tracker) Finished() bool {
	return isClosed(t.Wait())
}

// Pending returns the outstanding work of t, sorted by name. It does not include children.
func (t *Tracker) Pending() []PendingWork {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked()
}

func (t *Tracker) pendingLocked() []PendingWork {
	var ps []PendingWork
	for name, count := range t.pending {
		ps = append(ps, PendingWork{Name: name, Count: count})
	}
	slices.SortFunc(ps, func(a, b PendingWork) bool { return a.Name < b.Name })
	return ps
}

// Tree returns a snapshot of the outstanding work in t and its children. Children are visited
// without holding t's lock, so work added or finished concurrently may or may not be included.
func (t *Tracker) Tree() TrackerTree {
	t.mu.Lock()
	pending := t.pendingLocked()
	var children []*Tracker
	for _, c := range t.children {
		children = append(children, c)
	}
	t.mu.Unlock()

	slices.SortFunc(children, func(a, b *Tracker) bool { return a.id < b.id })

	tree := TrackerTree{Name: t.name, Pending: pending}
	for _, c := range children {
		ct := c.Tree()
		if len(ct.Pending) != 0 || len(ct.Children) != 0 {
			tree.Children = append(tree.Children, ct)
		}
	}
	return tree
}
