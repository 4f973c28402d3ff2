package funnel

import (
	"context"
	"sync"
)

// Scope owns a set of async units ([Task]s) and decides when they are reclaimed.
//
// A completed Task stays with its scope until the next call to [Scope.Reclaim] or [Scope.Close].
// Reclaiming a Task whose fault was never retrieved reports that fault on the abandoned async fault
// channel, exactly once. Tasks that complete after the scope was closed are reclaimed as soon as
// they complete.
type Scope struct {
	rt      *Runtime
	name    string
	pending *Tracker

	mu        sync.Mutex
	completed []*unit
	ended     bool
}

// NewScope creates a Scope for async units. Its pending units show up under [Runtime.Scopes].
func (rt *Runtime) NewScope(name string) *Scope {
	return &Scope{
		rt:      rt,
		name:    name,
		pending: rt.scopes.NewChild(name),
	}
}

func (s *Scope) Name() string {
	return s.name
}

func (s *Scope) track(u *unit) {
	s.pending.Add(u.name)
}

// finished must be called once for every tracked unit, after it completes. The unit only stops
// being pending once it's reclaimable.
func (s *Scope) finished(u *unit) {
	defer s.pending.Done(u.name)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.reclaim(u)
		return
	}
	s.completed = append(s.completed, u)
	s.mu.Unlock()
}

// Reclaim drops every completed unit from the scope, reporting each unobserved fault among them as
// abandoned. It returns the number of faults reported. Pending units are left alone.
//
// Reclaim runs the abandoned fault channel callbacks on the calling goroutine.
func (s *Scope) Reclaim() int {
	s.mu.Lock()
	units := s.completed
	s.completed = nil
	s.mu.Unlock()

	var n int
	for _, u := range units {
		if s.reclaim(u) {
			n += 1
		}
	}
	return n
}

func (s *Scope) reclaim(u *unit) bool {
	f := u.reclaim()
	if f == nil {
		return false
	}

	ev := &AbandonedFaultEvent{Fault: f, Unit: u.name}
	s.rt.reclaimed(ev)
	if ev.Observed() {
		u.setObserved()
	}
	return true
}

// Close ends the scope: completed units are reclaimed now, and units still pending are reclaimed
// when they complete. It returns the number of faults reported by this call. Close is idempotent.
func (s *Scope) Close() int {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	return s.Reclaim()
}

// Pending returns the units of the scope that haven't completed yet.
func (s *Scope) Pending() []PendingWork {
	return s.pending.Pending()
}

// Wait returns a channel that is closed once no unit of the scope is pending.
func (s *Scope) Wait() <-chan struct{} {
	return s.pending.Wait()
}

// TryWait waits for all pending units to complete, returning early with ctx.Err() if the context is
// canceled.
func (s *Scope) TryWait(ctx context.Context) error {
	return s.pending.TryWait(ctx)
}
