package main

import (
	"context"
	"runtime"
	"sync"

	"github.com/rivo/tview"

	"github.com/sharnoff/funnel"
	"github.com/sharnoff/funnel/internal/config"
	"github.com/sharnoff/funnel/internal/present"
)

const (
	mainPage  = "main"
	faultPage = "fault"
)

// windowHook shows every unhandled fault in an exception window. Dismissing the window exits the
// application.
type windowHook struct {
	ctx   context.Context
	app   *tview.Application
	pages *tview.Pages
	d     *funnel.Dispatcher
	cfg   config.Config

	mu       sync.Mutex
	visible  bool
	isFatal  bool
	fatalVal any
}

func newWindowHook(ctx context.Context, app *tview.Application, pages *tview.Pages, d *funnel.Dispatcher, cfg config.Config) *windowHook {
	return &windowHook{ctx: ctx, app: app, pages: pages, d: d, cfg: cfg}
}

func (w *windowHook) OnUnhandledFault(f *funnel.Fault) {
	// We might be on a worker goroutine.
	if w.d.CheckAccess() {
		w.show(f)
		return
	}
	_ = w.d.Invoke(w.ctx, func() { w.show(f) })
}

func (w *windowHook) ShouldCatchDispatcherFault(f *funnel.Fault) bool {
	return !w.cfg.Ignores(f.TypeName())
}

func (w *windowHook) show(f *funnel.Fault) {
	window := present.Window(present.NewRequest(f), w.app.Stop)
	w.pages.AddAndSwitchToPage(faultPage, window, true)
	w.app.SetFocus(window)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
}

func (w *windowHook) showing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// terminate runs after an unobserved fault has been shown. The process exits once the exception
// window is dismissed; until then, a faulting worker goroutine just ends.
func (w *windowHook) terminate(v any) {
	w.mu.Lock()
	if !w.isFatal {
		w.isFatal = true
		w.fatalVal = v
	}
	w.mu.Unlock()

	if !w.d.CheckAccess() {
		runtime.Goexit()
	}
}

func (w *windowHook) fatal() (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fatalVal, w.isFatal
}
