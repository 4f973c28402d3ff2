// Package present shows unhandled faults to the user.
package present

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sharnoff/funnel"
)

const exitButton = "Exit"

// Request is what the exception window displays for a single fault.
type Request struct {
	Fault    *funnel.Fault
	TypeName string
}

func NewRequest(f *funnel.Fault) Request {
	return Request{Fault: f, TypeName: f.TypeName()}
}

// Title is the title of the exception window.
func (r Request) Title() string {
	return fmt.Sprintf("Unhandled fault (%s)", r.Fault.Kind())
}

// Summary is the type name and message of the fault.
func (r Request) Summary() string {
	return r.TypeName + ": " + r.Fault.Message()
}

// Details is the stack of the fault, with the innermost frame first.
func (r Request) Details() string {
	return strings.TrimSuffix(r.Fault.Stack().String(), "\n")
}

// Window builds the exception window for r. Either pressing the exit button, or 'q' or Esc anywhere
// in the window, calls onExit.
func Window(r Request, onExit func()) *tview.Flex {
	summary := tview.NewTextView().
		SetText(tview.Escape(r.Summary())).
		SetWrap(true)
	summary.SetBorder(true).SetTitle(tview.Escape(r.Title()))

	details := tview.NewTextView().
		SetText(tview.Escape(r.Details())).
		SetScrollable(true)
	details.SetBorder(true).SetTitle("Stack")

	exit := tview.NewButton(exitButton).SetSelectedFunc(onExit)

	window := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(summary, 4, 1, false).
		AddItem(details, 0, 1, false).
		AddItem(exit, 1, 1, true)
	window.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' || event.Key() == tcell.KeyESC {
			onExit()
			return nil
		}
		return event
	})
	return window
}
