// The faultdemo command is a terminal application that raises each kind of unhandled fault on
// request and shows it in an exception window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sharnoff/funnel"
	"github.com/sharnoff/funnel/internal/config"
)

const appName = "faultdemo"

func printHelp(flags *flag.FlagSet, w io.Writer) {
	flags.SetOutput(w)
	fmt.Fprint(w, `Usage of faultdemo:

`)
	flags.PrintDefaults()
}

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	debug := log.New(io.Discard, "DEBUG ", log.LstdFlags)

	var (
		configPath string
		h          bool
		help       bool
		genConfig  bool
	)
	flags := flag.NewFlagSet(appName, flag.ContinueOnError)
	flags.StringVar(&configPath, "f", configPath, "the config file to load")
	flags.BoolVar(&h, "h", h, "print this help message")
	flags.BoolVar(&help, "help", help, "print this help message")
	flags.BoolVar(&genConfig, "config", genConfig, "print a default config file to stdout")
	flags.SetOutput(io.Discard)
	err := flags.Parse(os.Args[1:])
	if err != nil {
		logger.Println(err)
		printHelp(flags, os.Stderr)
		os.Exit(2)
	}

	if help || h {
		printHelp(flags, os.Stdout)
		return
	}

	if genConfig {
		if err := config.Print(os.Stdout); err != nil {
			logger.Fatalf("Error encoding default config as TOML: %v", err)
		}
		return
	}

	cfg := loadConfig(configPath, logger)

	app := tview.NewApplication()
	logs := tview.NewTextView()
	logs.SetChangedFunc(func() {
		app.Draw()
	})
	logs.SetBorder(true).SetTitle("Logs")
	if cfg.Verbose {
		debug.SetOutput(logs)
	}
	logger.SetOutput(logs)

	// canceled once the UI loop has exited, so that late faults don't wait on it
	uiCtx, uiDone := context.WithCancel(context.Background())

	d := funnel.NewDispatcher(appLoop{app})
	pages := tview.NewPages()
	hook := newWindowHook(uiCtx, app, pages, d, cfg)

	rt := funnel.NewRuntime(d, funnel.Terminate(hook.terminate))
	handler := funnel.New(rt, hook, funnel.DebugLog(debug))
	defer handler.Close()

	dm := newDemo(rt, debug)
	defer dm.Close()

	actions := newActions(dm, func() { app.Stop() })
	mainView := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(actions, 0, 1, true).
		AddItem(logs, 0, 1, false)
	mainView.SetBorder(true).SetTitle(tview.Escape(cfg.UI.Title))
	pages.AddAndSwitchToPage(mainPage, mainView, true)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		debug.Printf("got signal: %v", s)
		app.Stop()
	}()

	app.SetRoot(pages, true).SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Ctrl-C would stop the app without going through the exception window
		if event.Key() == tcell.KeyCtrlC && hook.showing() {
			return nil
		}
		return event
	})
	// the dispatcher learns the UI goroutine from the first posted work it runs
	d.BeginInvoke(func() { debug.Print("UI loop running") })
	debug.Print("starting UI loop")
	err = app.Run()
	uiDone()
	if err != nil {
		panic(err)
	}

	logger.SetOutput(os.Stderr)
	if s := pendingSummary(rt.Workers().Tree()); s != "" {
		logger.Printf("goroutines still running at exit:\n%s", s)
	}
	if s := pendingSummary(rt.Scopes().Tree()); s != "" {
		logger.Printf("tasks still pending at exit:\n%s", s)
	}

	if v, ok := hook.fatal(); ok {
		logger.Printf("exiting after unhandled fault: %v", v)
		os.Exit(1)
	}
}

func loadConfig(configPath string, logger *log.Logger) config.Config {
	f, fpath, err := config.Find(appName, configPath)
	if err != nil {
		if configPath == "" && errors.Is(err, fs.ErrNotExist) {
			return config.Default()
		}
		logger.Fatalf(`%v

Try running '%s -config' to generate a default config file.`, err, os.Args[0])
	}

	cfg, unknown, err := config.Load(f)
	if err != nil {
		logger.Printf("error parsing config file: %v", err)
	}
	for _, k := range unknown {
		logger.Printf("unknown key %q in %s", k, fpath)
	}
	if err = f.Close(); err != nil {
		logger.Printf("error closing config file: %v", err)
	}
	return cfg
}

// appLoop schedules work onto the tview event loop
type appLoop struct {
	app *tview.Application
}

func (l appLoop) Post(fn func()) {
	l.app.QueueUpdateDraw(fn)
}
