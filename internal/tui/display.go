package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nvandessel/contagion/internal/engine"
)

// Options configures a Display.
type Options struct {
	Title string

	// Horizon is the number of rounds the model will run, shown as
	// progress. Zero when the model stops at a fixed point.
	Horizon int

	// Delay paces the run so each round stays on screen.
	Delay time.Duration
}

// Display is an engine.Observer that forwards rounds to a terminal UI.
// Once the user closes the UI, ObserveRound returns engine.ErrStop. Start
// must be called before any other method.
type Display struct {
	program *tea.Program
	delay   time.Duration
	closed  chan struct{}

	startOnce sync.Once
	err       error
}

var _ engine.Observer = (*Display)(nil)

// NewDisplay creates a display. Extra program options are passed through
// to bubbletea, which is how tests run it without a terminal.
func NewDisplay(opts Options, progOpts ...tea.ProgramOption) *Display {
	return &Display{
		program: tea.NewProgram(newModel(opts.Title, opts.Horizon), progOpts...),
		delay:   opts.Delay,
		closed:  make(chan struct{}),
	}
}

// Start runs the UI in the background. Calling it again is a no-op.
func (d *Display) Start() {
	d.startOnce.Do(func() {
		go func() {
			_, d.err = d.program.Run()
			close(d.closed)
		}()
	})
}

// ObserveRound implements engine.Observer.
func (d *Display) ObserveRound(ctx context.Context, ev engine.RoundEvent) error {
	if d.isClosed() {
		return engine.ErrStop
	}
	d.program.Send(newRoundMsg(ev))

	if d.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-d.closed:
		return engine.ErrStop
	case <-ctx.Done():
		return nil
	}
}

// Finish shows the outcome of the run and blocks until the user closes
// the UI or ctx is cancelled.
func (d *Display) Finish(ctx context.Context, res *engine.Result, runErr error) error {
	msg := doneMsg{err: runErr}
	if res != nil {
		msg.stopped, msg.reason = res.Stopped, res.StopReason
	}
	d.program.Send(msg)

	select {
	case <-d.closed:
	case <-ctx.Done():
		d.program.Quit()
		<-d.closed
	}
	return d.err
}

// Close quits the UI and waits for it to restore the terminal.
func (d *Display) Close() error {
	d.program.Quit()
	<-d.closed
	return d.err
}

func (d *Display) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}
