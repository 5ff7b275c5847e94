package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/contagion/internal/graph"
)

// ErrStop may be returned by an Observer to end a run after the round it
// just observed. The run is reported as stopped, not failed.
var ErrStop = errors.New("stop requested")

// RoundEvent is what a presentation sink sees after each round.
type RoundEvent struct {
	Model    string
	Round    int
	Events   Events
	Totals   graph.Counts
	Snapshot graph.Snapshot
	// Graph exposes topology for renderers. Observers must not mutate it.
	Graph *graph.Graph
}

// Observer receives round events. Returning ErrStop ends the run early;
// any other error aborts it.
type Observer interface {
	ObserveRound(ctx context.Context, ev RoundEvent) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev RoundEvent) error

// ObserveRound calls f.
func (f ObserverFunc) ObserveRound(ctx context.Context, ev RoundEvent) error {
	return f(ctx, ev)
}

// Result is the outcome of a run.
type Result struct {
	Model  string         `json:"model"`
	Record []int          `json:"record"`
	Rounds []RoundStats   `json:"rounds"`
	Final  graph.Snapshot `json:"-"`
	// Stopped is set when the run ended before the model's own termination
	// rule, either by context cancellation or an observer.
	Stopped    bool          `json:"stopped"`
	StopReason string        `json:"stop_reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Driver owns the graph for the duration of a run.
type Driver struct {
	g               *graph.Graph
	logger          *slog.Logger
	observers       []Observer
	checkInvariants bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObservers appends presentation sinks, notified in order.
func WithObservers(obs ...Observer) Option {
	return func(d *Driver) {
		for _, o := range obs {
			if o != nil {
				d.observers = append(d.observers, o)
			}
		}
	}
}

// WithInvariantChecks validates every node's flags after each round.
func WithInvariantChecks() Option {
	return func(d *Driver) { d.checkInvariants = true }
}

// NewDriver creates a driver over g.
func NewDriver(g *graph.Graph, opts ...Option) *Driver {
	d := &Driver{
		g:      g,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run advances m until its termination rule says stop, ctx is cancelled, or
// an observer returns ErrStop. Cancellation is checked only between rounds,
// so the graph and the record always reflect whole rounds. On an observer or
// invariant error the partial result is returned with the error.
func (d *Driver) Run(ctx context.Context, m Model) (*Result, error) {
	start := time.Now()
	col := &Collector{}
	res := &Result{Model: m.Name()}

	finish := func() *Result {
		res.Record = col.Record()
		res.Rounds = col.Rounds()
		res.Final = d.g.Snapshot()
		res.Duration = time.Since(start)
		return res
	}

	totals := d.g.Counts()
	seed := RoundStats{Round: 0, Events: Events{New: totals.Infected}, Totals: totals}
	col.Add(seed)
	d.logger.Debug("run started", "model", m.Name(), "nodes", d.g.Len(), "edges", d.g.EdgeCount(), "seeds", totals.Infected)

	if stop, err := d.notify(ctx, m, seed); err != nil {
		return finish(), err
	} else if stop {
		res.Stopped, res.StopReason = true, ErrStop.Error()
		return finish(), nil
	}

	var last *Staged
	for completed := 0; m.Continue(completed, last); completed++ {
		if err := ctx.Err(); err != nil {
			res.Stopped, res.StopReason = true, err.Error()
			d.logger.Info("run cancelled", "model", m.Name(), "rounds", completed)
			break
		}

		staged := m.Compute(d.g.Snapshot())
		d.g.Apply(&staged.Changes)

		round := completed + 1
		if d.checkInvariants {
			if err := d.g.CheckInvariants(); err != nil {
				return finish(), fmt.Errorf("round %d: %w", round, err)
			}
		}

		stats := RoundStats{Round: round, Events: staged.Events, Totals: d.g.Counts()}
		col.Add(stats)
		d.logger.Debug("round applied", "model", m.Name(), "round", round,
			"new", staged.Events.New, "died", staged.Events.Died,
			"recovered", staged.Events.Recovered, "waned", staged.Events.Waned)

		stop, err := d.notify(ctx, m, stats)
		if err != nil {
			return finish(), err
		}
		last = staged
		if stop {
			res.Stopped, res.StopReason = true, ErrStop.Error()
			d.logger.Info("run stopped by observer", "model", m.Name(), "rounds", round)
			break
		}
	}

	out := finish()
	d.logger.Debug("run finished", "model", m.Name(), "rounds", len(out.Record)-1, "stopped", out.Stopped)
	return out, nil
}

// notify fans a round out to every observer. It reports stop when an
// observer returned ErrStop; remaining observers are still notified so every
// sink sees the same final round.
func (d *Driver) notify(ctx context.Context, m Model, s RoundStats) (bool, error) {
	if len(d.observers) == 0 {
		return false, nil
	}
	ev := RoundEvent{
		Model:    m.Name(),
		Round:    s.Round,
		Events:   s.Events,
		Totals:   s.Totals,
		Snapshot: d.g.Snapshot(),
		Graph:    d.g,
	}
	stop := false
	for _, o := range d.observers {
		err := o.ObserveRound(ctx, ev)
		switch {
		case err == nil:
		case errors.Is(err, ErrStop):
			stop = true
		default:
			return false, fmt.Errorf("observer at round %d: %w", s.Round, err)
		}
	}
	return stop, nil
}
