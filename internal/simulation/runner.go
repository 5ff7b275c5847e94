package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/contagion/internal/cascade"
	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/epidemic"
	"github.com/nvandessel/contagion/internal/graph"
	"github.com/nvandessel/contagion/internal/random"
	"github.com/nvandessel/contagion/internal/roles"
	"github.com/nvandessel/contagion/internal/store"
)

// Model names accepted in a Request.
const (
	ModelCascade  = cascade.Name
	ModelEpidemic = epidemic.Name
)

// ErrUnknownModel is returned for a Request naming no known model.
var ErrUnknownModel = errors.New("unknown model")

// Request describes one run.
type Request struct {
	Model    string
	Cascade  cascade.Config
	Epidemic epidemic.Config

	// Plan holds the role parameters. For the epidemic model an empty
	// initiator list auto-picks one unsheltered node.
	Plan roles.Plan

	// Seed drives every random draw. Zero picks a fresh seed, reported in
	// the Outcome.
	Seed uint64

	// GraphPath is recorded with saved runs.
	GraphPath string

	// RunID names the saved run. Empty assigns a fresh id.
	RunID string
}

// Outcome is everything a run produced.
type Outcome struct {
	Result     *engine.Result
	Assignment *roles.Assignment
	Seed       uint64
	Graph      *graph.Graph

	// RunID is set when the run was saved.
	RunID string
}

// Runner executes requests.
type Runner struct {
	logger          *slog.Logger
	observers       []engine.Observer
	store           store.RunStore
	checkInvariants bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger passed down to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObservers adds presentation sinks notified every round.
func WithObservers(obs ...engine.Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, obs...) }
}

// WithStore saves every finished run to s.
func WithStore(s store.RunStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithInvariantChecks validates node flags after every round.
func WithInvariantChecks() Option {
	return func(r *Runner) { r.checkInvariants = true }
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resets g, assigns roles and runs the requested model to completion or
// cancellation. Role conflicts are reported before any round runs and leave
// g unseeded. A stopped run is still saved.
func (r *Runner) Run(ctx context.Context, g *graph.Graph, req Request) (*Outcome, error) {
	if req.Model != ModelCascade && req.Model != ModelEpidemic {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
	}

	seed := req.Seed
	if seed == 0 {
		seed = random.NewSeed()
	}
	src := random.New(seed)

	g.Reset()
	plan := req.Plan
	plan.AutoInitiator = req.Model == ModelEpidemic

	assignment, err := roles.NewResolver(g, src).Prepare(plan)
	if err != nil {
		return nil, err
	}
	r.logAssignment(req.Model, assignment)

	var model engine.Model
	switch req.Model {
	case ModelCascade:
		model = cascade.New(g, req.Cascade)
	case ModelEpidemic:
		model = epidemic.New(g, req.Epidemic, src)
	}

	opts := []engine.Option{engine.WithLogger(r.logger), engine.WithObservers(r.observers...)}
	if r.checkInvariants {
		opts = append(opts, engine.WithInvariantChecks())
	}
	res, err := engine.NewDriver(g, opts...).Run(ctx, model)
	out := &Outcome{Result: res, Assignment: assignment, Seed: seed, Graph: g}
	if err != nil {
		return out, err
	}

	if r.store != nil {
		// A cancelled run is still saved.
		id, err := r.save(context.WithoutCancel(ctx), g, req, out)
		if err != nil {
			return out, err
		}
		out.RunID = id
	}
	return out, nil
}

func (r *Runner) logAssignment(model string, a *roles.Assignment) {
	if a.AutoPicked {
		r.logger.Info("picked random initiator", "model", model, "node", a.Initiators[0].String())
	}
	if len(a.Shelter.Dropped) > 0 {
		r.logger.Warn("ignoring unknown shelter nodes", "nodes", a.Shelter.Dropped)
	}
	if a.Shelter.Clamped() {
		r.logger.Debug("shelter sample clamped", "requested", a.Shelter.Requested, "selected", len(a.Shelter.Nodes))
	}
	if a.Vaccination.Clamped() {
		r.logger.Debug("vaccination sample clamped", "requested", a.Vaccination.Requested, "selected", len(a.Vaccination.Nodes))
	}
}

// params is the saved parameter set of a run.
type params struct {
	Threshold   *float64         `json:"threshold,omitempty"`
	Epidemic    *epidemic.Config `json:"epidemic,omitempty"`
	Shelter     string           `json:"shelter,omitempty"`
	Vaccination float64          `json:"vaccination,omitempty"`
}

func (r *Runner) save(ctx context.Context, g *graph.Graph, req Request, out *Outcome) (string, error) {
	p := params{Shelter: req.Plan.Shelter.String(), Vaccination: req.Plan.VaccinationRate}
	if req.Model == ModelCascade {
		p.Threshold = &req.Cascade.Threshold
	} else {
		p.Epidemic = &req.Epidemic
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding run params: %w", err)
	}

	run := store.NewRun(out.Result)
	if req.RunID != "" {
		run.ID = req.RunID
	}
	run.GraphPath = req.GraphPath
	run.Nodes = g.Len()
	run.Edges = g.EdgeCount()
	run.Seed = out.Seed
	run.Params = raw
	for _, id := range out.Assignment.Initiators {
		run.Initiators = append(run.Initiators, id.String())
	}

	id, err := r.store.SaveRun(ctx, run)
	if err != nil {
		return "", fmt.Errorf("saving run: %w", err)
	}
	r.logger.Debug("run saved", "id", id)
	return id, nil
}
