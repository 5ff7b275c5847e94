package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/contagion/internal/graph"
	"github.com/nvandessel/contagion/internal/loader"
	"github.com/nvandessel/contagion/internal/pathutil"
	"github.com/nvandessel/contagion/internal/ratelimit"
	"github.com/nvandessel/contagion/internal/roles"
	"github.com/nvandessel/contagion/internal/simulation"
	"github.com/nvandessel/contagion/internal/store"
	"github.com/nvandessel/contagion/internal/visualization"
)

// defaultListLimit caps contagion_runs listings when no limit is given.
const defaultListLimit = 20

// registerTools registers all contagion MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "contagion_cascade",
		Description: "Run a deterministic threshold cascade on a directed graph until no node activates",
	}, s.handleCascade)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "contagion_epidemic",
		Description: "Run a seeded stochastic epidemic (infection, death, recovery, waning immunity, shelter, vaccination) on a directed graph",
	}, s.handleEpidemic)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "contagion_runs",
		Description: "List saved simulation runs, show one run by id, or delete it",
	}, s.handleRuns)
}

// handleCascade implements the contagion_cascade tool.
func (s *Server) handleCascade(ctx context.Context, req *sdk.CallToolRequest, args CascadeInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("contagion_cascade", start, retErr, map[string]any{
			"graph_path": args.GraphPath, "initiators": args.Initiators,
			"threshold": args.Threshold, "save": args.Save, "render": args.Render,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "contagion_cascade"); err != nil {
		return nil, RunOutput{}, err
	}
	if len(args.Initiators) == 0 {
		return nil, RunOutput{}, fmt.Errorf("initiators is required")
	}

	cfg := *s.defaults
	if args.Threshold != nil {
		cfg.Cascade.Threshold = *args.Threshold
	}
	if err := cfg.Validate(); err != nil {
		return nil, RunOutput{}, fmt.Errorf("invalid parameters: %w", err)
	}

	out, err := s.simulate(ctx, args.GraphPath, args.Save, args.Render, simulation.Request{
		Model:   simulation.ModelCascade,
		Cascade: cfg.CascadeModel(),
		Plan:    roles.Plan{Initiators: roles.SplitCandidates(args.Initiators...)},
	})
	if err != nil {
		return nil, RunOutput{}, err
	}
	return nil, out, nil
}

// handleEpidemic implements the contagion_epidemic tool.
func (s *Server) handleEpidemic(ctx context.Context, req *sdk.CallToolRequest, args EpidemicInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("contagion_epidemic", start, retErr, map[string]any{
			"graph_path": args.GraphPath, "initiators": args.Initiators,
			"infection_probability": args.InfectionProbability, "death_probability": args.DeathProbability,
			"recovery_probability": args.RecoveryProbability, "immunity_loss_probability": args.ImmunityLossProbability,
			"lifespan": args.Lifespan, "shelter": args.Shelter, "vaccination": args.Vaccination,
			"seed": args.Seed, "save": args.Save, "render": args.Render,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "contagion_epidemic"); err != nil {
		return nil, RunOutput{}, err
	}

	cfg := *s.defaults
	overrideFloat(&cfg.Epidemic.InfectionProbability, args.InfectionProbability)
	overrideFloat(&cfg.Epidemic.DeathProbability, args.DeathProbability)
	overrideFloat(&cfg.Epidemic.RecoveryProbability, args.RecoveryProbability)
	overrideFloat(&cfg.Epidemic.ImmunityLossProbability, args.ImmunityLossProbability)
	overrideFloat(&cfg.Roles.Vaccination, args.Vaccination)
	if args.Lifespan != nil {
		cfg.Epidemic.Lifespan = *args.Lifespan
	}
	if args.Shelter != "" {
		cfg.Roles.Shelter = args.Shelter
	}
	if err := cfg.Validate(); err != nil {
		return nil, RunOutput{}, fmt.Errorf("invalid parameters: %w", err)
	}
	shelter, err := roles.ParseShelter(cfg.Roles.Shelter)
	if err != nil {
		return nil, RunOutput{}, err
	}

	out, err := s.simulate(ctx, args.GraphPath, args.Save, args.Render, simulation.Request{
		Model:    simulation.ModelEpidemic,
		Epidemic: cfg.EpidemicModel(),
		Plan: roles.Plan{
			Initiators:      roles.SplitCandidates(args.Initiators...),
			Shelter:         shelter,
			VaccinationRate: cfg.Roles.Vaccination,
		},
		Seed: args.Seed,
	})
	if err != nil {
		return nil, RunOutput{}, err
	}
	return nil, out, nil
}

func overrideFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// simulate loads the graph, runs req and shapes the tool output.
func (s *Server) simulate(ctx context.Context, graphPath string, save bool, render string, req simulation.Request) (RunOutput, error) {
	var format visualization.Format
	if render != "" {
		f, err := visualization.ParseFormat(render)
		if err != nil {
			return RunOutput{}, err
		}
		format = f
	}

	g, path, err := s.loadGraph(graphPath)
	if err != nil {
		return RunOutput{}, err
	}
	req.GraphPath = path

	opts := []simulation.Option{simulation.WithLogger(s.logger), simulation.WithInvariantChecks()}
	if save {
		opts = append(opts, simulation.WithStore(s.store))
	}
	res, err := simulation.NewRunner(opts...).Run(ctx, g, req)
	if err != nil {
		return RunOutput{}, err
	}

	out := RunOutput{
		RunID:      res.RunID,
		Model:      res.Result.Model,
		Seed:       res.Seed,
		Record:     res.Result.Record,
		Rounds:     len(res.Result.Record) - 1,
		Initiators: nodeStrings(res.Assignment.Initiators),
		Dropped:    res.Assignment.Shelter.Dropped,
		Totals:     res.Result.Final.Counts(),
	}
	out.Message = fmt.Sprintf("%s ran %d rounds on %d nodes: %d infected, %d dead, %d recovered at the end",
		out.Model, out.Rounds, g.Len(), out.Totals.Infected, out.Totals.Dead, out.Totals.Recovered)
	if res.Result.Stopped {
		out.Message += fmt.Sprintf(" (stopped: %s)", res.Result.StopReason)
	}

	palette := visualization.PaletteFor(out.Model)
	switch format {
	case visualization.FormatDOT:
		out.Format = string(format)
		out.Graph = visualization.RenderDOT(g, res.Result.Final, palette, out.Model)
	case visualization.FormatJSON:
		out.Format = string(format)
		out.Graph = visualization.RenderJSON(g, res.Result.Final, palette)
	}
	return out, nil
}

// loadGraph resolves p against the server root, confines it to the allowed
// directories and loads it.
func (s *Server) loadGraph(p string) (*graph.Graph, string, error) {
	if p == "" {
		return nil, "", fmt.Errorf("graph_path is required")
	}
	if !filepath.IsAbs(p) && s.root != "" {
		p = filepath.Join(s.root, p)
	}
	if err := pathutil.ValidatePath(p, s.allowed); err != nil {
		return nil, "", err
	}
	g, err := loader.Load(p)
	if err != nil {
		return nil, "", err
	}
	return g, p, nil
}

func nodeStrings(ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// handleRuns implements the contagion_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("contagion_runs", start, retErr, map[string]any{
			"id": args.ID, "delete": args.Delete, "model": args.Model, "limit": args.Limit,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "contagion_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	switch {
	case args.Delete:
		if args.ID == "" {
			return nil, RunsOutput{}, fmt.Errorf("id is required to delete a run")
		}
		if err := s.store.DeleteRun(ctx, args.ID); err != nil {
			return nil, RunsOutput{}, err
		}
		return nil, RunsOutput{Message: fmt.Sprintf("deleted run %s", args.ID)}, nil

	case args.ID != "":
		run, err := s.store.GetRun(ctx, args.ID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		detail, err := runDetail(run)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		return nil, RunsOutput{
			Run:     detail,
			Count:   1,
			Message: fmt.Sprintf("%s run %s with %d rounds", run.Model, run.ID, run.RoundCount()),
		}, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.store.ListRuns(ctx, store.ListFilter{Model: args.Model, Limit: limit})
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	items := make([]RunListItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunListItem{
			ID:        r.ID,
			Model:     r.Model,
			GraphPath: r.GraphPath,
			Nodes:     r.Nodes,
			Seed:      r.Seed,
			Stopped:   r.Stopped,
			CreatedAt: r.CreatedAt,
		})
	}
	return nil, RunsOutput{
		Runs:    items,
		Count:   len(items),
		Message: fmt.Sprintf("%d saved runs", len(items)),
	}, nil
}

func runDetail(r *store.Run) (*RunDetail, error) {
	d := &RunDetail{
		ID:         r.ID,
		Model:      r.Model,
		GraphPath:  r.GraphPath,
		Nodes:      r.Nodes,
		Seed:       r.Seed,
		Stopped:    r.Stopped,
		CreatedAt:  r.CreatedAt,
		Edges:      r.Edges,
		Initiators: r.Initiators,
		Record:     r.Record(),
		Rounds:     r.Rounds,
		StopReason: r.StopReason,
		DurationMs: r.Duration.Milliseconds(),
	}
	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, &d.Params); err != nil {
			return nil, fmt.Errorf("decoding params of run %s: %w", r.ID, err)
		}
	}
	return d, nil
}
