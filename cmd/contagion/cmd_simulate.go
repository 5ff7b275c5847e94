package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/contagion/internal/config"
	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
	"github.com/nvandessel/contagion/internal/loader"
	"github.com/nvandessel/contagion/internal/logging"
	"github.com/nvandessel/contagion/internal/metrics"
	"github.com/nvandessel/contagion/internal/roles"
	"github.com/nvandessel/contagion/internal/simulation"
	"github.com/nvandessel/contagion/internal/tui"
	"github.com/nvandessel/contagion/internal/visualization"
)

func newCascadeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cascade <graph>",
		Short: "Run the threshold cascade on a graph",
		Long: `Run the deterministic threshold cascade until no node activates.

A node activates once the fraction of its in-neighbours that are active
reaches the threshold. Nodes without in-neighbours never activate unless
they are initiators.

Examples:
  contagion cascade net.gml --initiator 1
  contagion cascade net.gml --initiator 1,7 --threshold 0.3 --plot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Cascade.Threshold, _ = cmd.Flags().GetFloat64("threshold")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}

			initiators, _ := cmd.Flags().GetStringSlice("initiator")
			if len(initiators) == 0 {
				return fmt.Errorf("at least one --initiator is required")
			}
			if cfg.Roles.Shelter != "" || cfg.Roles.Vaccination > 0 {
				newLogger(cmd, cfg).Warn("shelter and vaccination only apply to the epidemic, ignoring",
					"shelter", cfg.Roles.Shelter, "vaccination", cfg.Roles.Vaccination)
			}

			return runSimulation(cmd, cfg, args[0], 0, simulation.Request{
				Model:   simulation.ModelCascade,
				Cascade: cfg.CascadeModel(),
				Plan:    roles.Plan{Initiators: roles.SplitCandidates(initiators...)},
			})
		},
	}

	cmd.Flags().Float64("threshold", 0, "Fraction of active in-neighbours needed to activate (default from config, 0.5)")
	addRunFlags(cmd)
	return cmd
}

func newEpidemicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "epidemic <graph>",
		Aliases: []string{"covid"},
		Short:   "Run the stochastic epidemic on a graph",
		Long: `Run the epidemic for exactly lifespan rounds.

Each round infected nodes spread to susceptible successors, then may die
or recover. Recovered nodes lose their immunity with a small probability.
Sheltered and vaccinated nodes are never infected. With no --initiator one
unsheltered node is picked at random.

--shelter takes either a proportion of the population or a
comma-separated list of node ids.

Examples:
  contagion epidemic net.gml --seed 42
  contagion epidemic net.gml --initiator 3 --shelter 0.2 --vaccination 0.1
  contagion covid net.gml --shelter 4,9 --lifespan 20 --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyEpidemicFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}

			shelter, err := roles.ParseShelter(cfg.Roles.Shelter)
			if err != nil {
				return fmt.Errorf("invalid --shelter: %w", err)
			}
			initiators, _ := cmd.Flags().GetStringSlice("initiator")
			seed, _ := cmd.Flags().GetUint64("seed")

			return runSimulation(cmd, cfg, args[0], cfg.Epidemic.Lifespan, simulation.Request{
				Model:    simulation.ModelEpidemic,
				Epidemic: cfg.EpidemicModel(),
				Plan: roles.Plan{
					Initiators:      roles.SplitCandidates(initiators...),
					Shelter:         shelter,
					VaccinationRate: cfg.Roles.Vaccination,
				},
				Seed: seed,
			})
		},
	}

	cmd.Flags().Float64("infection-probability", 0, "Chance an infected node infects each susceptible successor per round (default 0.5)")
	cmd.Flags().Float64("death-probability", 0, "Chance an infected node dies per round (default 0)")
	cmd.Flags().Float64("recovery-probability", 0, "Chance a surviving infected node recovers per round (default 0.2)")
	cmd.Flags().Float64("immunity-loss-probability", 0, "Chance a recovered node becomes susceptible again per round (default 0.05)")
	cmd.Flags().Int("lifespan", 0, "Number of rounds to run (default 5)")
	cmd.Flags().String("shelter", "", "Proportion to shelter, or comma-separated node ids")
	cmd.Flags().Float64("vaccination", 0, "Proportion of the remaining population to vaccinate")
	cmd.Flags().Uint64("seed", 0, "Random seed; 0 picks one and reports it")
	addRunFlags(cmd)
	return cmd
}

// applyEpidemicFlags copies explicitly set flags over the loaded config.
func applyEpidemicFlags(cmd *cobra.Command, cfg *config.ContagionConfig) {
	floats := map[string]*float64{
		"infection-probability":     &cfg.Epidemic.InfectionProbability,
		"death-probability":         &cfg.Epidemic.DeathProbability,
		"recovery-probability":      &cfg.Epidemic.RecoveryProbability,
		"immunity-loss-probability": &cfg.Epidemic.ImmunityLossProbability,
		"vaccination":               &cfg.Roles.Vaccination,
	}
	for name, dst := range floats {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetFloat64(name)
		}
	}
	if cmd.Flags().Changed("lifespan") {
		cfg.Epidemic.Lifespan, _ = cmd.Flags().GetInt("lifespan")
	}
	if cmd.Flags().Changed("shelter") {
		cfg.Roles.Shelter, _ = cmd.Flags().GetString("shelter")
	}
}

// addRunFlags registers the flags shared by both models.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("initiator", nil, "Initiator node id (repeatable or comma-separated)")
	cmd.Flags().Bool("plot", false, "Print infections per round after the run")
	cmd.Flags().Bool("interactive", false, "Show each round in a terminal display")
	cmd.Flags().Duration("delay", 500*time.Millisecond, "Pause between rounds in the interactive display")
	cmd.Flags().Bool("save", false, "Save the run to the run database")
	cmd.Flags().String("dot-dir", "", "Write one Graphviz DOT file per round into this directory")
	cmd.Flags().String("metrics-out", "", "Write Prometheus metrics in text format to this file after the run")
	cmd.Flags().Bool("check-invariants", false, "Validate every node's state after each round")
}

// runSummary is the result printed after a run.
type runSummary struct {
	RunID      string       `json:"run_id,omitempty"`
	Model      string       `json:"model"`
	Graph      string       `json:"graph"`
	Nodes      int          `json:"nodes"`
	Edges      int          `json:"edges"`
	Seed       uint64       `json:"seed,omitempty"`
	Initiators []string     `json:"initiators"`
	AutoPicked bool         `json:"auto_picked,omitempty"`
	Dropped    []string     `json:"dropped_shelter,omitempty"`
	Record     []int        `json:"record"`
	Rounds     int          `json:"rounds"`
	Totals     graph.Counts `json:"totals"`
	Stopped    bool         `json:"stopped,omitempty"`
	StopReason string       `json:"stop_reason,omitempty"`
	Duration   string       `json:"duration"`
}

// runSimulation loads the graph, wires the requested observers and prints
// the outcome. horizon is the fixed round count shown by the interactive
// display, zero for the cascade.
func runSimulation(cmd *cobra.Command, cfg *config.ContagionConfig, graphPath string, horizon int, req simulation.Request) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	plot, _ := cmd.Flags().GetBool("plot")
	interactive, _ := cmd.Flags().GetBool("interactive")
	delay, _ := cmd.Flags().GetDuration("delay")
	save, _ := cmd.Flags().GetBool("save")
	dotDir, _ := cmd.Flags().GetString("dot-dir")
	metricsOut, _ := cmd.Flags().GetString("metrics-out")
	checkInvariants, _ := cmd.Flags().GetBool("check-invariants")

	g, err := loader.Load(graphPath)
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(graphPath); err == nil {
		graphPath = abs
	}
	req.GraphPath = graphPath
	req.RunID = uuid.NewString()

	logger := newLogger(cmd, cfg)
	logger.Debug("graph loaded", "path", graphPath, "nodes", g.Len(), "edges", g.EdgeCount())

	dir, err := stateDir(cmd)
	if err != nil {
		return err
	}

	var observers []engine.Observer
	if rl := logging.NewRoundLog(dir, cfg.Logging.Level, req.RunID); rl != nil {
		defer rl.Close()
		observers = append(observers, rl)
	}

	opts := []simulation.Option{
		simulation.WithLogger(logger),
	}
	if checkInvariants {
		opts = append(opts, simulation.WithInvariantChecks())
	}

	var reg *metrics.Registry
	if metricsOut != "" {
		reg = metrics.NewRegistry()
		observers = append(observers, reg)
	}

	if dotDir != "" {
		w, err := visualization.NewDOTWriter(dotDir)
		if err != nil {
			return err
		}
		observers = append(observers, w)
	}

	if save {
		runs, err := openRunStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer runs.Close()
		opts = append(opts, simulation.WithStore(runs))
	}

	// Nothing below may return before display.Finish.
	var display *tui.Display
	if interactive {
		display = tui.NewDisplay(tui.Options{
			Title:   fmt.Sprintf("contagion %s · %s", req.Model, filepath.Base(graphPath)),
			Horizon: horizon,
			Delay:   delay,
		})
		display.Start()
		observers = append(observers, display)
	}
	opts = append(opts, simulation.WithObservers(observers...))

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out, runErr := simulation.NewRunner(opts...).Run(ctx, g, req)
	if display != nil {
		var res *engine.Result
		if out != nil {
			res = out.Result
		}
		if err := display.Finish(ctx, res, runErr); err != nil {
			logger.Warn("interactive display failed", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if reg != nil {
		reg.RecordRun(out.Result)
		if err := reg.WriteTextfile(metricsOut); err != nil {
			return err
		}
	}

	summary := summarize(out, graphPath)
	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
	}
	printSummary(cmd.OutOrStdout(), summary)
	if plot {
		fmt.Fprintln(cmd.OutOrStdout())
		return visualization.WritePlot(cmd.OutOrStdout(), summary.Record)
	}
	return nil
}

func summarize(out *simulation.Outcome, graphPath string) runSummary {
	res := out.Result
	s := runSummary{
		RunID:      out.RunID,
		Model:      res.Model,
		Graph:      graphPath,
		Nodes:      out.Graph.Len(),
		Edges:      out.Graph.EdgeCount(),
		AutoPicked: out.Assignment.AutoPicked,
		Dropped:    out.Assignment.Shelter.Dropped,
		Record:     res.Record,
		Rounds:     len(res.Record) - 1,
		Totals:     res.Final.Counts(),
		Stopped:    res.Stopped,
		StopReason: res.StopReason,
		Duration:   res.Duration.Round(time.Microsecond).String(),
	}
	if res.Model == simulation.ModelEpidemic {
		s.Seed = out.Seed
	}
	for _, id := range out.Assignment.Initiators {
		s.Initiators = append(s.Initiators, id.String())
	}
	return s
}

func printSummary(w io.Writer, s runSummary) {
	fmt.Fprintf(w, "%s on %s (%d nodes, %d edges)\n", s.Model, s.Graph, s.Nodes, s.Edges)
	initiators := fmt.Sprintf("%v", s.Initiators)
	if s.AutoPicked {
		initiators += " (picked at random)"
	}
	fmt.Fprintf(w, "  initiators:  %s\n", initiators)
	if s.Seed != 0 {
		fmt.Fprintf(w, "  seed:        %d\n", s.Seed)
	}
	if len(s.Dropped) > 0 {
		fmt.Fprintf(w, "  ignored shelter ids: %v\n", s.Dropped)
	}
	fmt.Fprintf(w, "  rounds:      %d\n", s.Rounds)
	fmt.Fprintf(w, "  record:      %v\n", s.Record)
	if s.Model == simulation.ModelCascade {
		fmt.Fprintf(w, "  active:      %d / %d\n", s.Totals.Infected, s.Nodes)
	} else {
		t := s.Totals
		fmt.Fprintf(w, "  final:       %d susceptible, %d infected, %d recovered, %d dead, %d sheltered, %d vaccinated\n",
			t.Susceptible, t.Infected, t.Recovered, t.Dead, t.Sheltered, t.Vaccinated)
	}
	if s.Stopped {
		fmt.Fprintf(w, "  stopped:     %s\n", s.StopReason)
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "  saved as:    %s\n", s.RunID)
	}
}
