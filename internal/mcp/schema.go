package mcp

import (
	"time"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// CascadeInput defines the input for the contagion_cascade tool.
type CascadeInput struct {
	GraphPath  string   `json:"graph_path" jsonschema:"Path to a directed GML, YAML or JSON graph file, relative to the project root"`
	Initiators []string `json:"initiators" jsonschema:"Node ids that start active; integer ids may be given as strings"`
	Threshold  *float64 `json:"threshold,omitempty" jsonschema:"Minimum share of active predecessors needed to activate (0.0-1.0)"`
	Save       bool     `json:"save,omitempty" jsonschema:"Save the run so contagion_runs can list it later"`
	Render     string   `json:"render,omitempty" jsonschema:"Also return the final graph as 'dot' or 'json'"`
}

// EpidemicInput defines the input for the contagion_epidemic tool.
type EpidemicInput struct {
	GraphPath               string   `json:"graph_path" jsonschema:"Path to a directed GML, YAML or JSON graph file, relative to the project root"`
	Initiators              []string `json:"initiators,omitempty" jsonschema:"Node ids infected at round 0; one random unsheltered node when empty"`
	InfectionProbability    *float64 `json:"infection_probability,omitempty" jsonschema:"Chance an infected node infects each susceptible successor per round (0.0-1.0)"`
	DeathProbability        *float64 `json:"death_probability,omitempty" jsonschema:"Chance an infected node dies per round (0.0-1.0)"`
	RecoveryProbability     *float64 `json:"recovery_probability,omitempty" jsonschema:"Chance a surviving infected node recovers per round (0.0-1.0)"`
	ImmunityLossProbability *float64 `json:"immunity_loss_probability,omitempty" jsonschema:"Chance a recovered node becomes susceptible again per round (0.0-1.0)"`
	Lifespan                *int     `json:"lifespan,omitempty" jsonschema:"Number of rounds to run"`
	Shelter                 string   `json:"shelter,omitempty" jsonschema:"Proportion of nodes to shelter, or a comma-separated list of node ids"`
	Vaccination             *float64 `json:"vaccination,omitempty" jsonschema:"Proportion of the population to vaccinate (0.0-1.0)"`
	Seed                    uint64   `json:"seed,omitempty" jsonschema:"Random seed; 0 picks one and reports it"`
	Save                    bool     `json:"save,omitempty" jsonschema:"Save the run so contagion_runs can list it later"`
	Render                  string   `json:"render,omitempty" jsonschema:"Also return the final graph as 'dot' or 'json'"`
}

// RunOutput is the result of a simulation tool.
type RunOutput struct {
	RunID      string       `json:"run_id,omitempty" jsonschema:"Id of the saved run, when saved"`
	Model      string       `json:"model" jsonschema:"Model that ran: cascade or epidemic"`
	Seed       uint64       `json:"seed" jsonschema:"Seed that reproduces this run"`
	Record     []int        `json:"record" jsonschema:"New activations or infections per round; index 0 is the seed count"`
	Rounds     int          `json:"rounds" jsonschema:"Number of rounds after round 0"`
	Initiators []string     `json:"initiators" jsonschema:"Resolved initiator node ids"`
	Dropped    []string     `json:"dropped_shelter,omitempty" jsonschema:"Shelter ids ignored because they are not in the graph"`
	Totals     graph.Counts `json:"totals" jsonschema:"Node counts by state after the last round"`
	Format     string       `json:"format,omitempty" jsonschema:"Format of graph, when rendered"`
	Graph      any          `json:"graph,omitempty" jsonschema:"Final graph rendering"`
	Message    string       `json:"message" jsonschema:"Human-readable summary"`
}

// RunsInput defines the input for the contagion_runs tool.
type RunsInput struct {
	ID     string `json:"id,omitempty" jsonschema:"Run id or unique prefix; shows that run instead of listing"`
	Delete bool   `json:"delete,omitempty" jsonschema:"Delete the run named by id"`
	Model  string `json:"model,omitempty" jsonschema:"Only list runs of this model"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of runs to list (default: 20)"`
}

// RunsOutput defines the output for the contagion_runs tool.
type RunsOutput struct {
	Runs    []RunListItem `json:"runs,omitempty" jsonschema:"Saved runs, newest first"`
	Run     *RunDetail    `json:"run,omitempty" jsonschema:"The requested run"`
	Count   int           `json:"count" jsonschema:"Number of runs returned"`
	Message string        `json:"message" jsonschema:"Human-readable summary"`
}

// RunListItem is a list view of a saved run.
type RunListItem struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	GraphPath string    `json:"graph_path,omitempty"`
	Nodes     int       `json:"nodes"`
	Seed      uint64    `json:"seed"`
	Stopped   bool      `json:"stopped"`
	CreatedAt time.Time `json:"created_at"`
}

// RunDetail is the full view of a saved run.
type RunDetail struct {
	ID         string              `json:"id"`
	Model      string              `json:"model"`
	GraphPath  string              `json:"graph_path,omitempty"`
	Nodes      int                 `json:"nodes"`
	Seed       uint64              `json:"seed"`
	Stopped    bool                `json:"stopped"`
	CreatedAt  time.Time           `json:"created_at"`
	Edges      int                 `json:"edges"`
	Initiators []string            `json:"initiators"`
	Params     map[string]any      `json:"params,omitempty"`
	Record     []int               `json:"record"`
	Rounds     []engine.RoundStats `json:"rounds"`
	StopReason string              `json:"stop_reason,omitempty"`
	DurationMs int64               `json:"duration_ms"`
}
