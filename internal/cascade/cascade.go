// Package cascade implements deterministic threshold diffusion. A susceptible
// node becomes active once the fraction of its active predecessors reaches the
// threshold. Active is terminal, and the infected flag stands for active.
package cascade

import (
	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// Name is the model name reported in results.
const Name = "cascade"

// DefaultThreshold is used when no threshold is configured.
const DefaultThreshold = 0.5

// Config holds the cascade parameters.
type Config struct {
	// Threshold is the minimum active-predecessor ratio, in [0, 1].
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultConfig returns the default cascade configuration.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Model is the threshold cascade.
type Model struct {
	g   *graph.Graph
	cfg Config
}

var _ engine.Model = (*Model)(nil)

// New creates a cascade over g. Initiators must already carry the infected
// flag (see roles.Resolver.Prepare).
func New(g *graph.Graph, cfg Config) *Model {
	return &Model{g: g, cfg: cfg}
}

// Name implements engine.Model.
func (m *Model) Name() string { return Name }

// Continue runs the first round unconditionally, then keeps going while the
// previous round activated at least one node.
func (m *Model) Continue(completed int, last *engine.Staged) bool {
	return last == nil || last.Events.New > 0
}

// Compute stages every susceptible node whose active-predecessor ratio in the
// pre-round snapshot reaches the threshold. Nodes without predecessors never
// activate, and neither do sheltered or vaccinated nodes.
func (m *Model) Compute(snap graph.Snapshot) *engine.Staged {
	staged := &engine.Staged{}
	for i := 0; i < snap.Len(); i++ {
		st := snap.At(i)
		if st.Infected || st.Protected() {
			continue
		}
		preds := m.g.In(i)
		if len(preds) == 0 {
			continue
		}
		active := 0
		for _, p := range preds {
			if snap.At(p).Infected {
				active++
			}
		}
		if float64(active)/float64(len(preds)) >= m.cfg.Threshold {
			st.Infected = true
			if staged.Changes.Stage(i, st) {
				staged.Events.New++
			}
		}
	}
	return staged
}
