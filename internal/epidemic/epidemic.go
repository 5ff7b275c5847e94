// Package epidemic implements a stochastic SIRS-like process with death.
//
// Per round, against the pre-round snapshot:
//   - recovered nodes lose immunity with ImmunityLossProbability;
//   - every infected node tries each eligible successor once with
//     InfectionProbability, then draws death and, if it survives, recovery.
//
// Sheltered and vaccinated nodes are never infected. The model runs for
// exactly Lifespan rounds.
package epidemic

import (
	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
	"github.com/nvandessel/contagion/internal/random"
)

// Name is the model name reported in results.
const Name = "epidemic"

// Model constants exposed as configuration points.
const (
	DefaultInfectionProbability    = 0.5
	DefaultDeathProbability        = 0.0
	DefaultRecoveryProbability     = 0.2
	DefaultImmunityLossProbability = 0.05
	DefaultLifespan                = 5
)

// Config holds the epidemic parameters. Probabilities are in [0, 1].
type Config struct {
	InfectionProbability    float64 `json:"infection_probability" yaml:"infection_probability"`
	DeathProbability        float64 `json:"death_probability" yaml:"death_probability"`
	RecoveryProbability     float64 `json:"recovery_probability" yaml:"recovery_probability"`
	ImmunityLossProbability float64 `json:"immunity_loss_probability" yaml:"immunity_loss_probability"`

	// Lifespan is the number of rounds to run.
	Lifespan int `json:"lifespan" yaml:"lifespan"`
}

// DefaultConfig returns the default epidemic configuration.
func DefaultConfig() Config {
	return Config{
		InfectionProbability:    DefaultInfectionProbability,
		DeathProbability:        DefaultDeathProbability,
		RecoveryProbability:     DefaultRecoveryProbability,
		ImmunityLossProbability: DefaultImmunityLossProbability,
		Lifespan:                DefaultLifespan,
	}
}

// Model is the epidemic process.
type Model struct {
	g   *graph.Graph
	cfg Config
	src random.Source
}

var _ engine.Model = (*Model)(nil)

// New creates an epidemic over g drawing from src. Seeds, shelter and
// vaccination flags must already be applied.
func New(g *graph.Graph, cfg Config, src random.Source) *Model {
	return &Model{g: g, cfg: cfg, src: src}
}

// Name implements engine.Model.
func (m *Model) Name() string { return Name }

// Continue runs exactly Lifespan rounds, even after infections die out.
func (m *Model) Continue(completed int, _ *engine.Staged) bool {
	return completed < m.cfg.Lifespan
}

// Compute draws one round of transitions. Draw order is fixed (waning over
// all nodes, then per infected node: successors in edge order, death,
// recovery), so a seed reproduces the same round.
func (m *Model) Compute(snap graph.Snapshot) *engine.Staged {
	staged := &engine.Staged{}

	for i := 0; i < snap.Len(); i++ {
		st := snap.At(i)
		if !st.Recovered {
			continue
		}
		if random.Bernoulli(m.src, m.cfg.ImmunityLossProbability) {
			st.Recovered = false
			staged.Changes.Stage(i, st)
			staged.Events.Waned++
		}
	}

	for i := 0; i < snap.Len(); i++ {
		st := snap.At(i)
		if !st.Infected || st.Dead {
			continue
		}

		for _, s := range m.g.Out(i) {
			target := snap.At(s)
			if target.Protected() || target.Dead || target.Recovered || target.Infected {
				continue
			}
			if random.Bernoulli(m.src, m.cfg.InfectionProbability) {
				target.Infected = true
				if staged.Changes.Stage(s, target) {
					staged.Events.New++
				}
			}
		}

		switch {
		case random.Bernoulli(m.src, m.cfg.DeathProbability):
			st.Infected, st.Dead = false, true
			staged.Changes.Stage(i, st)
			staged.Events.Died++
		case random.Bernoulli(m.src, m.cfg.RecoveryProbability):
			st.Infected, st.Recovered = false, true
			staged.Changes.Stage(i, st)
			staged.Events.Recovered++
		}
	}

	return staged
}
