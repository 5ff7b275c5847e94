// Package engine drives a propagation model round by round. Each round is a
// two-phase step: the model computes staged changes from an immutable
// snapshot, then the driver applies them to the graph in one go. Observers
// see the graph only at round boundaries.
package engine

import (
	"github.com/nvandessel/contagion/internal/graph"
)

// Events counts the transitions produced by one round.
type Events struct {
	// New is the number of nodes newly activated (cascade) or infected (epidemic).
	New       int `json:"new"`
	Died      int `json:"died,omitempty"`
	Recovered int `json:"recovered,omitempty"`
	Waned     int `json:"waned,omitempty"`
}

// Staged holds the pending changes of a round and what they amount to.
type Staged struct {
	Changes graph.Changes
	Events  Events
}

// Model is a propagation model the Driver can advance.
type Model interface {
	// Name identifies the model in results and logs.
	Name() string

	// Continue is asked before every round. completed is the number of rounds
	// already applied and last is the most recent round's outcome (nil before
	// the first round).
	Continue(completed int, last *Staged) bool

	// Compute derives the next round's changes. It must read node state only
	// from snap and must not mutate the graph.
	Compute(snap graph.Snapshot) *Staged
}
