// Package roles turns user intent (initiators, shelter, vaccination) into
// concrete node sets before a simulation starts. Every sampling decision is
// drawn once from the injected random source and fixed for the whole run.
package roles

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/contagion/internal/graph"
	"github.com/nvandessel/contagion/internal/random"
)

// Resolver resolves role sets against one graph.
type Resolver struct {
	g   *graph.Graph
	src random.Source
}

// NewResolver creates a resolver drawing samples from src.
func NewResolver(g *graph.Graph, src random.Source) *Resolver {
	return &Resolver{g: g, src: src}
}

// SplitCandidates flattens scalars, sequences and comma-separated strings
// into a trimmed candidate list. Empty items are dropped.
func SplitCandidates(raw ...string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Lookup resolves one candidate. The literal string label is tried first;
// only when that misses and the candidate is all digits is the integer key
// tried.
func (r *Resolver) Lookup(candidate string) (graph.NodeID, bool) {
	if id := graph.StringID(candidate); r.g.Has(id) {
		return id, true
	}
	if isDigits(candidate) {
		if n, err := strconv.ParseInt(candidate, 10, 64); err == nil {
			if id := graph.IntID(n); r.g.Has(id) {
				return id, true
			}
		}
	}
	return graph.NodeID{}, false
}

// Initiators resolves candidates to graph nodes, keeping first-seen order and
// dropping duplicates and unknown ids. An empty result is fatal.
func (r *Resolver) Initiators(candidates []string) ([]graph.NodeID, error) {
	seen := make(map[graph.NodeID]bool, len(candidates))
	out := make([]graph.NodeID, 0, len(candidates))
	for _, c := range candidates {
		id, ok := r.Lookup(c)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: candidates %v", ErrNoValidInitiators, candidates)
	}
	return out, nil
}

// PickInitiator chooses one node uniformly among those not sheltered.
func (r *Resolver) PickInitiator(sheltered []graph.NodeID) (graph.NodeID, error) {
	blocked := toSet(sheltered)
	eligible := make([]graph.NodeID, 0, r.g.Len())
	for _, id := range r.g.Nodes() {
		if !blocked[id] {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return graph.NodeID{}, ErrNoEligibleInitiator
	}
	return eligible[r.src.IntN(len(eligible))], nil
}

// Selection is the outcome of a shelter or vaccination resolution.
type Selection struct {
	Nodes []graph.NodeID
	// Requested is the count asked for before clamping (sampling modes only).
	Requested int
	// Dropped lists explicit ids that are not graph members.
	Dropped []string
}

// Clamped reports whether fewer nodes were selected than requested.
func (s Selection) Clamped() bool {
	return s.Requested > len(s.Nodes)
}

// Shelter resolves a shelter spec. Proportion mode samples floor(p*|V|) nodes
// from the population minus initiators; node mode keeps graph members only.
// Any overlap with initiators is fatal.
func (r *Resolver) Shelter(spec ShelterSpec, initiators []graph.NodeID) (Selection, error) {
	inits := toSet(initiators)

	switch spec.Mode {
	case ShelterNone:
		return Selection{Nodes: []graph.NodeID{}}, nil

	case ShelterProportion:
		requested := int(spec.Proportion * float64(r.g.Len()))
		candidates := make([]graph.NodeID, 0, r.g.Len())
		for _, id := range r.g.Nodes() {
			if !inits[id] {
				candidates = append(candidates, id)
			}
		}
		return Selection{
			Nodes:     random.Sample(r.src, candidates, requested),
			Requested: requested,
		}, nil

	case ShelterNodes:
		sel := Selection{Nodes: []graph.NodeID{}}
		seen := make(map[graph.NodeID]bool)
		for _, c := range spec.Nodes {
			id, ok := r.Lookup(c)
			if !ok {
				sel.Dropped = append(sel.Dropped, c)
				continue
			}
			if inits[id] {
				return Selection{}, fmt.Errorf("%w: %s", ErrInitiatorSheltered, id)
			}
			if !seen[id] {
				seen[id] = true
				sel.Nodes = append(sel.Nodes, id)
			}
		}
		return sel, nil
	}

	return Selection{}, fmt.Errorf("unknown shelter mode %q", spec.Mode)
}

// Vaccination samples floor(rate*|V|) nodes among those not infected.
func (r *Resolver) Vaccination(rate float64, infected []graph.NodeID) Selection {
	requested := int(rate * float64(r.g.Len()))
	inf := toSet(infected)
	candidates := make([]graph.NodeID, 0, r.g.Len())
	for _, id := range r.g.Nodes() {
		if !inf[id] {
			candidates = append(candidates, id)
		}
	}
	return Selection{
		Nodes:     random.Sample(r.src, candidates, requested),
		Requested: requested,
	}
}

func toSet(ids []graph.NodeID) map[graph.NodeID]bool {
	m := make(map[graph.NodeID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
