// Package graph holds the directed topology of a simulation together with the
// fixed-schema flag record of every node. Topology is immutable once built;
// node flags are the only mutable state.
package graph

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownNode is returned when an id is not a member of the graph.
var ErrUnknownNode = errors.New("unknown node")

// NodeID identifies a node. Loaders key nodes either by string label or by
// integer; the two never compare equal, so StringID("1") != IntID(1).
type NodeID struct {
	label string
	num   int64
	isInt bool
}

// StringID returns a string-keyed node id.
func StringID(s string) NodeID { return NodeID{label: s} }

// IntID returns an integer-keyed node id.
func IntID(n int64) NodeID { return NodeID{num: n, isInt: true} }

// IsInt reports whether the id is integer-keyed.
func (id NodeID) IsInt() bool { return id.isInt }

// Int returns the integer key and whether the id is integer-keyed.
func (id NodeID) Int() (int64, bool) { return id.num, id.isInt }

// String renders the id for display.
func (id NodeID) String() string {
	if id.isInt {
		return strconv.FormatInt(id.num, 10)
	}
	return id.label
}

// MarshalText renders the id the same way String does.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Graph is a directed graph with per-node flag state.
type Graph struct {
	ids   []NodeID
	index map[NodeID]int
	in    [][]int
	out   [][]int
	state []NodeState
	edges int
}

// Builder accumulates nodes and edges before the immutable topology is built.
type Builder struct {
	g    *Graph
	seen map[[2]int]struct{}
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		g:    &Graph{index: make(map[NodeID]int)},
		seen: make(map[[2]int]struct{}),
	}
}

// AddNode adds id if absent and returns its index.
func (b *Builder) AddNode(id NodeID) int {
	if i, ok := b.g.index[id]; ok {
		return i
	}
	i := len(b.g.ids)
	b.g.ids = append(b.g.ids, id)
	b.g.index[id] = i
	b.g.in = append(b.g.in, nil)
	b.g.out = append(b.g.out, nil)
	return i
}

// AddEdge adds a directed edge from -> to, creating missing endpoints.
// Parallel edges collapse into one.
func (b *Builder) AddEdge(from, to NodeID) {
	f := b.AddNode(from)
	t := b.AddNode(to)
	key := [2]int{f, t}
	if _, dup := b.seen[key]; dup {
		return
	}
	b.seen[key] = struct{}{}
	b.g.out[f] = append(b.g.out[f], t)
	b.g.in[t] = append(b.g.in[t], f)
	b.g.edges++
}

// Build finalizes the topology. All flags start false. The builder must not
// be used afterwards.
func (b *Builder) Build() *Graph {
	g := b.g
	g.state = make([]NodeState, len(g.ids))
	b.g = nil
	b.seen = nil
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// EdgeCount returns the number of distinct directed edges.
func (g *Graph) EdgeCount() int { return g.edges }

// Nodes returns every node id in insertion order.
func (g *Graph) Nodes() []NodeID {
	out := make([]NodeID, len(g.ids))
	copy(out, g.ids)
	return out
}

// Has reports whether id is a member of the graph.
func (g *Graph) Has(id NodeID) bool {
	_, ok := g.index[id]
	return ok
}

// Index returns the dense index of id.
func (g *Graph) Index(id NodeID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// ID returns the id stored at index i.
func (g *Graph) ID(i int) NodeID { return g.ids[i] }

// In returns the predecessor indices of node i. The slice must not be modified.
func (g *Graph) In(i int) []int { return g.in[i] }

// Out returns the successor indices of node i. The slice must not be modified.
func (g *Graph) Out(i int) []int { return g.out[i] }

// Predecessors returns the ids with an edge into id.
func (g *Graph) Predecessors(id NodeID) ([]NodeID, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return g.resolve(g.in[i]), nil
}

// Successors returns the ids reachable from id over one edge.
func (g *Graph) Successors(id NodeID) ([]NodeID, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return g.resolve(g.out[i]), nil
}

func (g *Graph) resolve(idx []int) []NodeID {
	out := make([]NodeID, len(idx))
	for k, i := range idx {
		out[k] = g.ids[i]
	}
	return out
}

// State returns the flag record of id.
func (g *Graph) State(id NodeID) (NodeState, error) {
	i, ok := g.index[id]
	if !ok {
		return NodeState{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return g.state[i], nil
}

// StateAt returns the flag record at index i.
func (g *Graph) StateAt(i int) NodeState { return g.state[i] }

// Flag returns a single flag of id.
func (g *Graph) Flag(id NodeID, f Flag) (bool, error) {
	s, err := g.State(id)
	if err != nil {
		return false, err
	}
	return s.Get(f)
}

// SetFlag sets a single flag of id.
func (g *Graph) SetFlag(id NodeID, f Flag, v bool) error {
	i, ok := g.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	s, err := g.state[i].With(f, v)
	if err != nil {
		return err
	}
	g.state[i] = s
	return nil
}

// GetFlagByName reads a flag addressed by its schema name.
func (g *Graph) GetFlagByName(id NodeID, name string) (bool, error) {
	f, err := ParseFlag(name)
	if err != nil {
		return false, err
	}
	return g.Flag(id, f)
}

// SetFlagByName writes a flag addressed by its schema name.
func (g *Graph) SetFlagByName(id NodeID, name string, v bool) error {
	f, err := ParseFlag(name)
	if err != nil {
		return err
	}
	return g.SetFlag(id, f, v)
}

// Reset clears every flag on every node.
func (g *Graph) Reset() {
	for i := range g.state {
		g.state[i] = NodeState{}
	}
}

// Counts tallies the current node states.
func (g *Graph) Counts() Counts {
	var c Counts
	for _, s := range g.state {
		c.add(s)
	}
	return c
}

// CheckInvariants validates every node's flag record.
func (g *Graph) CheckInvariants() error {
	for i, s := range g.state {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("node %s: %w", g.ids[i], err)
		}
	}
	return nil
}
