// Package visualization renders simulation graphs and records in various
// output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/contagion/internal/graph"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatDOT:
		return FormatDOT, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format %q (valid: dot, json)", s)
	}
}

// Palette selects node colours.
type Palette string

const (
	// PaletteCascade colours active nodes orange and everything else grey.
	PaletteCascade Palette = "cascade"
	// PaletteEpidemic colours nodes by their dominant state label.
	PaletteEpidemic Palette = "epidemic"
)

// stateColors maps state labels to DOT colours.
var stateColors = map[string]string{
	"dead":        "black",
	"infected":    "red",
	"recovered":   "green",
	"vaccinated":  "cyan",
	"sheltered":   "lightgrey",
	"susceptible": "blue",
}

// Color returns the fill colour for a node state.
func (p Palette) Color(st graph.NodeState) string {
	if p == PaletteCascade {
		if st.Infected {
			return "orange"
		}
		return "lightgrey"
	}
	return stateColors[st.Label()]
}

// PaletteFor returns the palette matching a model name.
func PaletteFor(model string) Palette {
	if model == string(PaletteCascade) {
		return PaletteCascade
	}
	return PaletteEpidemic
}

// RenderDOT produces a Graphviz DOT representation of g with every node
// filled according to its state in snap.
func RenderDOT(g *graph.Graph, snap graph.Snapshot, p Palette, title string) string {
	var b strings.Builder
	b.WriteString("digraph contagion {\n")
	if title != "" {
		b.WriteString(fmt.Sprintf("  label=%q;\n  labelloc=t;\n", title))
	}
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\", fontcolor=white];\n")
	b.WriteString("  edge [color=gray40];\n\n")

	for i := 0; i < g.Len(); i++ {
		st := snap.At(i)
		b.WriteString(fmt.Sprintf("  %q [fillcolor=%q, tooltip=%q];\n",
			g.ID(i).String(), p.Color(st), st.Label()))
	}
	b.WriteString("\n")

	for i := 0; i < g.Len(); i++ {
		for _, t := range g.Out(i) {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", g.ID(i).String(), g.ID(t).String()))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// JSONNode is one node in the JSON rendering.
type JSONNode struct {
	ID    graph.NodeID    `json:"id"`
	State string          `json:"state"`
	Color string          `json:"color"`
	Flags graph.NodeState `json:"flags"`
}

// JSONEdge is one edge in the JSON rendering.
type JSONEdge struct {
	Source graph.NodeID `json:"source"`
	Target graph.NodeID `json:"target"`
}

// JSONGraph is the JSON rendering of a graph and its node states.
type JSONGraph struct {
	Nodes     []JSONNode   `json:"nodes"`
	Edges     []JSONEdge   `json:"edges"`
	NodeCount int          `json:"node_count"`
	EdgeCount int          `json:"edge_count"`
	Totals    graph.Counts `json:"totals"`
}

// RenderJSON produces a JSON-ready graph representation with nodes and edges.
func RenderJSON(g *graph.Graph, snap graph.Snapshot, p Palette) JSONGraph {
	out := JSONGraph{
		Nodes:     make([]JSONNode, 0, g.Len()),
		Edges:     make([]JSONEdge, 0, g.EdgeCount()),
		NodeCount: g.Len(),
		EdgeCount: g.EdgeCount(),
		Totals:    snap.Counts(),
	}
	for i := 0; i < g.Len(); i++ {
		st := snap.At(i)
		out.Nodes = append(out.Nodes, JSONNode{
			ID:    g.ID(i),
			State: st.Label(),
			Color: p.Color(st),
			Flags: st,
		})
		for _, t := range g.Out(i) {
			out.Edges = append(out.Edges, JSONEdge{Source: g.ID(i), Target: g.ID(t)})
		}
	}
	return out
}
