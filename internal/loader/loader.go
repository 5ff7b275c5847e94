// Package loader reads directed graphs from disk. GML files (".gml") and
// YAML or JSON edge lists (".yaml", ".yml", ".json") are supported.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/contagion/internal/graph"
)

var (
	// ErrUndirected is returned for graphs that are not declared directed.
	ErrUndirected = errors.New("graph is not directed")

	// ErrSyntax wraps malformed input.
	ErrSyntax = errors.New("malformed graph file")

	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported graph format")
)

// Format identifies a graph file format.
type Format string

const (
	FormatGML      Format = "gml"
	FormatEdgeList Format = "edgelist"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gml":
		return FormatGML, nil
	case ".yaml", ".yml", ".json":
		return FormatEdgeList, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads the graph at path. Every node starts with all flags cleared.
func Load(path string) (*graph.Graph, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening graph: %w", err)
	}
	defer f.Close()

	g, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return g, nil
}

// Read parses r in the given format.
func Read(r io.Reader, format Format) (*graph.Graph, error) {
	switch format {
	case FormatGML:
		return ReadGML(r)
	case FormatEdgeList:
		return ReadEdgeList(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// EdgeListFile is the on-disk shape of a YAML or JSON edge list:
//
//	directed: true
//	nodes: [a, b, 3]
//	edges:
//	  - [a, b]
//	  - [b, 3]
//
// Nodes named only in edges are added implicitly. Integer ids stay integers.
type EdgeListFile struct {
	Directed *bool   `yaml:"directed" json:"directed,omitempty"`
	Nodes    []any   `yaml:"nodes" json:"nodes,omitempty"`
	Edges    [][]any `yaml:"edges" json:"edges"`
}

// ReadEdgeList parses a YAML or JSON edge list. JSON is read by the YAML
// decoder. A missing directed key means directed.
func ReadEdgeList(r io.Reader) (*graph.Graph, error) {
	var file EdgeListFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrSyntax)
		}
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if file.Directed != nil && !*file.Directed {
		return nil, ErrUndirected
	}

	b := graph.NewBuilder()
	for _, raw := range file.Nodes {
		id, err := toNodeID(raw)
		if err != nil {
			return nil, err
		}
		b.AddNode(id)
	}
	for i, e := range file.Edges {
		if len(e) != 2 {
			return nil, fmt.Errorf("%w: edge %d has %d endpoints", ErrSyntax, i, len(e))
		}
		from, err := toNodeID(e[0])
		if err != nil {
			return nil, err
		}
		to, err := toNodeID(e[1])
		if err != nil {
			return nil, err
		}
		b.AddEdge(from, to)
	}
	return b.Build(), nil
}

func toNodeID(raw any) (graph.NodeID, error) {
	switch v := raw.(type) {
	case int:
		return graph.IntID(int64(v)), nil
	case int64:
		return graph.IntID(v), nil
	case uint64:
		return graph.IntID(int64(v)), nil
	case float64:
		if v == float64(int64(v)) {
			return graph.IntID(int64(v)), nil
		}
		return graph.StringID(fmt.Sprint(v)), nil
	case string:
		return graph.StringID(v), nil
	default:
		return graph.NodeID{}, fmt.Errorf("%w: unsupported node id %v (%T)", ErrSyntax, raw, raw)
	}
}
