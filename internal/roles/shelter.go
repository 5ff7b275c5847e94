package roles

import (
	"fmt"
	"strconv"
	"strings"
)

// ShelterMode selects how a shelter spec is interpreted.
type ShelterMode string

const (
	ShelterNone       ShelterMode = ""
	ShelterProportion ShelterMode = "proportion"
	ShelterNodes      ShelterMode = "nodes"
)

// ShelterSpec is either a proportion of the population or an explicit list
// of node identifiers.
type ShelterSpec struct {
	Mode       ShelterMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Proportion float64     `json:"proportion,omitempty" yaml:"proportion,omitempty"`
	Nodes      []string    `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// ParseShelter interprets a user value. A number in [0, 1] is a proportion;
// anything else must be a comma-separated list with no empty items.
func ParseShelter(value string) (ShelterSpec, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ShelterSpec{}, nil
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
		return ShelterSpec{Mode: ShelterProportion, Proportion: f}, nil
	}

	items := strings.Split(value, ",")
	nodes := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return ShelterSpec{}, fmt.Errorf("shelter must be either a number between 0 and 1 or a comma-separated list of nodes, got %q", value)
		}
		nodes = append(nodes, item)
	}
	return ShelterSpec{Mode: ShelterNodes, Nodes: nodes}, nil
}

// String renders the spec the way ParseShelter accepts it.
func (s ShelterSpec) String() string {
	switch s.Mode {
	case ShelterProportion:
		return strconv.FormatFloat(s.Proportion, 'g', -1, 64)
	case ShelterNodes:
		return strings.Join(s.Nodes, ",")
	default:
		return ""
	}
}
