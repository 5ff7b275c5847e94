package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFlag is returned when a flag name outside the fixed schema is used.
var ErrInvalidFlag = errors.New("invalid flag")

// ErrStateConflict is returned by CheckInvariants when a node holds an
// impossible combination of flags.
var ErrStateConflict = errors.New("state conflict")

// Flag names one of the five per-node boolean flags.
type Flag uint8

const (
	FlagInfected Flag = iota
	FlagDead
	FlagRecovered
	FlagSheltered
	FlagVaccinated
)

var flagNames = [...]string{
	FlagInfected:   "infected",
	FlagDead:       "dead",
	FlagRecovered:  "recovered",
	FlagSheltered:  "sheltered",
	FlagVaccinated: "vaccinated",
}

// AllFlags lists every recognized flag in schema order.
var AllFlags = []Flag{FlagInfected, FlagDead, FlagRecovered, FlagSheltered, FlagVaccinated}

// String returns the flag's schema name.
func (f Flag) String() string {
	if int(f) < len(flagNames) {
		return flagNames[f]
	}
	return fmt.Sprintf("flag(%d)", uint8(f))
}

// ParseFlag maps a flag name (case-insensitive) to a Flag.
func ParseFlag(name string) (Flag, error) {
	for i, n := range flagNames {
		if strings.EqualFold(name, n) {
			return Flag(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidFlag, name, strings.Join(flagNames[:], ", "))
}

// NodeState is the fixed-schema flag record held for every node.
type NodeState struct {
	Infected   bool `json:"infected"`
	Dead       bool `json:"dead"`
	Recovered  bool `json:"recovered"`
	Sheltered  bool `json:"sheltered"`
	Vaccinated bool `json:"vaccinated"`
}

// Get returns the value of flag f.
func (s NodeState) Get(f Flag) (bool, error) {
	switch f {
	case FlagInfected:
		return s.Infected, nil
	case FlagDead:
		return s.Dead, nil
	case FlagRecovered:
		return s.Recovered, nil
	case FlagSheltered:
		return s.Sheltered, nil
	case FlagVaccinated:
		return s.Vaccinated, nil
	}
	return false, fmt.Errorf("%w: %s", ErrInvalidFlag, f)
}

// With returns a copy of s with flag f set to v.
func (s NodeState) With(f Flag, v bool) (NodeState, error) {
	switch f {
	case FlagInfected:
		s.Infected = v
	case FlagDead:
		s.Dead = v
	case FlagRecovered:
		s.Recovered = v
	case FlagSheltered:
		s.Sheltered = v
	case FlagVaccinated:
		s.Vaccinated = v
	default:
		return s, fmt.Errorf("%w: %s", ErrInvalidFlag, f)
	}
	return s, nil
}

// Protected reports whether the node can never become infected.
func (s NodeState) Protected() bool {
	return s.Sheltered || s.Vaccinated
}

// Susceptible reports whether the node is in none of the exclusive states.
func (s NodeState) Susceptible() bool {
	return !s.Infected && !s.Dead && !s.Recovered
}

// Label returns the dominant state name used by renderers. Dead wins over
// infected, infected over recovered, then the protective flags.
func (s NodeState) Label() string {
	switch {
	case s.Dead:
		return "dead"
	case s.Infected:
		return "infected"
	case s.Recovered:
		return "recovered"
	case s.Vaccinated:
		return "vaccinated"
	case s.Sheltered:
		return "sheltered"
	default:
		return "susceptible"
	}
}

// Validate checks the state-exclusive trio and the protective invariant.
func (s NodeState) Validate() error {
	exclusive := 0
	for _, b := range []bool{s.Infected, s.Dead, s.Recovered} {
		if b {
			exclusive++
		}
	}
	if exclusive > 1 {
		return fmt.Errorf("%w: more than one of infected/dead/recovered set", ErrStateConflict)
	}
	if s.Infected && s.Protected() {
		return fmt.Errorf("%w: protected node is infected", ErrStateConflict)
	}
	return nil
}

// Counts tallies nodes by state. Exclusive states are counted once each;
// Sheltered and Vaccinated are counted independently.
type Counts struct {
	Susceptible int `json:"susceptible"`
	Infected    int `json:"infected"`
	Dead        int `json:"dead"`
	Recovered   int `json:"recovered"`
	Sheltered   int `json:"sheltered"`
	Vaccinated  int `json:"vaccinated"`
}

func (c *Counts) add(s NodeState) {
	switch {
	case s.Dead:
		c.Dead++
	case s.Infected:
		c.Infected++
	case s.Recovered:
		c.Recovered++
	default:
		c.Susceptible++
	}
	if s.Sheltered {
		c.Sheltered++
	}
	if s.Vaccinated {
		c.Vaccinated++
	}
}
