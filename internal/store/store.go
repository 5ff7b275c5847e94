// Package store defines the RunStore interface for saving simulation runs
// and querying them later.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/contagion/internal/engine"
)

var (
	// ErrNotFound is returned when no run matches an id.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguousID is returned when an id prefix matches several runs.
	ErrAmbiguousID = errors.New("run id prefix is ambiguous")
)

// Run is a saved simulation run: its parameters, per-round statistics and
// outcome. Node-level state is not persisted.
type Run struct {
	ID         string              `json:"id"`
	Model      string              `json:"model"`
	GraphPath  string              `json:"graph_path,omitempty"`
	Nodes      int                 `json:"nodes"`
	Edges      int                 `json:"edges"`
	Seed       uint64              `json:"seed"`
	Initiators []string            `json:"initiators"`
	Params     json.RawMessage     `json:"params,omitempty"`
	Rounds     []engine.RoundStats `json:"rounds,omitempty"`
	Stopped    bool                `json:"stopped"`
	StopReason string              `json:"stop_reason,omitempty"`
	Duration   time.Duration       `json:"duration"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewRun creates a run with a fresh id from an engine result.
func NewRun(res *engine.Result) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Model:      res.Model,
		Rounds:     res.Rounds,
		Stopped:    res.Stopped,
		StopReason: res.StopReason,
		Duration:   res.Duration,
		CreatedAt:  time.Now().UTC(),
	}
}

// Record returns the new-event count per round, index 0 being the seed count.
func (r *Run) Record() []int {
	out := make([]int, len(r.Rounds))
	for i, s := range r.Rounds {
		out[i] = s.Events.New
	}
	return out
}

// RoundCount returns the number of propagation rounds, excluding round 0.
func (r *Run) RoundCount() int {
	if len(r.Rounds) == 0 {
		return 0
	}
	return len(r.Rounds) - 1
}

// ListFilter narrows ListRuns. Zero values match everything.
type ListFilter struct {
	Model string
	// Limit caps the number of runs returned; 0 means no cap.
	Limit int
}

// RunStore defines the interface for storing and querying runs.
type RunStore interface {
	// SaveRun stores run, assigning an id when it has none, and returns the id.
	SaveRun(ctx context.Context, run *Run) (string, error)

	// GetRun returns the run whose id equals or uniquely starts with id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first, without per-round statistics.
	ListRuns(ctx context.Context, filter ListFilter) ([]Run, error)

	// DeleteRun removes the run whose id equals or uniquely starts with id.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}
