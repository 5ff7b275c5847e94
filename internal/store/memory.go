package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRunStore implements RunStore for testing and the MCP server.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewInMemoryRunStore creates a new in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]Run)}
}

// SaveRun stores a copy of run.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.runs[run.ID] = cloneRun(*run)
	return run.ID, nil
}

// GetRun retrieves a run by id or unique id prefix.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	run := cloneRun(s.runs[full])
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		if filter.Model != "" && r.Model != filter.Model {
			continue
		}
		r.Rounds = nil
		out = append(out, cloneRun(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteRun removes a run by id or unique id prefix.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return err
	}
	delete(s.runs, full)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error {
	return nil
}

func (s *InMemoryRunStore) resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if _, ok := s.runs[id]; ok {
		return id, nil
	}
	var match string
	for k := range s.runs {
		if strings.HasPrefix(k, id) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
			}
			match = k
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

func cloneRun(r Run) Run {
	r.Initiators = append([]string(nil), r.Initiators...)
	r.Params = append([]byte(nil), r.Params...)
	if r.Rounds != nil {
		r.Rounds = append(r.Rounds[:0:0], r.Rounds...)
	}
	return r
}
