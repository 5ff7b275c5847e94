// Package logging provides leveled logging and round tracing for contagion.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RoundLog for structured JSONL round traces (<state dir>/rounds.jsonl)
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// LevelTrace is a custom slog level below Debug. At this level the round log
// also records every node's state label.
const LevelTrace = slog.LevelDebug - 4

// RoundLogFile is the name of the JSONL trace inside the state directory.
const RoundLogFile = "rounds.jsonl"

// ParseLevel maps a level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing text to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RoundLog writes one JSONL entry per simulated round. It is safe for
// concurrent use. A nil RoundLog is safe to use; all methods are no-ops.
type RoundLog struct {
	mu    sync.Mutex
	w     io.WriteCloser
	runID string
	nodes bool
}

var _ engine.Observer = (*RoundLog)(nil)

// NewRoundLog opens dir/rounds.jsonl for append. At info level and above it
// returns nil and creates nothing. Returns nil if the file cannot be opened.
func NewRoundLog(dir, level, runID string) *RoundLog {
	lvl := ParseLevel(level)
	if lvl > slog.LevelDebug {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, RoundLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &RoundLog{w: f, runID: runID, nodes: lvl <= LevelTrace}
}

type roundEntry struct {
	Time   string            `json:"time"`
	RunID  string            `json:"run_id,omitempty"`
	Model  string            `json:"model"`
	Round  int               `json:"round"`
	Events engine.Events     `json:"events"`
	Totals graph.Counts      `json:"totals"`
	Nodes  map[string]string `json:"nodes,omitempty"`
}

// ObserveRound implements engine.Observer. Write failures are ignored.
func (rl *RoundLog) ObserveRound(_ context.Context, ev engine.RoundEvent) error {
	if rl == nil {
		return nil
	}

	entry := roundEntry{
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
		RunID:  rl.runID,
		Model:  ev.Model,
		Round:  ev.Round,
		Events: ev.Events,
		Totals: ev.Totals,
	}
	if rl.nodes && ev.Graph != nil {
		entry.Nodes = make(map[string]string, ev.Snapshot.Len())
		for i := 0; i < ev.Snapshot.Len(); i++ {
			entry.Nodes[ev.Graph.ID(i).String()] = ev.Snapshot.At(i).Label()
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	data = append(data, '\n')

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.w != nil {
		_, _ = rl.w.Write(data)
	}
	return nil
}

// Close closes the underlying file. Safe to call on nil receiver.
func (rl *RoundLog) Close() {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.w == nil {
		return
	}
	rl.w.Close()
	rl.w = nil
}
