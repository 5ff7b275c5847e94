package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"warn filters info", "warn", false, false},
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "node states")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace record not labelled TRACE: %q", buf.String())
	}
}

// roundEvent builds a round event over a two-node graph with one infected node.
func roundEvent(t *testing.T, round int) engine.RoundEvent {
	t.Helper()
	b := graph.NewBuilder()
	b.AddEdge(graph.StringID("a"), graph.IntID(2))
	g := b.Build()
	if err := g.SetFlag(graph.StringID("a"), graph.FlagInfected, true); err != nil {
		t.Fatal(err)
	}
	return engine.RoundEvent{
		Model:    "epidemic",
		Round:    round,
		Events:   engine.Events{New: 1},
		Totals:   g.Counts(),
		Snapshot: g.Snapshot(),
		Graph:    g,
	}
}

func readEntries(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, RoundLogFile))
	if err != nil {
		t.Fatalf("failed to read %s: %v", RoundLogFile, err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse JSONL entry %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewRoundLog_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	rl := NewRoundLog(dir, "info", "run-1")

	if rl != nil {
		t.Error("expected nil RoundLog at info level")
	}
	if err := rl.ObserveRound(context.Background(), roundEvent(t, 0)); err != nil {
		t.Errorf("nil RoundLog returned %v", err)
	}
	rl.Close()

	if _, err := os.Stat(filepath.Join(dir, RoundLogFile)); err == nil {
		t.Errorf("%s should not exist at info level", RoundLogFile)
	}
}

func TestNewRoundLog_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	rl := NewRoundLog(dir, "debug", "run-1")
	defer rl.Close()

	for round := 0; round < 2; round++ {
		if err := rl.ObserveRound(context.Background(), roundEvent(t, round)); err != nil {
			t.Fatalf("ObserveRound: %v", err)
		}
	}

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(entries))
	}
	first := entries[0]
	if first["run_id"] != "run-1" || first["model"] != "epidemic" {
		t.Errorf("entry = %v, want run_id run-1 and model epidemic", first)
	}
	if entries[1]["round"] != float64(1) {
		t.Errorf("second round = %v, want 1", entries[1]["round"])
	}
	if _, ok := first["time"]; !ok {
		t.Error("expected 'time' field in round log entry")
	}
	if _, ok := first["nodes"]; ok {
		t.Error("node states should only be logged at trace level")
	}
}

func TestNewRoundLog_TraceIncludesNodes(t *testing.T) {
	dir := t.TempDir()
	rl := NewRoundLog(dir, "trace", "")
	defer rl.Close()

	if err := rl.ObserveRound(context.Background(), roundEvent(t, 0)); err != nil {
		t.Fatal(err)
	}

	nodes, ok := readEntries(t, dir)[0]["nodes"].(map[string]any)
	if !ok {
		t.Fatal("expected nodes map at trace level")
	}
	if nodes["a"] != "infected" || nodes["2"] != "susceptible" {
		t.Errorf("nodes = %v", nodes)
	}
}

func TestRoundLog_ObserveAfterClose(t *testing.T) {
	dir := t.TempDir()
	rl := NewRoundLog(dir, "debug", "")
	rl.Close()

	if err := rl.ObserveRound(context.Background(), roundEvent(t, 0)); err != nil {
		t.Errorf("ObserveRound after Close = %v, want nil", err)
	}
}

func TestRoundLog_ConcurrentObserveAndClose(t *testing.T) {
	rl := NewRoundLog(t.TempDir(), "debug", "")
	ev := roundEvent(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = rl.ObserveRound(context.Background(), ev)
			}
		}()
	}
	rl.Close()
	wg.Wait()
	rl.Close()
}

func TestNewRoundLog_CreatesDirWithPrivatePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	rl := NewRoundLog(dir, "debug", "")
	if rl == nil {
		t.Fatal("expected non-nil RoundLog when dir needs creation")
	}
	defer rl.Close()

	info, err := os.Stat(filepath.Join(dir, RoundLogFile))
	if err != nil {
		t.Fatalf("%s should exist after dir creation: %v", RoundLogFile, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
