package main

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nvandessel/contagion/internal/logging"
	"github.com/nvandessel/contagion/internal/roles"
	"github.com/nvandessel/contagion/internal/visualization"
)

func TestCascadeCmd_PathGraph(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1", "--plot")
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	for _, want := range []string{
		"record:      [1 1 1 1 0]",
		"active:      4 / 5",
		"Infections per Round",
		"Round 1: 1",
		"Round 4: 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Round 0:") {
		t.Errorf("plot should start at round 1:\n%s", out)
	}
}

func TestCascadeCmd_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1", "--threshold", "0.5", "--json")
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	var s runSummary
	decodeJSON(t, out, &s)
	if !reflect.DeepEqual(s.Record, []int{1, 1, 1, 1, 0}) {
		t.Errorf("Record = %v", s.Record)
	}
	if s.Rounds != 4 || s.Nodes != 5 || s.Edges != 3 {
		t.Errorf("summary = %+v", s)
	}
	if s.Seed != 0 {
		t.Errorf("cascade summary should not report a seed, got %d", s.Seed)
	}
	if s.RunID != "" {
		t.Errorf("unsaved run reported id %q", s.RunID)
	}
}

func TestCascadeCmd_RequiresInitiator(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, newCascadeCmd(), "cascade", env.graph)
	if err == nil || !strings.Contains(err.Error(), "--initiator") {
		t.Errorf("expected missing initiator error, got %v", err)
	}
}

func TestCascadeCmd_UnknownInitiator(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "42")
	if !errors.Is(err, roles.ErrNoValidInitiators) {
		t.Errorf("error = %v, want ErrNoValidInitiators", err)
	}
}

func TestCascadeCmd_InvalidThreshold(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1", "--threshold", "1.5")
	if err == nil || !strings.Contains(err.Error(), "cascade.threshold") {
		t.Errorf("expected cascade.threshold error, got %v", err)
	}
}

func TestCascadeCmd_MissingGraph(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, newCascadeCmd(), "cascade", filepath.Join(env.dir, "nope.gml"), "--initiator", "1"); err == nil {
		t.Error("expected error for a missing graph file")
	}
}

func TestCascadeCmd_ThresholdFromConfig(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("CONTAGION_CASCADE_THRESHOLD", "1")

	// 2 -> 3 and 3 -> 4 still pass with threshold 1 since each has one in-neighbour.
	out, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1", "--json")
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	var s runSummary
	decodeJSON(t, out, &s)
	if !reflect.DeepEqual(s.Record, []int{1, 1, 1, 1, 0}) {
		t.Errorf("Record = %v", s.Record)
	}
}

func TestEpidemicCmd_NoSpread(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, newEpidemicCmd(), "epidemic", env.graph,
		"--initiator", "1", "--infection-probability", "0", "--lifespan", "3", "--seed", "9", "--json")
	if err != nil {
		t.Fatalf("epidemic: %v", err)
	}
	var s runSummary
	decodeJSON(t, out, &s)
	if !reflect.DeepEqual(s.Record, []int{1, 0, 0, 0}) {
		t.Errorf("Record = %v, want [1 0 0 0]", s.Record)
	}
	if s.Seed != 9 {
		t.Errorf("Seed = %d, want 9", s.Seed)
	}
}

func TestEpidemicCmd_SameSeedSameRecord(t *testing.T) {
	env := newTestEnv(t)
	args := []string{"epidemic", env.graph, "--seed", "1234", "--lifespan", "8", "--death-probability", "0.1", "--json"}

	var records [2][]int
	for i := range records {
		out, err := env.run(t, newEpidemicCmd(), args...)
		if err != nil {
			t.Fatalf("epidemic: %v", err)
		}
		var s runSummary
		decodeJSON(t, out, &s)
		records[i] = s.Record
		if len(s.Record) != 9 {
			t.Errorf("Record has %d entries, want lifespan+1", len(s.Record))
		}
		if len(s.Initiators) != 1 || !s.AutoPicked {
			t.Errorf("expected one auto-picked initiator, got %+v", s)
		}
	}
	if !reflect.DeepEqual(records[0], records[1]) {
		t.Errorf("records differ for the same seed: %v vs %v", records[0], records[1])
	}
}

func TestEpidemicCmd_CovidAlias(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, newEpidemicCmd(), "covid", env.graph, "--initiator", "1", "--seed", "3")
	if err != nil {
		t.Fatalf("covid: %v", err)
	}
	if !strings.HasPrefix(out, "epidemic on ") {
		t.Errorf("output = %q", out)
	}
}

func TestEpidemicCmd_InitiatorShelterConflict(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, newEpidemicCmd(), "epidemic", env.graph, "--initiator", "3", "--shelter", "3")
	if !errors.Is(err, roles.ErrInitiatorSheltered) {
		t.Errorf("error = %v, want ErrInitiatorSheltered", err)
	}
}

func TestEpidemicCmd_ShelterAndVaccination(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, newEpidemicCmd(), "epidemic", env.graph,
		"--initiator", "1", "--shelter", "2,ghost", "--vaccination", "1", "--seed", "5", "--json")
	if err != nil {
		t.Fatalf("epidemic: %v", err)
	}
	var s runSummary
	decodeJSON(t, out, &s)
	if !reflect.DeepEqual(s.Dropped, []string{"ghost"}) {
		t.Errorf("Dropped = %v, want [ghost]", s.Dropped)
	}
	if s.Totals.Sheltered != 1 {
		t.Errorf("Sheltered = %d, want 1", s.Totals.Sheltered)
	}
	// Every node but the initiator is vaccinated, so nothing spreads.
	if s.Totals.Vaccinated != 4 {
		t.Errorf("Vaccinated = %d, want 4", s.Totals.Vaccinated)
	}
	for i, n := range s.Record[1:] {
		if n != 0 {
			t.Errorf("round %d infected %d nodes, want 0", i+1, n)
		}
	}
}

func TestEpidemicCmd_InvalidProbability(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, newEpidemicCmd(), "epidemic", env.graph, "--death-probability=-0.5")
	if err == nil || !strings.Contains(err.Error(), "epidemic.death_probability") {
		t.Errorf("expected epidemic.death_probability error, got %v", err)
	}
}

func TestEpidemicCmd_InvalidLifespan(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, newEpidemicCmd(), "epidemic", env.graph, "--lifespan", "0")
	if err == nil || !strings.Contains(err.Error(), "epidemic.lifespan") {
		t.Errorf("expected epidemic.lifespan error, got %v", err)
	}
}

func TestSimulate_DotDirAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	dotDir := filepath.Join(env.dir, "dots")
	metricsOut := filepath.Join(env.dir, "metrics.prom")

	if _, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1",
		"--dot-dir", dotDir, "--metrics-out", metricsOut); err != nil {
		t.Fatalf("cascade: %v", err)
	}

	for round := 0; round <= 4; round++ {
		path := filepath.Join(dotDir, visualization.RoundFile("cascade", round))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing DOT file for round %d: %v", round, err)
		}
	}

	data, err := os.ReadFile(metricsOut)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{`contagion_rounds_total{model="cascade"} 4`, "contagion_runs_total"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q:\n%s", want, data)
		}
	}
}

func TestSimulate_DebugWritesRoundLog(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1", "--log-level", "debug"); err != nil {
		t.Fatalf("cascade: %v", err)
	}

	f, err := os.Open(filepath.Join(env.state, logging.RoundLogFile))
	if err != nil {
		t.Fatalf("open round log: %v", err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 5 {
		t.Errorf("round log has %d lines, want 5", lines)
	}
}

func TestSimulate_InfoLevelSkipsRoundLog(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, newCascadeCmd(), "cascade", env.graph, "--initiator", "1"); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.state, logging.RoundLogFile)); !os.IsNotExist(err) {
		t.Errorf("round log should not exist at info level, stat err = %v", err)
	}
}

func TestNewEpidemicCmd_Flags(t *testing.T) {
	cmd := newEpidemicCmd()
	for _, flag := range []string{
		"initiator", "infection-probability", "death-probability", "recovery-probability",
		"immunity-loss-probability", "lifespan", "shelter", "vaccination", "seed",
		"plot", "interactive", "delay", "save", "dot-dir", "metrics-out", "check-invariants",
	} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
}
