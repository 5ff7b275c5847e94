package epidemic

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
	"github.com/nvandessel/contagion/internal/random"
	"github.com/nvandessel/contagion/internal/roles"
)

var (
	a = graph.StringID("a")
	b = graph.StringID("b")
	c = graph.StringID("c")
)

// setFlags is a test helper that sets flags on id and fails the test on error.
func setFlags(t *testing.T, g *graph.Graph, id graph.NodeID, flags ...graph.Flag) {
	t.Helper()
	for _, f := range flags {
		if err := g.SetFlag(id, f, true); err != nil {
			t.Fatalf("SetFlag(%s, %s): %v", id, f, err)
		}
	}
}

func state(t *testing.T, g *graph.Graph, id graph.NodeID) graph.NodeState {
	t.Helper()
	s, err := g.State(id)
	if err != nil {
		t.Fatalf("State(%s): %v", id, err)
	}
	return s
}

func TestEpidemic_NoSpreadNoDeath(t *testing.T) {
	bld := graph.NewBuilder()
	bld.AddEdge(a, b)
	bld.AddEdge(a, c)
	g := bld.Build()
	setFlags(t, g, a, graph.FlagInfected)

	cfg := DefaultConfig()
	cfg.InfectionProbability = 0
	cfg.DeathProbability = 0
	cfg.Lifespan = 3

	res, err := engine.NewDriver(g, engine.WithInvariantChecks()).Run(context.Background(), New(g, cfg, random.New(1)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int{1, 0, 0, 0}
	if !reflect.DeepEqual(res.Record, want) {
		t.Errorf("record = %v, want %v", res.Record, want)
	}
	if s := state(t, g, a); s.Dead {
		t.Error("seed died with death probability 0")
	}
	for _, id := range []graph.NodeID{b, c} {
		if state(t, g, id).Infected {
			t.Errorf("%s infected with infection probability 0", id)
		}
	}
}

func TestEpidemic_RoundOutcomes(t *testing.T) {
	cfg := Config{
		InfectionProbability: 0.5,
		DeathProbability:     0.5,
		RecoveryProbability:  0.5,
		Lifespan:             1,
	}

	tests := []struct {
		name   string
		draws  []float64
		wantA  graph.NodeState
		wantB  graph.NodeState
		events engine.Events
	}{
		{
			name:   "infects then dies",
			draws:  []float64{0.1, 0.1},
			wantA:  graph.NodeState{Dead: true},
			wantB:  graph.NodeState{Infected: true},
			events: engine.Events{New: 1, Died: 1},
		},
		{
			name:   "survives and recovers",
			draws:  []float64{0.9, 0.9, 0.1},
			wantA:  graph.NodeState{Recovered: true},
			wantB:  graph.NodeState{},
			events: engine.Events{Recovered: 1},
		},
		{
			name:   "stays infected",
			draws:  []float64{0.9, 0.9, 0.9},
			wantA:  graph.NodeState{Infected: true},
			wantB:  graph.NodeState{},
			events: engine.Events{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bld := graph.NewBuilder()
			bld.AddEdge(a, b)
			g := bld.Build()
			setFlags(t, g, a, graph.FlagInfected)

			src := random.NewSequence(tt.draws...)
			staged := New(g, cfg, src).Compute(g.Snapshot())
			g.Apply(&staged.Changes)

			if staged.Events != tt.events {
				t.Errorf("events = %+v, want %+v", staged.Events, tt.events)
			}
			if got := state(t, g, a); got != tt.wantA {
				t.Errorf("a = %+v, want %+v", got, tt.wantA)
			}
			if got := state(t, g, b); got != tt.wantB {
				t.Errorf("b = %+v, want %+v", got, tt.wantB)
			}
			if src.Used() != len(tt.draws) {
				t.Errorf("consumed %d draws, want %d", src.Used(), len(tt.draws))
			}
		})
	}
}

func TestEpidemic_WaningUsesPreRoundSnapshot(t *testing.T) {
	// b -> a; a is recovered and loses immunity this round, b is infectious.
	bld := graph.NewBuilder()
	bld.AddEdge(b, a)
	g := bld.Build()
	setFlags(t, g, a, graph.FlagRecovered)
	setFlags(t, g, b, graph.FlagInfected)

	cfg := Config{InfectionProbability: 1, ImmunityLossProbability: 1, Lifespan: 2}
	m := New(g, cfg, random.New(1))

	staged := m.Compute(g.Snapshot())
	g.Apply(&staged.Changes)

	if staged.Events.Waned != 1 || staged.Events.New != 0 {
		t.Fatalf("round 1 events = %+v, want one waning and no infection", staged.Events)
	}
	if s := state(t, g, a); s != (graph.NodeState{}) {
		t.Fatalf("a after round 1 = %+v, want susceptible", s)
	}

	staged = m.Compute(g.Snapshot())
	g.Apply(&staged.Changes)
	if !state(t, g, a).Infected {
		t.Error("a not reinfected once susceptible again")
	}
}

func TestEpidemic_MultiplePredecessorsCountOnce(t *testing.T) {
	bld := graph.NewBuilder()
	bld.AddEdge(a, c)
	bld.AddEdge(b, c)
	g := bld.Build()
	setFlags(t, g, a, graph.FlagInfected)
	setFlags(t, g, b, graph.FlagInfected)

	cfg := Config{InfectionProbability: 1, Lifespan: 1}
	staged := New(g, cfg, random.New(1)).Compute(g.Snapshot())

	if staged.Events.New != 1 {
		t.Errorf("new infections = %d, want 1", staged.Events.New)
	}
}

func TestEpidemic_ProtectedNodesNeverInfected(t *testing.T) {
	bld := graph.NewBuilder()
	bld.AddEdge(a, b)
	bld.AddEdge(a, c)
	g := bld.Build()
	setFlags(t, g, a, graph.FlagInfected)
	setFlags(t, g, b, graph.FlagSheltered)
	setFlags(t, g, c, graph.FlagVaccinated)

	cfg := Config{InfectionProbability: 1, Lifespan: 10}
	res, err := engine.NewDriver(g, engine.WithInvariantChecks()).Run(context.Background(), New(g, cfg, random.New(3)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, v := range res.Record[1:] {
		if v != 0 {
			t.Fatalf("record = %v, want no new infections", res.Record)
		}
	}
}

// randomGraph decodes edge codes into a graph over n integer nodes.
func randomGraph(n int, codes []int) *graph.Graph {
	bld := graph.NewBuilder()
	for i := 0; i < n; i++ {
		bld.AddNode(graph.IntID(int64(i)))
	}
	for _, code := range codes {
		bld.AddEdge(graph.IntID(int64(code%n)), graph.IntID(int64((code/n)%n)))
	}
	return bld.Build()
}

type runOutput struct {
	record []int
	final  graph.Snapshot
}

func simulate(n int, codes []int, cfg Config, shelter, vacc float64, seed uint64) (runOutput, error) {
	g := randomGraph(n, codes)
	src := random.New(seed)
	_, err := roles.NewResolver(g, src).Prepare(roles.Plan{
		AutoInitiator:   true,
		Shelter:         roles.ShelterSpec{Mode: roles.ShelterProportion, Proportion: shelter},
		VaccinationRate: vacc,
	})
	if err != nil {
		return runOutput{}, err
	}
	res, err := engine.NewDriver(g, engine.WithInvariantChecks()).Run(context.Background(), New(g, cfg, src))
	if err != nil {
		return runOutput{}, err
	}
	return runOutput{record: res.Record, final: res.Final}, nil
}

func TestEpidemic_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	genCfg := gopter.CombineGens(
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 15),
	).Map(func(vals []interface{}) Config {
		cfg := DefaultConfig()
		cfg.InfectionProbability = vals[0].(float64)
		cfg.DeathProbability = vals[1].(float64)
		cfg.Lifespan = vals[2].(int)
		return cfg
	})

	properties.Property("record length is lifespan+1 and invariants hold every round", prop.ForAll(
		func(n int, codes []int, cfg Config, shelter float64, seed uint64) bool {
			out, err := simulate(n, codes, cfg, shelter, 0.2, seed)
			if err != nil {
				return false
			}
			return len(out.record) == cfg.Lifespan+1
		},
		gen.IntRange(2, 30),
		gen.SliceOf(gen.IntRange(0, 899)),
		genCfg,
		gen.Float64Range(0, 0.5),
		gen.UInt64(),
	))

	properties.Property("same seed reproduces record and final state", prop.ForAll(
		func(n int, codes []int, cfg Config, seed uint64) bool {
			first, err1 := simulate(n, codes, cfg, 0.2, 0.2, seed)
			second, err2 := simulate(n, codes, cfg, 0.2, 0.2, seed)
			if err1 != nil || err2 != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		gen.IntRange(2, 30),
		gen.SliceOf(gen.IntRange(0, 899)),
		genCfg,
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
