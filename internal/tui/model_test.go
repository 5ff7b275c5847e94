package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// chainEvent builds a round event over a -> b -> c with the first k nodes infected.
func chainEvent(t *testing.T, round, k int) engine.RoundEvent {
	t.Helper()
	b := graph.NewBuilder()
	b.AddEdge(graph.StringID("a"), graph.StringID("b"))
	b.AddEdge(graph.StringID("b"), graph.StringID("c"))
	g := b.Build()
	for _, id := range g.Nodes()[:k] {
		require.NoError(t, g.SetFlag(id, graph.FlagInfected, true))
	}
	return engine.RoundEvent{
		Model:    "cascade",
		Round:    round,
		Events:   engine.Events{New: 1},
		Totals:   g.Counts(),
		Snapshot: g.Snapshot(),
		Graph:    g,
	}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok, "Update returned %T", next)
	return out
}

func TestModel_WaitsForFirstRound(t *testing.T) {
	m := newModel("contagion", 0)
	assert.Contains(t, m.View(), "Waiting for the first round")
}

func TestModel_RecordsRounds(t *testing.T) {
	m := newModel("contagion", 0)
	m = update(t, m, newRoundMsg(chainEvent(t, 0, 1)))
	m = update(t, m, newRoundMsg(chainEvent(t, 1, 2)))

	assert.Equal(t, []int{1, 1}, m.record)
	assert.Equal(t, 1, m.round)
	assert.Equal(t, 2, m.totals.Infected)
	assert.Equal(t, []string{"infected", "infected", "susceptible"}, m.labels)

	view := m.View()
	assert.Contains(t, view, "cascade · round 1 · 1 new")
	assert.Contains(t, view, "New per round")
	assert.Contains(t, view, "susceptible")
}

func TestModel_ShowsHorizon(t *testing.T) {
	m := update(t, newModel("epidemic", 5), newRoundMsg(chainEvent(t, 0, 1)))
	assert.Contains(t, m.View(), "round 0 / 5")
}

func TestModel_DoneStates(t *testing.T) {
	tests := []struct {
		name string
		msg  doneMsg
		want string
	}{
		{"complete", doneMsg{}, "run complete after 0 rounds"},
		{"stopped", doneMsg{stopped: true, reason: "context canceled"}, "run stopped: context canceled"},
		{"failed", doneMsg{err: errors.New("boom")}, "run failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := update(t, newModel("contagion", 0), newRoundMsg(chainEvent(t, 0, 1)))
			m = update(t, m, tt.msg)
			assert.Contains(t, m.View(), tt.want)
		})
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := newModel("contagion", 0)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, next.(model).quitting)
	assert.Empty(t, next.(model).View())
}

func TestModel_HelpToggle(t *testing.T) {
	m := update(t, newModel("contagion", 0), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	assert.True(t, m.help.ShowAll)
}

func TestModel_LargeGraphSkipsNodeStrip(t *testing.T) {
	m := newModel("contagion", 0)
	m.record = []int{1}
	m.labels = make([]string, maxNodes+1)
	assert.Contains(t, m.renderNodes(), "too many to draw")
}

func TestRenderRecord_ScalesToPeak(t *testing.T) {
	m := newModel("contagion", 0)
	m.record = []int{2, 4, 0}
	out := m.renderRecord()
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, barWidth, strings.Count(lines[2], "█"))
	assert.Equal(t, barWidth/2, strings.Count(lines[1], "█"))
	assert.Equal(t, 0, strings.Count(lines[3], "█"))
}

// headless returns a display that runs without a terminal.
func headless(opts Options) *Display {
	return NewDisplay(opts,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
		tea.WithoutRenderer(),
	)
}

func TestDisplay_StopsRunAfterClose(t *testing.T) {
	d := headless(Options{Title: "test"})
	d.Start()

	ctx := context.Background()
	require.NoError(t, d.ObserveRound(ctx, chainEvent(t, 0, 1)))
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.ObserveRound(ctx, chainEvent(t, 1, 2)), engine.ErrStop)
}

func TestDisplay_DelayInterruptedByClose(t *testing.T) {
	d := headless(Options{Title: "test", Delay: time.Hour})
	d.Start()

	errc := make(chan error, 1)
	go func() { errc <- d.ObserveRound(context.Background(), chainEvent(t, 0, 1)) }()

	time.Sleep(50 * time.Millisecond)
	d.program.Quit()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, engine.ErrStop)
	case <-time.After(5 * time.Second):
		t.Fatal("ObserveRound did not return after the display closed")
	}
}

func TestDisplay_FinishReturnsOnCancel(t *testing.T) {
	d := headless(Options{Title: "test"})
	d.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- d.Finish(ctx, &engine.Result{Model: "cascade"}, nil) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Finish did not return after cancellation")
	}
}
