// Package metrics exposes simulation progress as Prometheus metrics. A
// Registry is an engine observer; after a run its contents can be written
// to a node_exporter textfile.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// Registry holds the simulation metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	RoundsTotal  *prometheus.CounterVec
	EventsTotal  *prometheus.CounterVec
	NodesByState *prometheus.GaugeVec
	CurrentRound *prometheus.GaugeVec
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
}

var _ engine.Observer = (*Registry)(nil)

// NewRegistry creates a registry with every metric initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.RoundsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "contagion_rounds_total",
			Help: "Total number of propagation rounds applied",
		},
		[]string{"model"},
	)

	r.EventsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "contagion_events_total",
			Help: "Total state transitions by kind (new, died, recovered, waned)",
		},
		[]string{"model", "kind"},
	)

	r.NodesByState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contagion_nodes",
			Help: "Number of nodes per state after the latest round",
		},
		[]string{"model", "state"},
	)

	r.CurrentRound = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contagion_round",
			Help: "Index of the latest observed round",
		},
		[]string{"model"},
	)

	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "contagion_runs_total",
			Help: "Total number of finished runs by outcome",
		},
		[]string{"model", "status"},
	)

	r.RunDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contagion_run_duration_seconds",
			Help:    "Run wall-clock duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"model"},
	)

	return r
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveRound implements engine.Observer. Round 0 sets the gauges and
// counts the seeds as "new" events without counting a round.
func (r *Registry) ObserveRound(_ context.Context, ev engine.RoundEvent) error {
	if ev.Round > 0 {
		r.RoundsTotal.WithLabelValues(ev.Model).Inc()
	}
	r.EventsTotal.WithLabelValues(ev.Model, "new").Add(float64(ev.Events.New))
	r.EventsTotal.WithLabelValues(ev.Model, "died").Add(float64(ev.Events.Died))
	r.EventsTotal.WithLabelValues(ev.Model, "recovered").Add(float64(ev.Events.Recovered))
	r.EventsTotal.WithLabelValues(ev.Model, "waned").Add(float64(ev.Events.Waned))

	r.setTotals(ev.Model, ev.Totals)
	r.CurrentRound.WithLabelValues(ev.Model).Set(float64(ev.Round))
	return nil
}

func (r *Registry) setTotals(model string, c graph.Counts) {
	r.NodesByState.WithLabelValues(model, "susceptible").Set(float64(c.Susceptible))
	r.NodesByState.WithLabelValues(model, "infected").Set(float64(c.Infected))
	r.NodesByState.WithLabelValues(model, "dead").Set(float64(c.Dead))
	r.NodesByState.WithLabelValues(model, "recovered").Set(float64(c.Recovered))
	r.NodesByState.WithLabelValues(model, "sheltered").Set(float64(c.Sheltered))
	r.NodesByState.WithLabelValues(model, "vaccinated").Set(float64(c.Vaccinated))
}

// RecordRun records a finished run as "completed" or "stopped".
func (r *Registry) RecordRun(res *engine.Result) {
	status := "completed"
	if res.Stopped {
		status = "stopped"
	}
	r.RunsTotal.WithLabelValues(res.Model, status).Inc()
	r.RunDuration.WithLabelValues(res.Model).Observe(res.Duration.Seconds())
}

// WriteTextfile writes every metric in the Prometheus text format to path,
// atomically, for the node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
