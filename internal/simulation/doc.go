// Package simulation wires one complete run together: it resolves roles on a
// loaded graph, builds the requested model over a seeded random source,
// drives it with the configured observers and optionally saves the outcome
// to a run store.
//
// Usage:
//
//	g, _ := loader.Load("network.gml")
//	r := simulation.NewRunner(simulation.WithLogger(logger), simulation.WithStore(s))
//	out, err := r.Run(ctx, g, simulation.Request{
//	    Model:    simulation.ModelEpidemic,
//	    Epidemic: epidemic.DefaultConfig(),
//	    Plan:     roles.Plan{Shelter: spec, VaccinationRate: 0.1},
//	    Seed:     42,
//	})
package simulation
