package roles

import (
	"fmt"

	"github.com/nvandessel/contagion/internal/graph"
)

// Plan collects the raw role parameters of a run.
type Plan struct {
	// Initiators are raw candidate identifiers (see SplitCandidates).
	Initiators []string

	// AutoInitiator picks one random unsheltered node when Initiators is empty.
	// Without it an empty Initiators list is fatal.
	AutoInitiator bool

	// Shelter selects protected nodes. Zero value shelters nobody.
	Shelter ShelterSpec

	// VaccinationRate is the proportion of the population to vaccinate.
	VaccinationRate float64
}

// Assignment is the resolved, conflict-free set of roles for a run.
type Assignment struct {
	Initiators  []graph.NodeID
	AutoPicked  bool
	Shelter     Selection
	Vaccination Selection
}

// Resolve computes every role set and detects every conflict without
// touching the graph. Random draws happen in a fixed order: shelter sample,
// auto-picked initiator, vaccination sample.
func (r *Resolver) Resolve(p Plan) (*Assignment, error) {
	a := &Assignment{}

	if len(p.Initiators) > 0 {
		inits, err := r.Initiators(p.Initiators)
		if err != nil {
			return nil, err
		}
		a.Initiators = inits
	} else if !p.AutoInitiator {
		return nil, fmt.Errorf("%w: no initiator given", ErrNoValidInitiators)
	}

	shelter, err := r.Shelter(p.Shelter, a.Initiators)
	if err != nil {
		return nil, err
	}
	a.Shelter = shelter

	if len(a.Initiators) == 0 {
		id, err := r.PickInitiator(shelter.Nodes)
		if err != nil {
			return nil, err
		}
		a.Initiators = []graph.NodeID{id}
		a.AutoPicked = true
	}

	a.Vaccination = r.Vaccination(p.VaccinationRate, a.Initiators)
	return a, nil
}

// Prepare resolves the plan and, only if resolution succeeded, writes the
// flags onto the graph. A failed plan leaves the graph untouched.
func (r *Resolver) Prepare(p Plan) (*Assignment, error) {
	a, err := r.Resolve(p)
	if err != nil {
		return nil, err
	}
	if err := a.Apply(r.g); err != nil {
		return nil, err
	}
	return a, nil
}

// Apply writes the sheltered, infected and vaccinated flags.
func (a *Assignment) Apply(g *graph.Graph) error {
	for _, id := range a.Shelter.Nodes {
		if err := g.SetFlag(id, graph.FlagSheltered, true); err != nil {
			return fmt.Errorf("shelter %s: %w", id, err)
		}
	}
	for _, id := range a.Initiators {
		if err := g.SetFlag(id, graph.FlagInfected, true); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
	}
	for _, id := range a.Vaccination.Nodes {
		if err := g.SetFlag(id, graph.FlagVaccinated, true); err != nil {
			return fmt.Errorf("vaccinate %s: %w", id, err)
		}
	}
	return nil
}
