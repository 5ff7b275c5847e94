package roles

import (
	"errors"
	"fmt"
)

// ErrConfigurationConflict is the root of every fatal role-resolution error.
// All of them are raised before any round executes.
var ErrConfigurationConflict = errors.New("configuration conflict")

var (
	// ErrNoValidInitiators means no candidate initiator matched a graph node.
	ErrNoValidInitiators = fmt.Errorf("%w: no valid initiators found in the graph", ErrConfigurationConflict)

	// ErrInitiatorSheltered means a node was resolved both as initiator and sheltered.
	ErrInitiatorSheltered = fmt.Errorf("%w: node cannot be an initiator and sheltered", ErrConfigurationConflict)

	// ErrNoEligibleInitiator means every node is sheltered, so no initiator can be picked.
	ErrNoEligibleInitiator = fmt.Errorf("%w: no eligible unsheltered nodes to pick an initiator from", ErrConfigurationConflict)
)
