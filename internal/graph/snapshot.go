package graph

// Snapshot is an immutable copy of every node's state, taken before a round.
// Compute steps read only from a Snapshot so that writes staged during a
// round can never influence decisions made in the same round.
type Snapshot struct {
	states []NodeState
}

// Snapshot copies the current node states.
func (g *Graph) Snapshot() Snapshot {
	s := make([]NodeState, len(g.state))
	copy(s, g.state)
	return Snapshot{states: s}
}

// Len returns the number of nodes captured.
func (s Snapshot) Len() int { return len(s.states) }

// At returns the captured state of node i.
func (s Snapshot) At(i int) NodeState { return s.states[i] }

// Counts tallies the captured node states.
func (s Snapshot) Counts() Counts {
	var c Counts
	for _, st := range s.states {
		c.add(st)
	}
	return c
}

// Change is a staged replacement of one node's state.
type Change struct {
	Node  int
	State NodeState
}

// Changes is an ordered set of staged node replacements. Staging the same
// node twice keeps the latest state in its original position.
type Changes struct {
	list []Change
	pos  map[int]int
}

// Stage records that node i should hold st once the round is applied.
// It reports whether the node was newly staged.
func (c *Changes) Stage(i int, st NodeState) bool {
	if c.pos == nil {
		c.pos = make(map[int]int)
	}
	if p, ok := c.pos[i]; ok {
		c.list[p].State = st
		return false
	}
	c.pos[i] = len(c.list)
	c.list = append(c.list, Change{Node: i, State: st})
	return true
}

// Staged reports whether node i already has a pending change.
func (c *Changes) Staged(i int) (NodeState, bool) {
	p, ok := c.pos[i]
	if !ok {
		return NodeState{}, false
	}
	return c.list[p].State, true
}

// Len returns the number of staged nodes.
func (c *Changes) Len() int { return len(c.list) }

// List returns the staged changes in staging order.
func (c *Changes) List() []Change {
	out := make([]Change, len(c.list))
	copy(out, c.list)
	return out
}

// Apply writes every staged change. Nothing is read from the graph while
// applying, so the order of the staged list does not affect the result.
func (g *Graph) Apply(c *Changes) {
	if c == nil {
		return
	}
	for _, ch := range c.list {
		g.state[ch.Node] = ch.State
	}
}
