package engine

import (
	"github.com/nvandessel/contagion/internal/graph"
)

// RoundStats is the collected outcome of one round. Round 0 describes the
// seeded state before any propagation.
type RoundStats struct {
	Round  int          `json:"round"`
	Events Events       `json:"events"`
	Totals graph.Counts `json:"totals"`
}

// Collector accumulates per-round statistics in round order.
type Collector struct {
	rounds []RoundStats
}

// Add appends the stats of the next round.
func (c *Collector) Add(s RoundStats) {
	c.rounds = append(c.rounds, s)
}

// Len returns the number of collected rounds, including round 0.
func (c *Collector) Len() int { return len(c.rounds) }

// Record returns the new-event count per round; index 0 is the seed count.
func (c *Collector) Record() []int {
	out := make([]int, len(c.rounds))
	for i, r := range c.rounds {
		out[i] = r.Events.New
	}
	return out
}

// Rounds returns a copy of the collected stats.
func (c *Collector) Rounds() []RoundStats {
	out := make([]RoundStats, len(c.rounds))
	copy(out, c.rounds)
	return out
}

// Cumulative returns the running total of new events per round.
func (c *Collector) Cumulative() []int {
	out := make([]int, len(c.rounds))
	sum := 0
	for i, r := range c.rounds {
		sum += r.Events.New
		out[i] = sum
	}
	return out
}

// Peak returns the round with the most new events and that count. Ties go to
// the earliest round.
func (c *Collector) Peak() (round, count int) {
	for _, r := range c.rounds {
		if r.Events.New > count {
			round, count = r.Round, r.Events.New
		}
	}
	return round, count
}
