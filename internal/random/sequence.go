package random

// Sequence is a deterministic Source that replays a fixed list of draws.
// Float64 cycles through Draws; IntN scales the next draw; Perm returns the
// identity permutation. Useful in tests that need to force outcomes.
type Sequence struct {
	Draws []float64
	next  int
}

// NewSequence returns a Sequence replaying draws.
func NewSequence(draws ...float64) *Sequence {
	return &Sequence{Draws: draws}
}

// Float64 returns the next draw, or 0.5 when no draws were supplied.
func (s *Sequence) Float64() float64 {
	if len(s.Draws) == 0 {
		return 0.5
	}
	v := s.Draws[s.next%len(s.Draws)]
	s.next++
	return v
}

// IntN maps the next draw onto [0, n).
func (s *Sequence) IntN(n int) int {
	if n <= 0 {
		panic("random: IntN called with non-positive n")
	}
	i := int(s.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Perm returns [0, 1, ..., n-1].
func (s *Sequence) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// Used reports how many Float64 draws have been consumed.
func (s *Sequence) Used() int { return s.next }
