// Package rng implements the simulation's seeded generator.
//
// The recurrence is the Park–Miller minimal standard LCG:
//
//	seed = seed * 16807 mod 2147483647
//	next = (seed - 1) / 2147483646
//
// so the sequence is reproducible in any language from the seed alone.
package rng

const (
	modulus    = 2147483647
	multiplier = 16807
)

type Rand struct {
	seed int64
}

func New(seed int64) *Rand {
	r := &Rand{}
	r.Reset(seed)
	return r
}

// Reset restarts the sequence. Seeds are reduced into [1, modulus-1]; a seed
// congruent to 0 would lock the generator at 0 and is replaced by 1.
func (r *Rand) Reset(seed int64) {
	s := seed % modulus
	if s < 0 {
		s += modulus
	}
	if s == 0 {
		s = 1
	}
	r.seed = s
}

// Next returns a float in [0, 1).
func (r *Rand) Next() float64 {
	r.seed = r.seed * multiplier % modulus
	return float64(r.seed-1) / (modulus - 1)
}

// Intn returns floor(Next()*n), the index draw used everywhere in the sim.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(r.Next() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// State exposes the raw seed for digests.
func (r *Rand) State() int64 { return r.seed }
