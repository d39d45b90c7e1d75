package degrade

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Source supplies one pseudo-random sample per call. distuv distributions
// satisfy it directly.
type Source interface {
	Rand() float64
}

// NewNormal returns a standard normal source seeded with seed
func NewNormal(seed uint64) Source {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
}

// UniformInt draws integers uniformly from [Lo, Hi]
type UniformInt struct {
	Lo, Hi int
	rnd    *rand.Rand
}

// NewUniformInt returns a uniform integer source over [lo, hi]; the bounds
// are swapped when given in reverse.
func NewUniformInt(lo, hi int, seed uint64) *UniformInt {
	if lo > hi {
		lo, hi = hi, lo
	}
	return &UniformInt{Lo: lo, Hi: hi, rnd: rand.New(rand.NewSource(seed))}
}

// Rand returns the next integer as a float64
func (u *UniformInt) Rand() float64 {
	return float64(u.Lo + u.rnd.Intn(u.Hi-u.Lo+1))
}
