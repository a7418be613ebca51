// Package bandit implements a Thompson-sampling multi-armed bandit with
// reward decay, used by the search loop to choose between generating a
// fresh predicate and mutating the current best one.
package bandit

import (
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidReward is returned when ReceiveReward is called with a value
// other than 0 or 1.
var ErrInvalidReward = fmt.Errorf("bandit: reward must be 0 or 1")

// DefaultDecay is the decay factor applied to both pseudo-counts on
// every reward, per spec default d = 0.95.
const DefaultDecay = 0.95

// Arm is a Beta-Bernoulli Thompson-sampling arm with exponential decay on
// the posterior pseudo-counts.
type Arm struct {
	A, B  float64
	Decay float64
	rng   *rand.Rand
}

// NewArm creates an arm with zeroed pseudo-counts and the given decay. If
// rng is nil, the arm gets its own source, seeded from the process-global
// one.
func NewArm(decay float64, rng *rand.Rand) *Arm {
	if decay <= 0 || decay >= 1 {
		decay = DefaultDecay
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Arm{Decay: decay, rng: rng}
}

// Sample draws from Beta(A+1, B+1).
func (a *Arm) Sample() float64 {
	return sampleBeta(a.A+1, a.B+1, a.rng)
}

// ReceiveReward updates the arm's pseudo-counts for a binary reward:
// both counts are multiplied by Decay, then the count matching r gains 1.
// r must be 0 or 1.
func (a *Arm) ReceiveReward(r int) error {
	switch r {
	case 0:
		a.A = a.Decay * a.A
		a.B = 1 + a.Decay*a.B
	case 1:
		a.A = 1 + a.Decay*a.A
		a.B = a.Decay * a.B
	default:
		return ErrInvalidReward
	}
	return nil
}

// sampleBeta draws from Beta(alpha, beta) via two independent Gamma draws:
// X ~ Gamma(alpha,1), Y ~ Gamma(beta,1), Beta = X/(X+Y). No example repo in
// the corpus ships a statistical distribution sampler, so this is the one
// place the core reaches past the standard library's math/rand into a
// hand-rolled Marsaglia-Tsang Gamma sampler (documented in DESIGN.md).
func sampleBeta(alpha, beta float64, rng *rand.Rand) float64 {
	x := sampleGamma(alpha, rng)
	y := sampleGamma(beta, rng)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using the Marsaglia-Tsang method
// for shape >= 1, boosted per Ahrens-Dieter for 0 < shape < 1.
func sampleGamma(shape float64, rng *rand.Rand) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(shape+1, rng) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
