// Package fgmath implements the per-flow random distributions used by the
// traffic generator. Each flow owns its own source of randomness; there is
// no process-wide PRNG state, matching the per-goroutine rand.Rand pattern
// the teacher uses for synthetic load generation.
package fgmath

import (
	"math"
	"math/rand/v2"
)

// Dist identifies a distribution family. The zero value is Constant.
type Dist int

const (
	Constant Dist = iota
	Uniform
	Exponential
	Normal
	Lognormal
	Pareto
	Weibull
	Bernoulli
	ChiSquared
)

// Spec fully describes one distribution draw: its family and up to two
// parameters, whose meaning depends on the family (see each Sample* doc).
type Spec struct {
	Dist   Dist
	Param1 float64
	Param2 float64
}

// Source is a per-flow random number generator. It must not be shared
// between flows or goroutines; callers create one per flow at admission
// time.
type Source struct {
	rng *rand.Rand
}

// NewSource creates a Source seeded from seed. A seed of 0 draws fresh
// entropy from the runtime so repeated runs do not collide.
func NewSource(seed uint64) *Source {
	if seed == 0 {
		seed = rand.Uint64()
	}
	// Derive two 64-bit streams from one seed, as math/rand/v2's PCG
	// generator wants two seed words rather than one.
	return &Source{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample draws one value from the distribution described by s.
func (src *Source) Sample(s Spec) float64 {
	switch s.Dist {
	case Constant:
		return s.Param1
	case Uniform:
		return src.uniform(s.Param1, s.Param2)
	case Exponential:
		return src.exponential(s.Param1)
	case Normal:
		return src.normal(s.Param1, s.Param2)
	case Lognormal:
		return src.lognormal(s.Param1, s.Param2)
	case Pareto:
		return src.pareto(s.Param1, s.Param2)
	case Weibull:
		return src.weibull(s.Param1, s.Param2)
	case Bernoulli:
		return src.bernoulli(s.Param1)
	case ChiSquared:
		return src.chiSquared(s.Param1)
	default:
		return s.Param1
	}
}

// uniform draws from [min, max).
func (src *Source) uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + src.rng.Float64()*(max-min)
}

// exponential draws from an exponential distribution with the given mean,
// via inverse-CDF sampling.
func (src *Source) exponential(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	u := src.rng.Float64()
	for u == 0 {
		u = src.rng.Float64()
	}
	return -mean * math.Log(u)
}

// normal draws from N(mu, sigma^2) using the Box-Muller transform.
//
// The non-GSL fallback in the original C implementation computes a
// probability density at a fixed point instead of sampling a value, which
// is a bug: this package samples correctly instead of reproducing it.
func (src *Source) normal(mu, sigma float64) float64 {
	u1 := src.rng.Float64()
	for u1 == 0 {
		u1 = src.rng.Float64()
	}
	u2 := src.rng.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mu + sigma*z
}

// lognormal draws from a log-normal distribution with underlying normal
// parameters (zeta, sigma).
func (src *Source) lognormal(zeta, sigma float64) float64 {
	return math.Exp(src.normal(zeta, sigma))
}

// pareto draws from a Pareto distribution with shape k and scale xMin, via
// inverse-CDF sampling.
func (src *Source) pareto(k, xMin float64) float64 {
	if k <= 0 {
		return xMin
	}
	u := src.rng.Float64()
	for u == 0 {
		u = src.rng.Float64()
	}
	return xMin / math.Pow(u, 1.0/k)
}

// weibull draws from a Weibull distribution with shape alpha and scale
// beta, via inverse-CDF sampling.
func (src *Source) weibull(alpha, beta float64) float64 {
	if alpha <= 0 {
		alpha = 1
	}
	u := src.rng.Float64()
	for u == 0 {
		u = src.rng.Float64()
	}
	return beta * math.Pow(-math.Log(u), 1.0/alpha)
}

// bernoulli returns 1 with probability p, else 0.
func (src *Source) bernoulli(p float64) float64 {
	if src.rng.Float64() < p {
		return 1
	}
	return 0
}

// chiSquared draws from a chi-squared distribution with k degrees of
// freedom, by summing k squared standard normal draws.
func (src *Source) chiSquared(k float64) float64 {
	n := int(k)
	if n < 1 {
		n = 1
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		z := src.normal(0, 1)
		sum += z * z
	}
	return sum
}
