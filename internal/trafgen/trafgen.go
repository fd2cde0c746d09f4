// Package trafgen implements the stochastic traffic generator: per-flow
// request size, response size, and inter-packet gap draws, bounded by the
// flow's configured block size limits. It is a direct port of the
// calculate()/next_*_size() dispatch in the original daemon's trafgen.c,
// built on top of internal/fgmath for the underlying distributions.
package trafgen

import "github.com/flowgrind/flowgrind/internal/fgmath"

// maxRunsPerDistribution bounds how many times next_request_size retries a
// draw that falls outside [minBlockSize, maxBlockSize] before clamping,
// matching MAX_RUNS_PER_DISTRIBUTION in trafgen.c.
const maxRunsPerDistribution = 10

// Generator draws request sizes, response sizes, and inter-packet gaps for
// one flow direction. Each flow owns one Generator per direction that needs
// stochastic traffic (typically one for writes).
type Generator struct {
	src *fgmath.Source

	RequestSize  fgmath.Spec
	ResponseSize fgmath.Spec
	InterGap     fgmath.Spec

	// MinBlockSize and MaxBlockSize bound request sizes; MaxBlockSize also
	// bounds response sizes. MinBlockSize equals the wire header size.
	MinBlockSize int
	MaxBlockSize int

	// WriteRate, if non-zero, bypasses InterGap entirely: gap is computed
	// as MaxBlockSize/WriteRate, in bytes/second.
	WriteRate float64
}

// NewGenerator creates a Generator drawing from src (owned by the caller's
// flow; not shared across flows or goroutines).
func NewGenerator(src *fgmath.Source, minBlockSize, maxBlockSize int) *Generator {
	return &Generator{
		src:          src,
		RequestSize:  fgmath.Spec{Dist: fgmath.Constant, Param1: float64(maxBlockSize)},
		ResponseSize: fgmath.Spec{Dist: fgmath.Constant, Param1: 0},
		InterGap:     fgmath.Spec{Dist: fgmath.Constant, Param1: 0},
		MinBlockSize: minBlockSize,
		MaxBlockSize: maxBlockSize,
	}
}

// NextRequestSize draws the size of the next request block, in
// [MinBlockSize, MaxBlockSize]. It retries a draw that falls outside that
// range up to maxRunsPerDistribution times; a draw that still falls outside
// range after that many attempts is clamped rather than retried forever.
func (g *Generator) NextRequestSize() int {
	for attempt := 0; attempt < maxRunsPerDistribution; attempt++ {
		v := int(g.src.Sample(g.RequestSize))
		if v >= g.MinBlockSize && v <= g.MaxBlockSize {
			return v
		}
	}
	v := int(g.src.Sample(g.RequestSize))
	return clamp(v, g.MinBlockSize, g.MaxBlockSize)
}

// NextResponseSize draws the size of the response requested for the next
// request block. Zero means no response is expected. Unlike
// NextRequestSize, there is no retry: a single draw is clamped directly.
func (g *Generator) NextResponseSize() int {
	v := int(g.src.Sample(g.ResponseSize))
	if v == 0 {
		return 0
	}
	return clamp(v, g.MinBlockSize, g.MaxBlockSize)
}

// NextInterpacketGap draws the delay, in seconds, before the next write
// block may begin. If WriteRate is set, the stochastic model is bypassed
// entirely and the gap is computed from the configured block size and
// rate.
func (g *Generator) NextInterpacketGap() float64 {
	if g.WriteRate > 0 {
		return float64(g.MaxBlockSize) / g.WriteRate
	}
	v := g.src.Sample(g.InterGap)
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
