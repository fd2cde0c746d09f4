package trafgen

import (
	"testing"

	"github.com/flowgrind/flowgrind/internal/fgmath"
	"github.com/stretchr/testify/assert"
)

func TestNextRequestSizeDefaultsToMaxBlockSize(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	for i := 0; i < 20; i++ {
		assert.Equal(t, 8192, g.NextRequestSize())
	}
}

func TestNextRequestSizeClampsOutOfRangeDraws(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	g.RequestSize = fgmath.Spec{Dist: fgmath.Constant, Param1: 999999}
	assert.Equal(t, 8192, g.NextRequestSize())

	g.RequestSize = fgmath.Spec{Dist: fgmath.Constant, Param1: 1}
	assert.Equal(t, 24, g.NextRequestSize())
}

func TestNextRequestSizeWithinRangeNoRetryNeeded(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	g.RequestSize = fgmath.Spec{Dist: fgmath.Constant, Param1: 4096}
	assert.Equal(t, 4096, g.NextRequestSize())
}

func TestNextResponseSizeZeroMeansNoResponse(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	assert.Equal(t, 0, g.NextResponseSize())
}

func TestNextResponseSizeClampsWithoutRetry(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	g.ResponseSize = fgmath.Spec{Dist: fgmath.Constant, Param1: 999999}
	assert.Equal(t, 8192, g.NextResponseSize())

	g.ResponseSize = fgmath.Spec{Dist: fgmath.Constant, Param1: 1}
	assert.Equal(t, 24, g.NextResponseSize())
}

func TestNextInterpacketGapDefaultZero(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	assert.Equal(t, 0.0, g.NextInterpacketGap())
}

func TestNextInterpacketGapBypassedByWriteRate(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	g.InterGap = fgmath.Spec{Dist: fgmath.Constant, Param1: 5}
	g.WriteRate = 4096
	assert.Equal(t, 2.0, g.NextInterpacketGap())
}

func TestNextInterpacketGapNegativeDrawClampedToZero(t *testing.T) {
	g := NewGenerator(fgmath.NewSource(1), 24, 8192)
	g.InterGap = fgmath.Spec{Dist: fgmath.Constant, Param1: -1}
	assert.Equal(t, 0.0, g.NextInterpacketGap())
}
