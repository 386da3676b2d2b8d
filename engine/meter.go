package engine

import (
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/soundtoy/dsp/core"
)

// meter holds the level of the last rendered block.
type meter struct {
	peak core.Param
	rms  core.Param
}

func (m *meter) update(block []float64) {
	if len(block) == 0 {
		return
	}
	m.peak.Store(vecmath.MaxAbs(block))
	m.rms.Store(math.Sqrt(vecmath.DotProduct(block, block) / float64(len(block))))
}

func (m *meter) reset() {
	m.peak.Store(0)
	m.rms.Store(0)
}
