package core

import (
	"math"
	"sync/atomic"
)

// Param is a float64 shared between one control-thread writer and the
// render thread. Loads and stores are single atomic word operations, so the
// render side never blocks and never sees a torn value.
//
// The zero value holds 0.
type Param struct {
	bits atomic.Uint64
}

// NewParam returns a Param holding v.
func NewParam(v float64) *Param {
	p := &Param{}
	p.Store(v)
	return p
}

// Load returns the latest stored value.
func (p *Param) Load() float64 {
	return math.Float64frombits(p.bits.Load())
}

// Store publishes v.
func (p *Param) Store(v float64) {
	p.bits.Store(math.Float64bits(v))
}
