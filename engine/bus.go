package engine

import (
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/loop"
)

// SourceHandle identifies a pre-mix bus slot.
type SourceHandle int

// source renders one bus input at its own gain.
type source interface {
	ProcessTo(dst []float64)
}

// bus sums a fixed list of sources. The slot list is built once; inputs
// that come and go are represented by slots that render silence.
type bus struct {
	slots   []source
	scratch []float64
}

func newBus(maxBlock int, slots ...source) *bus {
	return &bus{
		slots:   slots,
		scratch: make([]float64, maxBlock),
	}
}

// add appends a slot. Only called during construction.
func (b *bus) add(s source) SourceHandle {
	b.slots = append(b.slots, s)

	return SourceHandle(len(b.slots) - 1)
}

// ProcessTo writes the sum of every slot into dst.
func (b *bus) ProcessTo(dst []float64) {
	core.Zero(dst)
	for len(dst) > 0 {
		n := min(len(dst), len(b.scratch))
		tmp := b.scratch[:n]
		for _, s := range b.slots {
			s.ProcessTo(tmp)
			vecmath.AddBlockInPlace(dst[:n], tmp)
		}
		dst = dst[n:]
	}
}

// userSlot is the bus input for the user loop. It is silent until a player
// is installed.
type userSlot struct {
	player atomic.Pointer[loop.Player]
}

func (u *userSlot) ProcessTo(dst []float64) {
	p := u.player.Load()
	if p == nil {
		core.Zero(dst)
		return
	}
	p.ProcessTo(dst)
}
