package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/soundtoy/dsp/interp"
)

const (
	// MinVarispeedRate is the slowest playback rate.
	MinVarispeedRate = 0.25
	// MaxVarispeedRate is the fastest playback rate.
	MaxVarispeedRate = 4.0

	varispeedHistory = 4
)

// SampleSource renders the signal a [Varispeed] pulls from.
type SampleSource interface {
	ProcessTo(dst []float64)
}

// Varispeed changes playback rate and pitch together, like a tape machine.
// For every N output samples it pulls about rate*N samples from its source
// and resamples them with 4-point Hermite interpolation. At rate 1 the output
// equals the input delayed by three samples.
type Varispeed struct {
	src      SampleSource
	rate     float64
	maxBlock int

	buf  []float64
	frac float64
}

// NewVarispeed creates a varispeed that pulls from src. maxBlock bounds the
// output block length processed in one pass; longer blocks are split.
func NewVarispeed(src SampleSource, maxBlock int) (*Varispeed, error) {
	if src == nil {
		return nil, fmt.Errorf("varispeed source must not be nil")
	}
	if maxBlock <= 0 {
		return nil, fmt.Errorf("varispeed block size must be > 0: %d", maxBlock)
	}

	return &Varispeed{
		src:      src,
		rate:     1,
		maxBlock: maxBlock,
		buf:      make([]float64, MaxPull(maxBlock)+varispeedHistory),
	}, nil
}

// MaxPull returns the most samples a varispeed with the given block size
// requests from its source in one pass.
func MaxPull(maxBlock int) int {
	return int(math.Ceil(MaxVarispeedRate*float64(maxBlock))) + 1
}

// SetRate sets the playback rate in [0.25, 4].
func (v *Varispeed) SetRate(rate float64) error {
	if rate < MinVarispeedRate || rate > MaxVarispeedRate || math.IsNaN(rate) {
		return fmt.Errorf("varispeed rate must be in [%g, %g]: %f", MinVarispeedRate, MaxVarispeedRate, rate)
	}
	v.rate = rate

	return nil
}

// Rate returns the playback rate.
func (v *Varispeed) Rate() float64 { return v.rate }

// Reset clears the interpolation history.
func (v *Varispeed) Reset() {
	clear(v.buf)
	v.frac = 0
}

// ProcessTo fills dst with resampled output.
func (v *Varispeed) ProcessTo(dst []float64) {
	for len(dst) > 0 {
		n := min(len(dst), v.maxBlock)
		v.processBlock(dst[:n])
		dst = dst[n:]
	}
}

func (v *Varispeed) processBlock(dst []float64) {
	rate := v.rate
	n := len(dst)

	next := v.frac + float64(n)*rate
	consumed := int(next)

	// buf[0:4] carries history; new samples follow.
	v.src.ProcessTo(v.buf[varispeedHistory : varispeedHistory+consumed])

	pos := v.frac
	for k := range dst {
		i := int(pos)
		t := pos - float64(i)
		dst[k] = interp.Hermite4(t, v.buf[i], v.buf[i+1], v.buf[i+2], v.buf[i+3])
		pos += rate
	}

	copy(v.buf[:varispeedHistory], v.buf[consumed:consumed+varispeedHistory])
	v.frac = next - float64(consumed)
}
