package signal

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/soundtoy/dsp/core"
)

// Color selects the spectral shape of a [Noise] source.
type Color int

const (
	// White is uniform noise in [-1, 1].
	White Color = iota
	// Pink is white noise through a -3 dB/octave filter.
	Pink
	// Brown is white noise through a leaky integrator (-6 dB/octave).
	Brown
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Pink:
		return "pink"
	case Brown:
		return "brown"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

const (
	brownLeak   = 1.02
	brownStep   = 0.02
	brownScale  = 3.5
	pinkScale   = 0.11
	minAmpl     = 0
	maxAmpl     = 1
	defaultAmpl = 0
)

// Noise is a streaming colored noise generator with a live amplitude.
//
// The amplitude may be changed from any goroutine while another goroutine
// renders. Rendering itself is single-threaded and does not allocate.
type Noise struct {
	color     Color
	amplitude core.Param
	rng       *rand.Rand

	brown float64
	pink  [7]float64
}

// NewNoise returns a noise source of the given color seeded with seed.
// The amplitude starts at 0.
func NewNoise(color Color, seed int64) (*Noise, error) {
	if color < White || color > Brown {
		return nil, fmt.Errorf("noise color must be white, pink or brown: %d", int(color))
	}

	n := &Noise{
		color: color,
		rng:   rand.New(rand.NewSource(seed)),
	}
	n.amplitude.Store(defaultAmpl)

	return n, nil
}

// Color returns the spectral shape of the source.
func (n *Noise) Color() Color { return n.color }

// SetAmplitude sets the output amplitude, clamped to [0, 1].
func (n *Noise) SetAmplitude(amplitude float64) {
	n.amplitude.Store(core.ClampOr(amplitude, minAmpl, maxAmpl, defaultAmpl))
}

// Amplitude returns the current output amplitude.
func (n *Noise) Amplitude() float64 {
	return n.amplitude.Load()
}

// Reset clears the filter state. The random sequence continues.
func (n *Noise) Reset() {
	n.brown = 0
	n.pink = [7]float64{}
}

// ProcessTo writes len(dst) noise samples scaled by the current amplitude.
//
// The generator state advances even at amplitude 0, so raising a slider
// mid-stream does not restart the integrators from silence.
func (n *Noise) ProcessTo(dst []float64) {
	a := n.amplitude.Load()

	switch n.color {
	case Brown:
		for i := range dst {
			dst[i] = a * n.nextBrown()
		}
	case Pink:
		for i := range dst {
			dst[i] = a * n.nextPink()
		}
	default:
		for i := range dst {
			dst[i] = a * n.white()
		}
	}
}

func (n *Noise) white() float64 {
	return n.rng.Float64()*2 - 1
}

func (n *Noise) nextBrown() float64 {
	n.brown = (n.brown + brownStep*n.white()) / brownLeak

	return n.brown * brownScale
}

// nextPink is Paul Kellet's refined pink filter.
func (n *Noise) nextPink() float64 {
	w := n.white()
	b := &n.pink

	b[0] = 0.99886*b[0] + w*0.0555179
	b[1] = 0.99332*b[1] + w*0.0750759
	b[2] = 0.96900*b[2] + w*0.1538520
	b[3] = 0.86650*b[3] + w*0.3104856
	b[4] = 0.55000*b[4] + w*0.5329522
	b[5] = -0.7616*b[5] - w*0.0168980
	out := b[0] + b[1] + b[2] + b[3] + b[4] + b[5] + b[6] + w*0.5362
	b[6] = w * 0.115926

	return out * pinkScale
}
