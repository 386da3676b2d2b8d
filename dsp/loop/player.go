package loop

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"
	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/interp"
)

const (
	// MinPitchCents is the lowest pitch shift.
	MinPitchCents = -2400.0
	// MaxPitchCents is the highest pitch shift.
	MaxPitchCents = 2400.0
	// MinSpeedRatio is the slowest time-stretch ratio.
	MinSpeedRatio = 0.25
	// MaxSpeedRatio is the fastest time-stretch ratio.
	MaxSpeedRatio = 4.0

	defaultVolume     = 1.0
	defaultGrainTime  = 0.0464
	minGrainSize      = 64
	maxGrainSize      = 1 << 16
	defaultSpeedRatio = 1.0
)

// PlayerOption mutates player construction parameters.
type PlayerOption func(*playerConfig) error

type playerConfig struct {
	grainSize int
	volume    float64
}

// WithGrainSize sets the overlap-add grain length in samples. It must be
// even.
func WithGrainSize(samples int) PlayerOption {
	return func(cfg *playerConfig) error {
		if samples < minGrainSize || samples > maxGrainSize || samples%2 != 0 {
			return fmt.Errorf("loop grain size must be an even value in [%d, %d]: %d",
				minGrainSize, maxGrainSize, samples)
		}
		cfg.grainSize = samples

		return nil
	}
}

// WithVolume sets the initial volume in [0, 1].
func WithVolume(volume float64) PlayerOption {
	return func(cfg *playerConfig) error {
		if volume < 0 || volume > 1 || math.IsNaN(volume) {
			return fmt.Errorf("loop volume must be in [0, 1]: %f", volume)
		}
		cfg.volume = volume

		return nil
	}
}

type grain struct {
	pos float64
	age int
}

// Player loops a [Buffer] with independent pitch and speed.
//
// The playhead advances by the speed ratio per output sample. Two grains
// with periodic Hann windows at 50 % overlap read the buffer from where the
// playhead was at their birth, advancing by the pitch ratio. With pitch 0
// cents and speed 1 the buffer is reproduced sample for sample.
//
// Control methods may run concurrently with ProcessTo. ProcessTo itself must
// be called from a single goroutine.
type Player struct {
	sampleRate float64

	buffer  atomic.Pointer[Buffer]
	volume  core.Param
	cents   core.Param
	ratio   core.Param
	speed   core.Param
	playing atomic.Bool
	rewind  atomic.Bool

	// Render state.
	current  *Buffer
	playhead float64
	window   []float64
	hop      int
	phase    int
	next     int
	grains   [2]grain
}

// NewPlayer returns a stopped player with no buffer.
func NewPlayer(sampleRate float64, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("loop sample rate must be > 0: %f", sampleRate)
	}

	cfg := playerConfig{
		grainSize: defaultGrainSize(sampleRate),
		volume:    defaultVolume,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	p := &Player{
		sampleRate: sampleRate,
		window:     hannPeriodic(cfg.grainSize),
		hop:        cfg.grainSize / 2,
	}
	p.volume.Store(cfg.volume)
	p.ratio.Store(1)
	p.speed.Store(defaultSpeedRatio)
	p.rewind.Store(true)

	return p, nil
}

func defaultGrainSize(sampleRate float64) int {
	n := int(math.Round(defaultGrainTime*sampleRate/2)) * 2

	return min(max(n, minGrainSize), maxGrainSize)
}

func hannPeriodic(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}

	return w
}

// SampleRate returns the render sample rate in Hz.
func (p *Player) SampleRate() float64 { return p.sampleRate }

// GrainSize returns the overlap-add grain length in samples.
func (p *Player) GrainSize() int { return len(p.window) }

// SetVolume sets the output gain, clamped to [0, 1].
func (p *Player) SetVolume(volume float64) {
	p.volume.Store(core.ClampOr(volume, 0, 1, defaultVolume))
}

// Volume returns the output gain.
func (p *Player) Volume() float64 { return p.volume.Load() }

// SetPitchCents sets the pitch shift, clamped to [-2400, 2400] cents.
func (p *Player) SetPitchCents(cents float64) {
	cents = core.ClampOr(cents, MinPitchCents, MaxPitchCents, 0)
	p.cents.Store(cents)
	p.ratio.Store(core.CentsToRatio(cents))
}

// PitchCents returns the pitch shift in cents.
func (p *Player) PitchCents() float64 { return p.cents.Load() }

// SetSpeedRatio sets the time-stretch ratio, clamped to [0.25, 4].
func (p *Player) SetSpeedRatio(speed float64) {
	p.speed.Store(core.ClampOr(speed, MinSpeedRatio, MaxSpeedRatio, defaultSpeedRatio))
}

// SpeedRatio returns the time-stretch ratio.
func (p *Player) SpeedRatio() float64 { return p.speed.Load() }

// Play starts playback. It is a no-op while playing.
func (p *Player) Play() { p.playing.Store(true) }

// Stop stops playback. The next Play starts from the loop head.
func (p *Player) Stop() {
	p.playing.Store(false)
	p.rewind.Store(true)
}

// Playing reports whether the player is running.
func (p *Player) Playing() bool { return p.playing.Load() }

// LoadBuffer swaps the loop buffer. The render side picks it up at its next
// block and restarts from the head. A nil buffer silences the player.
func (p *Player) LoadBuffer(b *Buffer) { p.buffer.Store(b) }

// Buffer returns the current loop buffer, or nil.
func (p *Player) Buffer() *Buffer { return p.buffer.Load() }

// ProcessTo renders len(dst) samples into dst, overwriting it.
func (p *Player) ProcessTo(dst []float64) {
	b := p.buffer.Load()
	if b != p.current {
		p.current = b
		p.restart()
	}
	if p.rewind.CompareAndSwap(true, false) {
		p.restart()
	}

	if b == nil || !p.playing.Load() {
		clear(dst)
		return
	}

	data := b.data
	n := float64(len(data))
	ratio := p.ratio.Load()
	speed := p.speed.Load()
	direct := ratio == 1 && speed == 1

	for i := range dst {
		if p.phase == 0 {
			p.grains[p.next] = grain{pos: p.playhead}
			p.next ^= 1
		}

		var out float64
		if direct {
			out = interp.HermiteRing(data, p.playhead)
		}
		for k := range p.grains {
			g := &p.grains[k]
			if !direct {
				out += p.window[g.age] * interp.HermiteRing(data, g.pos)
			}
			g.age++
			g.pos += ratio
			for g.pos >= n {
				g.pos -= n
			}
		}
		dst[i] = out

		p.playhead += speed
		for p.playhead >= n {
			p.playhead -= n
		}

		p.phase++
		if p.phase == p.hop {
			p.phase = 0
		}
	}

	vecmath.ScaleBlockInPlace(dst, p.volume.Load())
}

// restart moves the playhead to the loop head. The grain in flight is
// primed at half its life so the window sum is one from the first sample.
func (p *Player) restart() {
	p.playhead = 0
	p.phase = 0
	p.next = 0
	p.grains[0] = grain{}
	p.grains[1] = grain{pos: 0, age: p.hop}
}
