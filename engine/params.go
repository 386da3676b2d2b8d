package engine

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/loop"
)

// Parameter ranges shared by the control surface and the graph.
const (
	MinCutoff    = 10.0
	MaxCutoff    = 22050.0
	MinResonance = 0.0
	MaxResonance = 40.0
	MinRate      = 0.25
	MaxRate      = 4.0
	MinDelayTime = 0.001
	MaxDelayTime = 5.0
	MaxMixPct    = 100.0
)

// PlaybackState is the engine transport phase.
type PlaybackState int

const (
	// Stopped means the clock is halted and the master gain is 0.
	Stopped PlaybackState = iota
	// Playing means sources run and the gain is at or fading toward 1.
	Playing
	// FadingOut means a stop was requested and the gain is ramping to 0.
	FadingOut
)

func (s PlaybackState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case FadingOut:
		return "fading out"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// FilterPath selects which filter output feeds the delay.
type FilterPath int

const (
	// Lowpass routes the low-pass output.
	Lowpass FilterPath = iota
	// Highpass routes the high-pass output, which is fed from the low-pass.
	Highpass
)

func (p FilterPath) String() string {
	switch p {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	default:
		return fmt.Sprintf("FilterPath(%d)", int(p))
	}
}

// pathGains returns the lowpass and highpass mixer gains. Exactly one is 1.
func pathGains(p FilterPath) (lp, hp float64) {
	if p == Highpass {
		return 0, 1
	}

	return 1, 0
}

// TapeLoopControl holds the live controls of one bundled loop.
type TapeLoopControl struct {
	// Name is the loop file name, for labels. The engine owns it.
	Name       string
	Volume     float64
	PitchCents float64
	Speed      float64
}

// DefaultTapeLoopControl returns a silent loop at natural pitch and speed.
func DefaultTapeLoopControl(name string) TapeLoopControl {
	return TapeLoopControl{Name: name, Volume: 0, PitchCents: 0, Speed: 1}
}

// Clamp returns c with every control in range. NaN becomes the default.
func (c TapeLoopControl) Clamp() TapeLoopControl {
	c.Volume = core.ClampOr(c.Volume, 0, 1, 0)
	c.PitchCents = core.ClampOr(c.PitchCents, loop.MinPitchCents, loop.MaxPitchCents, 0)
	c.Speed = core.ClampOr(c.Speed, loop.MinSpeedRatio, loop.MaxSpeedRatio, 1)

	return c
}

// NoiseParameters sets the noise levels and the user loop controls.
type NoiseParameters struct {
	Brown float64
	Pink  float64
	White float64

	UserVolume     float64
	UserPitchCents float64
	UserSpeed      float64
}

// DefaultNoiseParameters returns silent noise and a neutral user loop.
func DefaultNoiseParameters() NoiseParameters {
	return NoiseParameters{UserSpeed: 1}
}

// Clamp returns p with every field in range. NaN becomes the default.
func (p NoiseParameters) Clamp() NoiseParameters {
	p.Brown = core.ClampOr(p.Brown, 0, 1, 0)
	p.Pink = core.ClampOr(p.Pink, 0, 1, 0)
	p.White = core.ClampOr(p.White, 0, 1, 0)
	p.UserVolume = core.ClampOr(p.UserVolume, 0, 1, 0)
	p.UserPitchCents = core.ClampOr(p.UserPitchCents, loop.MinPitchCents, loop.MaxPitchCents, 0)
	p.UserSpeed = core.ClampOr(p.UserSpeed, loop.MinSpeedRatio, loop.MaxSpeedRatio, 1)

	return p
}

// EffectParameters drives the effect stage.
type EffectParameters struct {
	// DistortionMix is the wet share in percent.
	DistortionMix float64
	// LowpassCutoff and HighpassCutoff are in Hz.
	LowpassCutoff float64
	// LowpassResonance and HighpassResonance are in dB.
	LowpassResonance  float64
	HighpassCutoff    float64
	HighpassResonance float64
	// Rate is the end-of-chain varispeed rate.
	Rate          float64
	DelayFeedback float64
	// DelayTime is in seconds.
	DelayTime float64
	DelayMix  float64
	ReverbMix float64
}

// DefaultEffectParameters returns a transparent chain: open filters, unity
// rate, dry delay and reverb.
func DefaultEffectParameters() EffectParameters {
	return EffectParameters{
		DistortionMix:     0,
		LowpassCutoff:     MaxCutoff,
		LowpassResonance:  0,
		HighpassCutoff:    MinCutoff,
		HighpassResonance: 0,
		Rate:              1,
		DelayFeedback:     0,
		DelayTime:         0.73,
		DelayMix:          0,
		ReverbMix:         0,
	}
}

// Clamp returns p with every field in range. NaN becomes the default.
func (p EffectParameters) Clamp() EffectParameters {
	d := DefaultEffectParameters()
	p.DistortionMix = core.ClampOr(p.DistortionMix, 0, MaxMixPct, d.DistortionMix)
	p.LowpassCutoff = core.ClampOr(p.LowpassCutoff, MinCutoff, MaxCutoff, d.LowpassCutoff)
	p.LowpassResonance = core.ClampOr(p.LowpassResonance, MinResonance, MaxResonance, d.LowpassResonance)
	p.HighpassCutoff = core.ClampOr(p.HighpassCutoff, MinCutoff, MaxCutoff, d.HighpassCutoff)
	p.HighpassResonance = core.ClampOr(p.HighpassResonance, MinResonance, MaxResonance, d.HighpassResonance)
	p.Rate = core.ClampOr(p.Rate, MinRate, MaxRate, d.Rate)
	p.DelayFeedback = core.ClampOr(p.DelayFeedback, 0, 1, d.DelayFeedback)
	p.DelayTime = core.ClampOr(p.DelayTime, MinDelayTime, MaxDelayTime, d.DelayTime)
	p.DelayMix = core.ClampOr(p.DelayMix, 0, 1, d.DelayMix)
	p.ReverbMix = core.ClampOr(p.ReverbMix, 0, 1, d.ReverbMix)

	return p
}

// CutoffToSlider maps a cutoff in Hz to the logarithmic slider position.
func CutoffToSlider(hz float64) float64 {
	return math.Log10(core.ClampOr(hz, MinCutoff, MaxCutoff, MaxCutoff))
}

// SliderToCutoff maps a slider position back to Hz.
func SliderToCutoff(v float64) float64 {
	return core.ClampOr(math.Pow(10, v), MinCutoff, MaxCutoff, MaxCutoff)
}

// DelayTimeToSlider maps a delay time to the square-root slider position,
// which gives short times more travel.
func DelayTimeToSlider(seconds float64) float64 {
	return math.Sqrt(core.ClampOr(seconds, MinDelayTime, MaxDelayTime, 0.73))
}

// SliderToDelayTime maps a slider position back to seconds.
func SliderToDelayTime(v float64) float64 {
	return core.ClampOr(v*v, MinDelayTime, MaxDelayTime, 0.73)
}

// atomicValue publishes an immutable copy of a parameter group.
type atomicValue[T any] struct {
	p atomic.Pointer[T]
}

func (a *atomicValue[T]) Store(v T) { a.p.Store(&v) }

func (a *atomicValue[T]) Load() T {
	if p := a.p.Load(); p != nil {
		return *p
	}
	var zero T

	return zero
}
