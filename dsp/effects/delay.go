package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/delay"
)

const (
	defaultVariableDelayTime     = 0.73
	defaultVariableDelayMaxTime  = 5.0
	defaultVariableDelayFeedback = 0.0
	minVariableDelayTime         = 0.001
	variableDelaySmoothingTime   = 0.05
)

// VariableDelayOption mutates construction-time parameters.
type VariableDelayOption func(*variableDelayConfig) error

type variableDelayConfig struct {
	time     float64
	maxTime  float64
	feedback float64
}

// WithVariableDelayMaxTime sets the longest delay the buffer can hold.
func WithVariableDelayMaxTime(seconds float64) VariableDelayOption {
	return func(cfg *variableDelayConfig) error {
		if seconds < minVariableDelayTime || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return fmt.Errorf("delay maximum time must be >= %g: %f", minVariableDelayTime, seconds)
		}
		cfg.maxTime = seconds

		return nil
	}
}

// WithVariableDelayTime sets the initial delay time in seconds.
func WithVariableDelayTime(seconds float64) VariableDelayOption {
	return func(cfg *variableDelayConfig) error {
		cfg.time = seconds

		return nil
	}
}

// WithVariableDelayFeedback sets the initial feedback in [0, 1].
func WithVariableDelayFeedback(feedback float64) VariableDelayOption {
	return func(cfg *variableDelayConfig) error {
		if err := checkUnit("delay feedback", feedback); err != nil {
			return err
		}
		cfg.feedback = feedback

		return nil
	}
}

// DelayMixGains returns the wet and dry gains of the delay recombine,
// wet = mix and dry = |mix - 1|.
func DelayMixGains(mix float64) (wet, dry float64) {
	return mix, math.Abs(mix - 1)
}

// VariableDelay is a feedback delay whose time can move while it runs. The
// time glides toward its target with a one-pole smoother, giving the
// tape-like pitch bend of a moving read head. Its output is the delayed
// signal only; the caller mixes dry and wet.
type VariableDelay struct {
	sampleRate float64
	maxTime    float64
	time       float64
	feedback   float64

	line          *delay.Line
	targetSamples float64
	delaySamples  float64
	smoothCoeff   float64
}

// NewVariableDelay creates a variable delay.
func NewVariableDelay(sampleRate float64, opts ...VariableDelayOption) (*VariableDelay, error) {
	if err := checkSampleRate("delay", sampleRate); err != nil {
		return nil, err
	}

	cfg := variableDelayConfig{
		time:     defaultVariableDelayTime,
		maxTime:  defaultVariableDelayMaxTime,
		feedback: defaultVariableDelayFeedback,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	line, err := delay.NewForDuration(cfg.maxTime, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("delay line: %w", err)
	}

	d := &VariableDelay{
		sampleRate:  sampleRate,
		maxTime:     cfg.maxTime,
		feedback:    cfg.feedback,
		line:        line,
		smoothCoeff: 1 - math.Exp(-1/(variableDelaySmoothingTime*sampleRate)),
	}
	if err := d.SetTime(cfg.time); err != nil {
		return nil, err
	}
	d.delaySamples = d.targetSamples

	return d, nil
}

// SetTime sets the target delay time in seconds, [0.001, MaxTime].
func (d *VariableDelay) SetTime(seconds float64) error {
	if seconds < minVariableDelayTime || seconds > d.maxTime || math.IsNaN(seconds) {
		return fmt.Errorf("delay time must be in [%g, %g]: %f", minVariableDelayTime, d.maxTime, seconds)
	}
	d.time = seconds
	d.targetSamples = seconds * d.sampleRate

	return nil
}

// SetFeedback sets the feedback amount in [0, 1].
func (d *VariableDelay) SetFeedback(feedback float64) error {
	if err := checkUnit("delay feedback", feedback); err != nil {
		return err
	}
	d.feedback = feedback

	return nil
}

// Reset clears the delay buffer and snaps the read head to the target time.
func (d *VariableDelay) Reset() {
	d.line.Reset()
	d.delaySamples = d.targetSamples
}

// ProcessSample writes input plus feedback and returns the delayed sample.
func (d *VariableDelay) ProcessSample(input float64) float64 {
	d.delaySamples += (d.targetSamples - d.delaySamples) * d.smoothCoeff
	wet := d.line.ReadFractional(d.delaySamples)
	d.line.Write(core.FlushDenormals(input + wet*d.feedback))

	return wet
}

// ProcessTo writes the wet signal for src into dst. dst and src may alias.
func (d *VariableDelay) ProcessTo(dst, src []float64) {
	for i, x := range src {
		dst[i] = d.ProcessSample(x)
	}
}

// SampleRate returns the sample rate in Hz.
func (d *VariableDelay) SampleRate() float64 { return d.sampleRate }

// Time returns the target delay time in seconds.
func (d *VariableDelay) Time() float64 { return d.time }

// MaxTime returns the buffer capacity in seconds.
func (d *VariableDelay) MaxTime() float64 { return d.maxTime }

// Feedback returns the feedback amount.
func (d *VariableDelay) Feedback() float64 { return d.feedback }
