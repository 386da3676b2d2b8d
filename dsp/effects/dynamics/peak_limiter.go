package dynamics

import (
	"fmt"
	"math"

	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/delay"
)

const (
	defaultPeakLimiterCeilingDB   = -0.1
	defaultPeakLimiterLookaheadMs = 5.0
	defaultPeakLimiterAttackMs    = 12.0
	defaultPeakLimiterReleaseMs   = 24.0

	minPeakLimiterCeilingDB   = -24.0
	maxPeakLimiterCeilingDB   = 0.0
	maxPeakLimiterLookaheadMs = 50.0
	minPeakLimiterTimeMs      = 0.1
	maxPeakLimiterTimeMs      = 5000.0
)

// PeakLimiterOption mutates construction-time parameters.
type PeakLimiterOption func(*peakLimiterConfig) error

type peakLimiterConfig struct {
	ceilingDB   float64
	lookaheadMs float64
	attackMs    float64
	releaseMs   float64
}

// WithPeakLimiterCeiling sets the output ceiling in dBFS, [-24, 0].
func WithPeakLimiterCeiling(db float64) PeakLimiterOption {
	return func(cfg *peakLimiterConfig) error {
		if db < minPeakLimiterCeilingDB || db > maxPeakLimiterCeilingDB || math.IsNaN(db) {
			return fmt.Errorf("peak limiter ceiling must be in [%g, %g]: %f",
				minPeakLimiterCeilingDB, maxPeakLimiterCeilingDB, db)
		}
		cfg.ceilingDB = db

		return nil
	}
}

// WithPeakLimiterLookahead sets the lookahead in milliseconds, [0, 50].
func WithPeakLimiterLookahead(ms float64) PeakLimiterOption {
	return func(cfg *peakLimiterConfig) error {
		if ms < 0 || ms > maxPeakLimiterLookaheadMs || math.IsNaN(ms) {
			return fmt.Errorf("peak limiter lookahead must be in [0, %g]: %f", maxPeakLimiterLookaheadMs, ms)
		}
		cfg.lookaheadMs = ms

		return nil
	}
}

// WithPeakLimiterAttack sets the gain fall time in milliseconds.
func WithPeakLimiterAttack(ms float64) PeakLimiterOption {
	return func(cfg *peakLimiterConfig) error {
		if err := checkTime("attack", ms); err != nil {
			return err
		}
		cfg.attackMs = ms

		return nil
	}
}

// WithPeakLimiterRelease sets the gain recovery time in milliseconds.
func WithPeakLimiterRelease(ms float64) PeakLimiterOption {
	return func(cfg *peakLimiterConfig) error {
		if err := checkTime("release", ms); err != nil {
			return err
		}
		cfg.releaseMs = ms

		return nil
	}
}

// PeakLimiter is a lookahead brickwall limiter.
type PeakLimiter struct {
	sampleRate float64
	cfg        peakLimiterConfig

	ceiling      float64
	attackCoeff  float64
	releaseCoeff float64

	program   *delay.Line
	lookahead int
	required  []float64
	reqPos    int
	gain      float64
}

// NewPeakLimiter creates a peak limiter.
func NewPeakLimiter(sampleRate float64, opts ...PeakLimiterOption) (*PeakLimiter, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("peak limiter sample rate must be > 0: %f", sampleRate)
	}

	cfg := peakLimiterConfig{
		ceilingDB:   defaultPeakLimiterCeilingDB,
		lookaheadMs: defaultPeakLimiterLookaheadMs,
		attackMs:    defaultPeakLimiterAttackMs,
		releaseMs:   defaultPeakLimiterReleaseMs,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	lookahead := int(math.Round(cfg.lookaheadMs * 0.001 * sampleRate))

	program, err := delay.New(lookahead + 1)
	if err != nil {
		return nil, fmt.Errorf("peak limiter lookahead: %w", err)
	}

	l := &PeakLimiter{
		sampleRate:   sampleRate,
		cfg:          cfg,
		ceiling:      core.DBToLinear(cfg.ceilingDB),
		attackCoeff:  timeCoeff(cfg.attackMs, sampleRate),
		releaseCoeff: timeCoeff(cfg.releaseMs, sampleRate),
		program:      program,
		lookahead:    lookahead,
		required:     make([]float64, lookahead+1),
		gain:         1,
	}
	l.Reset()

	return l, nil
}

// Reset clears the lookahead buffer and releases all gain reduction.
func (l *PeakLimiter) Reset() {
	l.program.Reset()
	for i := range l.required {
		l.required[i] = 1
	}
	l.reqPos = 0
	l.gain = 1
}

// ProcessSample processes one sample. The output lags the input by
// Latency samples.
func (l *PeakLimiter) ProcessSample(input float64) float64 {
	if !core.IsFinite(input) {
		input = 0
	}

	req := 1.0
	if a := math.Abs(input); a > l.ceiling {
		req = l.ceiling / a
	}
	l.required[l.reqPos] = req
	l.reqPos++
	if l.reqPos == len(l.required) {
		l.reqPos = 0
	}

	target := 1.0
	for _, r := range l.required {
		if r < target {
			target = r
		}
	}

	if target < l.gain {
		l.gain += (target - l.gain) * l.attackCoeff
	} else {
		l.gain += (target - l.gain) * l.releaseCoeff
	}

	var out float64
	if l.lookahead == 0 {
		out = input * l.gain
	} else {
		out = l.program.Read(l.lookahead) * l.gain
	}
	l.program.Write(input)

	switch {
	case out > l.ceiling:
		out = l.ceiling
	case out < -l.ceiling:
		out = -l.ceiling
	}

	return out
}

// ProcessInPlace limits buf in place.
func (l *PeakLimiter) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = l.ProcessSample(buf[i])
	}
}

// Latency returns the lookahead delay in samples.
func (l *PeakLimiter) Latency() int { return l.lookahead }

// Ceiling returns the linear output ceiling.
func (l *PeakLimiter) Ceiling() float64 { return l.ceiling }

// GainReductionDB returns the current gain reduction as a positive dB value.
func (l *PeakLimiter) GainReductionDB() float64 {
	return -core.LinearToDB(l.gain)
}

// SampleRate returns the sample rate in Hz.
func (l *PeakLimiter) SampleRate() float64 { return l.sampleRate }

func timeCoeff(ms, sampleRate float64) float64 {
	return 1 - math.Exp(-1/(ms*0.001*sampleRate))
}

func checkTime(name string, ms float64) error {
	if ms < minPeakLimiterTimeMs || ms > maxPeakLimiterTimeMs || math.IsNaN(ms) {
		return fmt.Errorf("peak limiter %s must be in [%g, %g] ms: %f",
			name, minPeakLimiterTimeMs, maxPeakLimiterTimeMs, ms)
	}

	return nil
}
