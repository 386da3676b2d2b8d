package resample

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRatio indicates an invalid up/down ratio.
	ErrInvalidRatio = errors.New("resample: invalid ratio")
	// ErrInvalidRate indicates an invalid input/output sample rate.
	ErrInvalidRate = errors.New("resample: invalid sample rate")
)

// Quality controls the anti-aliasing filter length.
type Quality int

const (
	// QualityFast prioritizes lower CPU usage.
	QualityFast Quality = iota
	// QualityBalanced is the default.
	QualityBalanced
	// QualityBest prioritizes stopband attenuation and passband flatness.
	QualityBest
)

func (q Quality) String() string {
	switch q {
	case QualityFast:
		return "fast"
	case QualityBalanced:
		return "balanced"
	case QualityBest:
		return "best"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

type profile struct {
	tapsPerPhase int
	cutoffScale  float64
	kaiserBeta   float64
}

func qualityProfile(q Quality) profile {
	switch q {
	case QualityFast:
		return profile{tapsPerPhase: 16, cutoffScale: 0.88, kaiserBeta: 5.0}
	case QualityBest:
		return profile{tapsPerPhase: 64, cutoffScale: 0.96, kaiserBeta: 9.0}
	default:
		return profile{tapsPerPhase: 32, cutoffScale: 0.92, kaiserBeta: 7.5}
	}
}

const defaultMaxDenominator = 4096

type config struct {
	quality Quality
	maxDen  int
}

// Option configures a [Converter].
type Option func(*config) error

// WithQuality selects the anti-aliasing quality mode.
func WithQuality(q Quality) Option {
	return func(cfg *config) error {
		if q < QualityFast || q > QualityBest {
			return fmt.Errorf("resample quality must be fast, balanced or best: %d", int(q))
		}
		cfg.quality = q

		return nil
	}
}

// WithMaxDenominator caps the denominator used to approximate a rate ratio.
func WithMaxDenominator(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return fmt.Errorf("resample max denominator must be > 0: %d", n)
		}
		cfg.maxDen = n

		return nil
	}
}

func applyOptions(opts []Option) (config, error) {
	cfg := config{quality: QualityBalanced, maxDen: defaultMaxDenominator}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return config{}, err
		}
	}

	return cfg, nil
}

// Converter performs streaming rational sample-rate conversion with a
// polyphase FIR.
type Converter struct {
	up   int
	down int

	quality    Quality
	phases     [][]float64
	maxPhaseLn int
	center     float64

	phase   int
	next    int
	totalIn int
	history []float64
}

// NewRational creates a converter for the ratio up/down.
func NewRational(up, down int, opts ...Option) (*Converter, error) {
	if up <= 0 || down <= 0 {
		return nil, ErrInvalidRatio
	}

	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	g := gcd(up, down)
	up /= g
	down /= g

	phases, maxPhaseLn, center, err := designPolyphase(up, down, qualityProfile(cfg.quality))
	if err != nil {
		return nil, err
	}

	return &Converter{
		up:         up,
		down:       down,
		quality:    cfg.quality,
		phases:     phases,
		maxPhaseLn: maxPhaseLn,
		center:     center,
		history:    make([]float64, 0, max(0, maxPhaseLn-1)),
	}, nil
}

// NewForRates creates a converter from inRate to outRate, approximating the
// rate ratio by a fraction.
func NewForRates(inRate, outRate float64, opts ...Option) (*Converter, error) {
	if !validRate(inRate) || !validRate(outRate) {
		return nil, ErrInvalidRate
	}

	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	up, down := approximateRatio(outRate/inRate, cfg.maxDen)

	return NewRational(up, down, opts...)
}

func validRate(r float64) bool {
	return r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}

// Ratio returns the reduced up/down conversion factors.
func (c *Converter) Ratio() (up, down int) { return c.up, c.down }

// Quality returns the configured quality mode.
func (c *Converter) Quality() Quality { return c.quality }

// Latency returns the filter delay in output samples.
func (c *Converter) Latency() float64 { return c.center / float64(c.down) }

// Reset clears the filter history.
func (c *Converter) Reset() {
	c.phase = 0
	c.next = 0
	c.totalIn = 0
	c.history = c.history[:0]
}

// Process converts one block and keeps the filter state for the next one.
func (c *Converter) Process(input []float64) []float64 {
	if len(input) == 0 {
		return nil
	}

	out := make([]float64, 0, c.outputLen(len(input)))

	work := make([]float64, len(c.history)+len(input))
	copy(work, c.history)
	copy(work[len(c.history):], input)

	base := c.totalIn - len(c.history)
	last := c.totalIn + len(input) - 1

	for c.next <= last {
		var y float64
		for k, h := range c.phases[c.phase] {
			idx := c.next - k
			if idx < base {
				break
			}
			y += h * work[idx-base]
		}
		out = append(out, y)

		c.phase += c.down
		c.next += c.phase / c.up
		c.phase %= c.up
	}

	c.totalIn += len(input)

	keep := min(max(0, c.maxPhaseLn-1), len(work))
	c.history = append(c.history[:0], work[len(work)-keep:]...)

	return out
}

// outputLen counts the samples the next Process call of inputLen samples
// produces.
func (c *Converter) outputLen(inputLen int) int {
	last := c.totalIn + inputLen - 1
	i, phase := c.next, c.phase

	count := 0
	for i <= last {
		count++
		phase += c.down
		i += phase / c.up
		phase %= c.up
	}

	return count
}

// Convert resamples a whole clip from inRate to outRate. The filter delay
// is removed, so the result is time-aligned with the input and holds
// round(len(input)*outRate/inRate) samples. Equal rates return a copy.
func Convert(input []float64, inRate, outRate float64, opts ...Option) ([]float64, error) {
	if !validRate(inRate) || !validRate(outRate) {
		return nil, ErrInvalidRate
	}
	if inRate == outRate {
		return append([]float64(nil), input...), nil
	}
	if len(input) == 0 {
		return nil, nil
	}

	c, err := NewForRates(inRate, outRate, opts...)
	if err != nil {
		return nil, err
	}

	want := int(math.Round(float64(len(input)) * outRate / inRate))
	skip := int(math.Round(c.Latency()))

	// Zero tail flushes the filter so the last input samples come out.
	tail := (skip+1)*c.down/c.up + c.maxPhaseLn + 1
	padded := make([]float64, len(input)+tail)
	copy(padded, input)

	out := c.Process(padded)
	if skip+want > len(out) {
		want = len(out) - skip
	}

	return out[skip : skip+want : skip+want], nil
}
