package effects

import (
	"fmt"
	"math"
)

const (
	defaultBitCrusherBitDepth   = 8.0
	defaultBitCrusherDownsample = 1
	defaultBitCrusherMix        = 1.0
	minBitCrusherBitDepth       = 1.0
	maxBitCrusherBitDepth       = 32.0
	maxBitCrusherDownsample     = 256
)

// BitCrusherOption mutates bit crusher construction parameters.
type BitCrusherOption func(*bitCrusherConfig) error

type bitCrusherConfig struct {
	bitDepth   float64
	downsample int
	mix        float64
}

// WithBitCrusherBitDepth sets the quantization depth in [1, 32] bits.
// Fractional depths are allowed.
func WithBitCrusherBitDepth(bitDepth float64) BitCrusherOption {
	return func(cfg *bitCrusherConfig) error {
		if err := checkBitDepth(bitDepth); err != nil {
			return err
		}
		cfg.bitDepth = bitDepth

		return nil
	}
}

// WithBitCrusherDownsample sets the hold length in [1, 256] samples.
func WithBitCrusherDownsample(factor int) BitCrusherOption {
	return func(cfg *bitCrusherConfig) error {
		if err := checkDownsample(factor); err != nil {
			return err
		}
		cfg.downsample = factor

		return nil
	}
}

// WithBitCrusherMix sets the dry/wet mix in [0, 1].
func WithBitCrusherMix(mix float64) BitCrusherOption {
	return func(cfg *bitCrusherConfig) error {
		if err := checkUnit("bit crusher mix", mix); err != nil {
			return err
		}
		cfg.mix = mix

		return nil
	}
}

// BitCrusher is the decimation stage of [Distortion]. It holds each
// quantized sample for Downsample output samples and blends the result with
// the dry input. At mix 0 the input passes unchanged.
type BitCrusher struct {
	sampleRate float64
	bitDepth   float64
	downsample int
	mix        float64

	levels      float64
	holdCounter int
	holdValue   float64
}

// NewBitCrusher creates a bit crusher with the given sample rate and optional
// configuration overrides.
func NewBitCrusher(sampleRate float64, opts ...BitCrusherOption) (*BitCrusher, error) {
	if err := checkSampleRate("bit crusher", sampleRate); err != nil {
		return nil, err
	}

	cfg := bitCrusherConfig{
		bitDepth:   defaultBitCrusherBitDepth,
		downsample: defaultBitCrusherDownsample,
		mix:        defaultBitCrusherMix,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	bc := &BitCrusher{
		sampleRate: sampleRate,
		bitDepth:   cfg.bitDepth,
		downsample: cfg.downsample,
		mix:        cfg.mix,
	}
	bc.levels = math.Exp2(bc.bitDepth - 1)

	return bc, nil
}

// SetBitDepth sets the quantization depth in [1, 32] bits.
func (bc *BitCrusher) SetBitDepth(bitDepth float64) error {
	if err := checkBitDepth(bitDepth); err != nil {
		return err
	}
	bc.bitDepth = bitDepth
	bc.levels = math.Exp2(bitDepth - 1)

	return nil
}

// SetDownsample sets the hold length in [1, 256] samples.
func (bc *BitCrusher) SetDownsample(factor int) error {
	if err := checkDownsample(factor); err != nil {
		return err
	}
	bc.downsample = factor

	return nil
}

// SetMix sets the dry/wet mix in [0, 1].
func (bc *BitCrusher) SetMix(mix float64) error {
	if err := checkUnit("bit crusher mix", mix); err != nil {
		return err
	}
	bc.mix = mix

	return nil
}

// Reset clears the sample-and-hold state.
func (bc *BitCrusher) Reset() {
	bc.holdCounter = 0
	bc.holdValue = 0
}

// ProcessSample processes one sample.
func (bc *BitCrusher) ProcessSample(input float64) float64 {
	bc.holdCounter++
	if bc.holdCounter >= bc.downsample {
		bc.holdCounter = 0
		bc.holdValue = math.Round(input*bc.levels) / bc.levels
	}

	if bc.mix == 0 {
		return input
	}

	return input*(1-bc.mix) + bc.holdValue*bc.mix
}

// ProcessInPlace applies the bit crusher to buf in place.
func (bc *BitCrusher) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = bc.ProcessSample(buf[i])
	}
}

// SampleRate returns the sample rate in Hz.
func (bc *BitCrusher) SampleRate() float64 { return bc.sampleRate }

// BitDepth returns the quantization bit depth.
func (bc *BitCrusher) BitDepth() float64 { return bc.bitDepth }

// Downsample returns the hold length.
func (bc *BitCrusher) Downsample() int { return bc.downsample }

// Mix returns the dry/wet mix in [0, 1].
func (bc *BitCrusher) Mix() float64 { return bc.mix }

func checkBitDepth(bitDepth float64) error {
	if bitDepth < minBitCrusherBitDepth || bitDepth > maxBitCrusherBitDepth || math.IsNaN(bitDepth) {
		return fmt.Errorf("bit crusher bit depth must be in [%g, %g]: %f",
			minBitCrusherBitDepth, maxBitCrusherBitDepth, bitDepth)
	}

	return nil
}

func checkDownsample(factor int) error {
	if factor < 1 || factor > maxBitCrusherDownsample {
		return fmt.Errorf("bit crusher downsample factor must be in [1, %d]: %d",
			maxBitCrusherDownsample, factor)
	}

	return nil
}
