package effects

import (
	"fmt"
	"math"
)

const (
	defaultDistortionMix            = 0.5
	defaultDistortionRingFreq1      = 100.0
	defaultDistortionRingFreq2      = 100.0
	defaultDistortionRingBalance    = 0.5
	defaultDistortionRingMix        = 0.0
	defaultDistortionDecimation     = 0.5
	defaultDistortionDecimationMix  = 0.5
	defaultDistortionLinearTerm     = 0.5
	defaultDistortionSquaredTerm    = 0.5
	defaultDistortionCubicTerm      = 0.5
	defaultDistortionPolynomialMix  = 0.5
	defaultDistortionSoftClipGainDB = -6.0

	minDistortionSoftClipGainDB = -80.0
	maxDistortionSoftClipGainDB = 20.0
	maxDistortionRingFreq       = 20000.0
)

// DistortionOption mutates construction-time parameters.
type DistortionOption func(*distortionConfig) error

type distortionConfig struct {
	mix            float64
	ringFreq1      float64
	ringFreq2      float64
	ringBalance    float64
	ringMix        float64
	decimation     float64
	decimationMix  float64
	linearTerm     float64
	squaredTerm    float64
	cubicTerm      float64
	polynomialMix  float64
	softClipGainDB float64
}

func defaultDistortionConfig() distortionConfig {
	return distortionConfig{
		mix:            defaultDistortionMix,
		ringFreq1:      defaultDistortionRingFreq1,
		ringFreq2:      defaultDistortionRingFreq2,
		ringBalance:    defaultDistortionRingBalance,
		ringMix:        defaultDistortionRingMix,
		decimation:     defaultDistortionDecimation,
		decimationMix:  defaultDistortionDecimationMix,
		linearTerm:     defaultDistortionLinearTerm,
		squaredTerm:    defaultDistortionSquaredTerm,
		cubicTerm:      defaultDistortionCubicTerm,
		polynomialMix:  defaultDistortionPolynomialMix,
		softClipGainDB: defaultDistortionSoftClipGainDB,
	}
}

func unitOption(name string, v float64, dst func(*distortionConfig) *float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		if err := checkUnit("distortion "+name, v); err != nil {
			return err
		}
		*dst(cfg) = v

		return nil
	}
}

// WithDistortionMix sets the final dry/wet mix in [0, 1].
func WithDistortionMix(mix float64) DistortionOption {
	return unitOption("mix", mix, func(c *distortionConfig) *float64 { return &c.mix })
}

// WithDistortionRingFrequencies sets the two ring modulator oscillators in Hz.
func WithDistortionRingFrequencies(freq1, freq2 float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		for _, f := range []float64{freq1, freq2} {
			if f <= 0 || f > maxDistortionRingFreq || math.IsNaN(f) {
				return fmt.Errorf("distortion ring frequency must be in (0, %g]: %f", maxDistortionRingFreq, f)
			}
		}
		cfg.ringFreq1, cfg.ringFreq2 = freq1, freq2

		return nil
	}
}

// WithDistortionRingBalance sets the oscillator balance in [0, 1]; 0 is
// all freq1.
func WithDistortionRingBalance(balance float64) DistortionOption {
	return unitOption("ring balance", balance, func(c *distortionConfig) *float64 { return &c.ringBalance })
}

// WithDistortionRingMix sets the ring modulator dry/wet mix in [0, 1].
func WithDistortionRingMix(mix float64) DistortionOption {
	return unitOption("ring mix", mix, func(c *distortionConfig) *float64 { return &c.ringMix })
}

// WithDistortionDecimation sets the decimation amount in [0, 1]. Higher
// amounts hold samples longer and quantize more coarsely.
func WithDistortionDecimation(amount float64) DistortionOption {
	return unitOption("decimation", amount, func(c *distortionConfig) *float64 { return &c.decimation })
}

// WithDistortionDecimationMix sets the decimator dry/wet mix in [0, 1].
func WithDistortionDecimationMix(mix float64) DistortionOption {
	return unitOption("decimation mix", mix, func(c *distortionConfig) *float64 { return &c.decimationMix })
}

// WithDistortionPolynomial sets the linear, squared and cubic shaper terms
// (each in [0, 1]) and the shaper mix in [0, 1].
func WithDistortionPolynomial(linear, squared, cubic, mix float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		for _, v := range []float64{linear, squared, cubic, mix} {
			if err := checkUnit("distortion polynomial term", v); err != nil {
				return err
			}
		}
		cfg.linearTerm, cfg.squaredTerm, cfg.cubicTerm, cfg.polynomialMix = linear, squared, cubic, mix

		return nil
	}
}

// WithDistortionSoftClipGain sets the soft clip input gain in dB, [-80, 20].
func WithDistortionSoftClipGain(gainDB float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		if gainDB < minDistortionSoftClipGainDB || gainDB > maxDistortionSoftClipGainDB || math.IsNaN(gainDB) {
			return fmt.Errorf("distortion soft clip gain must be in [%g, %g]: %f",
				minDistortionSoftClipGainDB, maxDistortionSoftClipGainDB, gainDB)
		}
		cfg.softClipGainDB = gainDB

		return nil
	}
}

// Distortion is a multi-stage lo-fi distortion:
//
//	decimator -> ring modulator -> polynomial shaper -> soft clip -> final mix
//
// The polynomial is linear*x + squared*x*|x| + cubic*x^3. The squared term is
// sign-preserving so the shaper adds no DC. With a final mix of 0 the input is
// returned unchanged, bit for bit.
type Distortion struct {
	sampleRate float64
	mix        float64

	decimator *BitCrusher

	ringBalance float64
	ringMix     float64
	ringFreq1   float64
	ringFreq2   float64
	phase1      float64
	phase2      float64
	phaseInc1   float64
	phaseInc2   float64

	linearTerm    float64
	squaredTerm   float64
	cubicTerm     float64
	polynomialMix float64
	clipGain      float64
}

// NewDistortion creates a distortion with the given sample rate and optional
// configuration overrides.
func NewDistortion(sampleRate float64, opts ...DistortionOption) (*Distortion, error) {
	if err := checkSampleRate("distortion", sampleRate); err != nil {
		return nil, err
	}

	cfg := defaultDistortionConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	decimator, err := NewBitCrusher(sampleRate,
		WithBitCrusherBitDepth(decimationBitDepth(cfg.decimation)),
		WithBitCrusherDownsample(decimationFactor(cfg.decimation)),
		WithBitCrusherMix(cfg.decimationMix),
	)
	if err != nil {
		return nil, fmt.Errorf("distortion decimator: %w", err)
	}

	d := &Distortion{
		sampleRate:    sampleRate,
		mix:           cfg.mix,
		decimator:     decimator,
		ringBalance:   cfg.ringBalance,
		ringMix:       cfg.ringMix,
		ringFreq1:     cfg.ringFreq1,
		ringFreq2:     cfg.ringFreq2,
		linearTerm:    cfg.linearTerm,
		squaredTerm:   cfg.squaredTerm,
		cubicTerm:     cfg.cubicTerm,
		polynomialMix: cfg.polynomialMix,
		clipGain:      math.Pow(10, cfg.softClipGainDB/20),
	}
	d.updatePhaseIncrements()

	return d, nil
}

// SetMix sets the final dry/wet mix in [0, 1].
func (d *Distortion) SetMix(mix float64) error {
	if err := checkUnit("distortion mix", mix); err != nil {
		return err
	}
	d.mix = mix

	return nil
}

// SetRingMix sets the ring modulator dry/wet mix in [0, 1].
func (d *Distortion) SetRingMix(mix float64) error {
	if err := checkUnit("distortion ring mix", mix); err != nil {
		return err
	}
	d.ringMix = mix

	return nil
}

// SetDecimationMix sets the decimator dry/wet mix in [0, 1].
func (d *Distortion) SetDecimationMix(mix float64) error {
	return d.decimator.SetMix(mix)
}

// Reset clears oscillator phases and decimator state.
func (d *Distortion) Reset() {
	d.phase1, d.phase2 = 0, 0
	d.decimator.Reset()
}

// ProcessSample processes one sample.
func (d *Distortion) ProcessSample(input float64) float64 {
	if d.mix == 0 {
		return input
	}

	x := d.decimator.ProcessSample(input)

	if d.ringMix > 0 {
		carrier := (1-d.ringBalance)*math.Sin(d.phase1) + d.ringBalance*math.Sin(d.phase2)
		x = x*(1-d.ringMix) + x*carrier*d.ringMix
	}
	d.advancePhases()

	poly := d.linearTerm*x + d.squaredTerm*x*math.Abs(x) + d.cubicTerm*x*x*x
	x = x*(1-d.polynomialMix) + poly*d.polynomialMix

	wet := softClip(x * d.clipGain)

	return input*(1-d.mix) + wet*d.mix
}

// ProcessInPlace applies distortion to buf in place.
func (d *Distortion) ProcessInPlace(buf []float64) {
	if d.mix == 0 {
		return
	}

	for i := range buf {
		buf[i] = d.ProcessSample(buf[i])
	}
}

// SampleRate returns the sample rate in Hz.
func (d *Distortion) SampleRate() float64 { return d.sampleRate }

// Mix returns the final dry/wet mix in [0, 1].
func (d *Distortion) Mix() float64 { return d.mix }

// RingMix returns the ring modulator mix.
func (d *Distortion) RingMix() float64 { return d.ringMix }

// RingFrequencies returns the two ring oscillator frequencies in Hz.
func (d *Distortion) RingFrequencies() (float64, float64) { return d.ringFreq1, d.ringFreq2 }

// DecimationMix returns the decimator mix.
func (d *Distortion) DecimationMix() float64 { return d.decimator.Mix() }

func (d *Distortion) updatePhaseIncrements() {
	d.phaseInc1 = 2 * math.Pi * d.ringFreq1 / d.sampleRate
	d.phaseInc2 = 2 * math.Pi * d.ringFreq2 / d.sampleRate
}

func (d *Distortion) advancePhases() {
	d.phase1 += d.phaseInc1
	if d.phase1 >= 2*math.Pi {
		d.phase1 -= 2 * math.Pi
	}

	d.phase2 += d.phaseInc2
	if d.phase2 >= 2*math.Pi {
		d.phase2 -= 2 * math.Pi
	}
}

// decimationBitDepth maps amount 0 -> 24 bit, 1 -> 2 bit.
func decimationBitDepth(amount float64) float64 {
	return 24 - 22*amount
}

// decimationFactor maps amount 0 -> 1, 1 -> 32 held samples.
func decimationFactor(amount float64) int {
	return 1 + int(math.Round(31*amount*amount))
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%s must be in [0, 1]: %f", name, v)
	}

	return nil
}

func checkSampleRate(name string, sampleRate float64) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("%s sample rate must be > 0 and finite: %f", name, sampleRate)
	}

	return nil
}
