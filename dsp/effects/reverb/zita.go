package reverb

import (
	"fmt"
	"math"

	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/delay"
	"github.com/cwbudde/soundtoy/dsp/filter/biquad"
	"github.com/cwbudde/soundtoy/dsp/filter/design"
)

const (
	zitaSize = 8

	defaultZitaPreDelay  = 0.045
	defaultZitaCrossover = 500.0
	defaultZitaLowRT60   = 3.0
	defaultZitaMidRT60   = 2.0
	defaultZitaDamping   = 2000.0
	defaultZitaEQ1Freq   = 400.0
	defaultZitaEQ1Level  = 1.0
	defaultZitaEQ2Freq   = 3000.0
	defaultZitaEQ2Level  = 0.3
	defaultZitaMix       = 0.0

	// MinRelease and MaxRelease bound the decay times in seconds.
	MinRelease = 1.0
	MaxRelease = 8.0

	maxZitaPreDelay = 0.2
	minZitaEQLevel  = -15.0
	maxZitaEQLevel  = 15.0
	zitaEQQ         = 0.7071067811865476
	zitaRefRate     = 44100.0
)

var zitaDelaySamples = [zitaSize]float64{1537, 1753, 1999, 2251, 2473, 2689, 2851, 3067}

var zitaHadamard = [zitaSize][zitaSize]float64{
	{1, 1, 1, 1, 1, 1, 1, 1},
	{1, -1, 1, -1, 1, -1, 1, -1},
	{1, 1, -1, -1, 1, 1, -1, -1},
	{1, -1, -1, 1, 1, -1, -1, 1},
	{1, 1, 1, 1, -1, -1, -1, -1},
	{1, -1, 1, -1, -1, 1, -1, 1},
	{1, 1, -1, -1, -1, -1, 1, 1},
	{1, -1, -1, 1, -1, 1, 1, -1},
}

// ZitaOption mutates construction-time parameters.
type ZitaOption func(*zitaConfig) error

type zitaConfig struct {
	preDelay  float64
	crossover float64
	lowRT60   float64
	midRT60   float64
	damping   float64
	eq1Freq   float64
	eq1Level  float64
	eq2Freq   float64
	eq2Level  float64
	mix       float64
}

// WithZitaPreDelay sets the pre-delay in seconds, [0, 0.2].
func WithZitaPreDelay(seconds float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		if seconds < 0 || seconds > maxZitaPreDelay || math.IsNaN(seconds) {
			return fmt.Errorf("zita pre-delay must be in [0, %g]: %f", maxZitaPreDelay, seconds)
		}
		cfg.preDelay = seconds

		return nil
	}
}

// WithZitaCrossover sets the frequency splitting the low and mid decay bands.
func WithZitaCrossover(hz float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		if err := checkFreq("zita crossover", hz); err != nil {
			return err
		}
		cfg.crossover = hz

		return nil
	}
}

// WithZitaRelease sets the low and mid band decay times (RT60) in seconds.
// Values are clamped to [MinRelease, MaxRelease].
func WithZitaRelease(low, mid float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		cfg.lowRT60 = core.ClampOr(low, MinRelease, MaxRelease, defaultZitaLowRT60)
		cfg.midRT60 = core.ClampOr(mid, MinRelease, MaxRelease, defaultZitaMidRT60)

		return nil
	}
}

// WithZitaDamping sets the frequency above which the mid decay time halves.
func WithZitaDamping(hz float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		if err := checkFreq("zita damping", hz); err != nil {
			return err
		}
		cfg.damping = hz

		return nil
	}
}

// WithZitaEqualizer1 sets the first output peaking band (Hz, dB).
func WithZitaEqualizer1(hz, levelDB float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		if err := checkEQ(hz, levelDB); err != nil {
			return err
		}
		cfg.eq1Freq, cfg.eq1Level = hz, levelDB

		return nil
	}
}

// WithZitaEqualizer2 sets the second output peaking band (Hz, dB).
func WithZitaEqualizer2(hz, levelDB float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		if err := checkEQ(hz, levelDB); err != nil {
			return err
		}
		cfg.eq2Freq, cfg.eq2Level = hz, levelDB

		return nil
	}
}

// WithZitaMix sets the initial dry/wet mix in [0, 1].
func WithZitaMix(mix float64) ZitaOption {
	return func(cfg *zitaConfig) error {
		if err := checkMix(mix); err != nil {
			return err
		}
		cfg.mix = mix

		return nil
	}
}

// Zita is a mono feedback-delay-network reverb with two decay bands.
//
// The network keeps running at mix 0, so raising the mix mid-stream reveals
// a tail that is already built up. At mix 0 the output equals the input.
type Zita struct {
	sampleRate float64
	cfg        zitaConfig
	mix        float64

	preDelay        *delay.Line
	preDelaySamples int

	lines       [zitaSize]*delay.Line
	lineSamples [zitaSize]int
	lowState    [zitaSize]float64
	dampState   [zitaSize]float64
	gainLow     [zitaSize]float64
	gainMid     [zitaSize]float64
	gainHigh    [zitaSize]float64

	crossCoeff float64
	dampCoeff  float64
	eq1, eq2   *biquad.Section
	ioGain     float64
}

// NewZita creates a reverb for sampleRate.
func NewZita(sampleRate float64, opts ...ZitaOption) (*Zita, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("zita sample rate must be > 0: %f", sampleRate)
	}

	cfg := zitaConfig{
		preDelay:  defaultZitaPreDelay,
		crossover: defaultZitaCrossover,
		lowRT60:   defaultZitaLowRT60,
		midRT60:   defaultZitaMidRT60,
		damping:   defaultZitaDamping,
		eq1Freq:   defaultZitaEQ1Freq,
		eq1Level:  defaultZitaEQ1Level,
		eq2Freq:   defaultZitaEQ2Freq,
		eq2Level:  defaultZitaEQ2Level,
		mix:       defaultZitaMix,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	z := &Zita{
		sampleRate: sampleRate,
		cfg:        cfg,
		mix:        cfg.mix,
		ioGain:     1 / math.Sqrt(zitaSize),
	}

	var err error

	z.preDelaySamples = max(1, int(math.Round(cfg.preDelay*sampleRate)))
	if z.preDelay, err = delay.New(z.preDelaySamples + 1); err != nil {
		return nil, fmt.Errorf("zita pre-delay: %w", err)
	}

	scale := sampleRate / zitaRefRate
	for i := range zitaSize {
		z.lineSamples[i] = max(1, int(math.Round(zitaDelaySamples[i]*scale)))
		if z.lines[i], err = delay.New(z.lineSamples[i] + 1); err != nil {
			return nil, fmt.Errorf("zita line %d: %w", i, err)
		}
	}

	z.crossCoeff = onePoleCoeff(cfg.crossover, sampleRate)
	z.dampCoeff = onePoleCoeff(math.Max(cfg.damping, cfg.crossover), sampleRate)
	z.updateDecayGains()

	z.eq1 = biquad.NewSection(design.Peak(cfg.eq1Freq, cfg.eq1Level, zitaEQQ, sampleRate))
	z.eq2 = biquad.NewSection(design.Peak(cfg.eq2Freq, cfg.eq2Level, zitaEQQ, sampleRate))

	return z, nil
}

// SetMix sets the dry/wet mix in [0, 1].
func (z *Zita) SetMix(mix float64) error {
	if err := checkMix(mix); err != nil {
		return err
	}
	z.mix = mix

	return nil
}

// Reset clears all delay and filter state.
func (z *Zita) Reset() {
	z.preDelay.Reset()
	for i := range z.lines {
		z.lines[i].Reset()
		z.lowState[i] = 0
		z.dampState[i] = 0
	}
	z.eq1.Reset()
	z.eq2.Reset()
}

// ProcessSample processes one sample.
func (z *Zita) ProcessSample(input float64) float64 {
	in := z.preDelay.Read(z.preDelaySamples) * z.ioGain
	z.preDelay.Write(input)

	var taps, shaped [zitaSize]float64
	for i := range zitaSize {
		x := z.lines[i].Read(z.lineSamples[i])
		taps[i] = x

		z.lowState[i] += z.crossCoeff * (x - z.lowState[i])
		z.dampState[i] += z.dampCoeff * (x - z.dampState[i])
		low := z.lowState[i]
		mid := z.dampState[i] - low
		high := x - z.dampState[i]
		shaped[i] = z.gainLow[i]*low + z.gainMid[i]*mid + z.gainHigh[i]*high
	}

	var out float64
	for i := range zitaSize {
		var fb float64
		for j := range zitaSize {
			fb += zitaHadamard[i][j] * shaped[j]
		}
		z.lines[i].Write(core.FlushDenormals(in + fb*z.ioGain))
		out += taps[i]
	}

	wet := z.eq2.ProcessSample(z.eq1.ProcessSample(out * z.ioGain))

	return input*(1-z.mix) + wet*z.mix
}

// ProcessInPlace applies the reverb to buf in place.
func (z *Zita) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = z.ProcessSample(buf[i])
	}
}

// SampleRate returns the sample rate in Hz.
func (z *Zita) SampleRate() float64 { return z.sampleRate }

// Mix returns the dry/wet mix.
func (z *Zita) Mix() float64 { return z.mix }

// PreDelay returns the pre-delay in seconds.
func (z *Zita) PreDelay() float64 { return z.cfg.preDelay }

// Release returns the low and mid band decay times in seconds.
func (z *Zita) Release() (low, mid float64) { return z.cfg.lowRT60, z.cfg.midRT60 }

// Crossover returns the band split frequency in Hz.
func (z *Zita) Crossover() float64 { return z.cfg.crossover }

// Damping returns the damping frequency in Hz.
func (z *Zita) Damping() float64 { return z.cfg.damping }

// updateDecayGains sets per-line band gains so each band decays 60 dB in
// its RT60; the band above the damping frequency uses half the mid time.
func (z *Zita) updateDecayGains() {
	for i := range zitaSize {
		d := float64(z.lineSamples[i]) / z.sampleRate
		z.gainLow[i] = math.Pow(10, -3*d/z.cfg.lowRT60)
		z.gainMid[i] = math.Pow(10, -3*d/z.cfg.midRT60)
		z.gainHigh[i] = math.Pow(10, -3*d/(0.5*z.cfg.midRT60))
	}
}

func onePoleCoeff(hz, sampleRate float64) float64 {
	hz = math.Min(hz, design.MaxCutoffRatio*sampleRate)

	return 1 - math.Exp(-2*math.Pi*hz/sampleRate)
}

func checkFreq(name string, hz float64) error {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("%s frequency must be > 0: %f", name, hz)
	}

	return nil
}

func checkEQ(hz, levelDB float64) error {
	if err := checkFreq("zita equalizer", hz); err != nil {
		return err
	}
	if levelDB < minZitaEQLevel || levelDB > maxZitaEQLevel || math.IsNaN(levelDB) {
		return fmt.Errorf("zita equalizer level must be in [%g, %g]: %f", minZitaEQLevel, maxZitaEQLevel, levelDB)
	}

	return nil
}

func checkMix(mix float64) error {
	if mix < 0 || mix > 1 || math.IsNaN(mix) {
		return fmt.Errorf("zita mix must be in [0, 1]: %f", mix)
	}

	return nil
}
