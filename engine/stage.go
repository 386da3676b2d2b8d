package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/soundtoy/dsp/effects"
	"github.com/cwbudde/soundtoy/dsp/effects/dynamics"
	"github.com/cwbudde/soundtoy/dsp/effects/reverb"
	"github.com/cwbudde/soundtoy/dsp/filter/biquad"
	"github.com/cwbudde/soundtoy/dsp/filter/design"
)

// Fixed reverb and limiter voicing.
const (
	reverbPreDelay  = 0.045
	reverbCrossover = 500.0
	reverbLowRT     = 25.0
	reverbMidRT     = 26.0
	reverbDamping   = 2000.0
	reverbEQ1Freq   = 400.0
	reverbEQ1Level  = 1.0
	reverbEQ2Freq   = 3000.0
	reverbEQ2Level  = 0.3

	limiterCeilingDB   = -0.1
	limiterLookaheadMs = 5.0
	limiterAttackMs    = 12.0
	limiterReleaseMs   = 24.0

	ringFreq1      = 100.0
	ringFreq2      = 173.0
	softClipGainDB = -6.0
)

// stageSnapshot is one published state of the effect controls. Filter
// coefficients and mixer gains are derived on the control thread so the
// render thread only copies values.
type stageSnapshot struct {
	params EffectParameters
	path   FilterPath

	lowpass  biquad.Coefficients
	highpass biquad.Coefficients
	lpGain   float64
	hpGain   float64
	delayWet float64
	delayDry float64
}

// effectStage is the fixed post-mix chain. All processors are owned by the
// render thread; the control thread only publishes snapshots.
type effectStage struct {
	sampleRate float64

	pending atomic.Pointer[stageSnapshot]
	applied *stageSnapshot

	varispeed  *effects.Varispeed
	distortion *effects.Distortion
	lowpass    *biquad.Section
	highpass   *biquad.Section
	delay      *effects.VariableDelay
	reverb     *reverb.Zita
	limiter    *dynamics.PeakLimiter

	lp  []float64
	hp  []float64
	wet []float64
}

func newEffectStage(sampleRate float64, blockSize int, src effects.SampleSource, p EffectParameters, path FilterPath) (*effectStage, error) {
	snap := newStageSnapshot(sampleRate, p, path)

	vs, err := effects.NewVarispeed(src, blockSize)
	if err != nil {
		return nil, fmt.Errorf("engine: varispeed: %w", err)
	}
	if err := vs.SetRate(snap.params.Rate); err != nil {
		return nil, fmt.Errorf("engine: varispeed: %w", err)
	}

	dist, err := effects.NewDistortion(sampleRate,
		effects.WithDistortionMix(snap.params.DistortionMix/MaxMixPct),
		effects.WithDistortionRingFrequencies(ringFreq1, ringFreq2),
		effects.WithDistortionRingMix(0),
		effects.WithDistortionDecimationMix(0),
		effects.WithDistortionSoftClipGain(softClipGainDB),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: distortion: %w", err)
	}

	dl, err := effects.NewVariableDelay(sampleRate,
		effects.WithVariableDelayMaxTime(MaxDelayTime),
		effects.WithVariableDelayTime(snap.params.DelayTime),
		effects.WithVariableDelayFeedback(snap.params.DelayFeedback),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: delay: %w", err)
	}

	rv, err := reverb.NewZita(sampleRate,
		reverb.WithZitaPreDelay(reverbPreDelay),
		reverb.WithZitaCrossover(reverbCrossover),
		reverb.WithZitaRelease(reverbLowRT, reverbMidRT),
		reverb.WithZitaDamping(reverbDamping),
		reverb.WithZitaEqualizer1(reverbEQ1Freq, reverbEQ1Level),
		reverb.WithZitaEqualizer2(reverbEQ2Freq, reverbEQ2Level),
		reverb.WithZitaMix(snap.params.ReverbMix),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: reverb: %w", err)
	}

	lim, err := dynamics.NewPeakLimiter(sampleRate,
		dynamics.WithPeakLimiterCeiling(limiterCeilingDB),
		dynamics.WithPeakLimiterLookahead(limiterLookaheadMs),
		dynamics.WithPeakLimiterAttack(limiterAttackMs),
		dynamics.WithPeakLimiterRelease(limiterReleaseMs),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: limiter: %w", err)
	}

	s := &effectStage{
		sampleRate: sampleRate,
		applied:    snap,
		varispeed:  vs,
		distortion: dist,
		lowpass:    biquad.NewSection(snap.lowpass),
		highpass:   biquad.NewSection(snap.highpass),
		delay:      dl,
		reverb:     rv,
		limiter:    lim,
		lp:         make([]float64, blockSize),
		hp:         make([]float64, blockSize),
		wet:        make([]float64, blockSize),
	}
	s.pending.Store(snap)

	return s, nil
}

func newStageSnapshot(sampleRate float64, p EffectParameters, path FilterPath) *stageSnapshot {
	p = p.Clamp()
	lp, hp := pathGains(path)
	wet, dry := effects.DelayMixGains(p.DelayMix)

	return &stageSnapshot{
		params:   p,
		path:     path,
		lowpass:  design.Lowpass(p.LowpassCutoff, design.ResonanceToQ(p.LowpassResonance), sampleRate),
		highpass: design.Highpass(p.HighpassCutoff, design.ResonanceToQ(p.HighpassResonance), sampleRate),
		lpGain:   lp,
		hpGain:   hp,
		delayWet: wet,
		delayDry: dry,
	}
}

// publish makes p and path visible to the next rendered block.
func (s *effectStage) publish(p EffectParameters, path FilterPath) {
	s.pending.Store(newStageSnapshot(s.sampleRate, p, path))
}

// current returns the latest published snapshot.
func (s *effectStage) current() *stageSnapshot {
	return s.pending.Load()
}

// sync applies a newly published snapshot. Values are pre-clamped, so the
// setters cannot fail.
func (s *effectStage) sync() {
	snap := s.pending.Load()
	if snap == s.applied {
		return
	}
	p := snap.params
	_ = s.varispeed.SetRate(p.Rate)
	_ = s.distortion.SetMix(p.DistortionMix / MaxMixPct)
	s.lowpass.SetCoefficients(snap.lowpass)
	s.highpass.SetCoefficients(snap.highpass)
	_ = s.delay.SetTime(p.DelayTime)
	_ = s.delay.SetFeedback(p.DelayFeedback)
	_ = s.reverb.SetMix(p.ReverbMix)
	s.applied = snap
}

// ProcessTo renders the chain into dst. len(dst) must not exceed the block
// size the stage was built with.
func (s *effectStage) ProcessTo(dst []float64) {
	s.sync()
	snap := s.applied
	n := len(dst)
	lp, hp, wet := s.lp[:n], s.hp[:n], s.wet[:n]

	s.varispeed.ProcessTo(dst)
	s.distortion.ProcessInPlace(dst)

	s.lowpass.ProcessBlockTo(lp, dst)
	s.highpass.ProcessBlockTo(hp, lp)
	vecmath.ScaleBlock(dst, lp, snap.lpGain)
	vecmath.ScaleBlockInPlace(hp, snap.hpGain)
	vecmath.AddBlockInPlace(dst, hp)

	s.delay.ProcessTo(wet, dst)
	vecmath.ScaleBlockInPlace(wet, snap.delayWet)
	vecmath.ScaleBlockInPlace(dst, snap.delayDry)
	vecmath.AddBlockInPlace(dst, wet)

	s.reverb.ProcessInPlace(dst)
	s.limiter.ProcessInPlace(dst)
}

// Latency returns the chain delay in samples at rate 1.
func (s *effectStage) Latency() int {
	return s.limiter.Latency()
}
