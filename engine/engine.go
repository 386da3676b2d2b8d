package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cwbudde/algo-vecmath"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/soundtoy/audiofile"
	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/dsp/effects"
	"github.com/cwbudde/soundtoy/dsp/loop"
	"github.com/cwbudde/soundtoy/dsp/signal"
	"github.com/cwbudde/soundtoy/engine/fade"
)

var (
	// ErrMissingAsset is returned by New when a bundled loop is absent.
	ErrMissingAsset = errors.New("engine: missing audio asset")
	// ErrClockStart is returned by Start when the clock fails to start.
	ErrClockStart = errors.New("engine: clock failed to start")
	// ErrUserLoop is returned when a user loop cannot be prepared.
	ErrUserLoop = errors.New("engine: cannot load user loop")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine: closed")
)

// Config is the construction-time engine setup.
type Config struct {
	SampleRate float64
	BlockSize  int

	// Assets lists the bundled loops, one player each.
	Assets []AudioFile
	// AssetDir is searched for Assets when Opener is nil.
	AssetDir string
	Opener   AssetOpener

	// Clock drives rendering. Nil means the caller renders by hand.
	Clock  Clock
	Logger logrus.FieldLogger

	// Seed seeds the noise generators: brown uses Seed, pink Seed+1 and
	// white Seed+2.
	Seed int64

	FadeIn    time.Duration
	FadeOut   time.Duration
	FadeSteps int

	newTicker func(time.Duration) fade.Ticker
	onState   func(PlaybackState)
}

// DefaultConfig returns the bundled loop set at 44.1 kHz with the default
// fades.
func DefaultConfig() Config {
	pc := core.DefaultProcessorConfig()

	return Config{
		SampleRate: pc.SampleRate,
		BlockSize:  pc.BlockSize,
		Assets:     DefaultAudioFiles,
		AssetDir:   "assets",
		FadeIn:     fade.DefaultFadeIn,
		FadeOut:    fade.DefaultFadeOut,
		FadeSteps:  fade.DefaultSteps,
	}
}

// Option adjusts a Config before the engine is built.
type Option func(*Config) error

// WithClock sets the render clock.
func WithClock(c Clock) Option {
	return func(cfg *Config) error {
		cfg.Clock = c

		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(cfg *Config) error {
		cfg.Logger = l

		return nil
	}
}

// WithSeed sets the noise seed.
func WithSeed(seed int64) Option {
	return func(cfg *Config) error {
		cfg.Seed = seed

		return nil
	}
}

// WithAssetOpener replaces the directory lookup of bundled loops.
func WithAssetOpener(open AssetOpener) Option {
	return func(cfg *Config) error {
		cfg.Opener = open

		return nil
	}
}

// WithFadeDurations sets the start and stop fade lengths.
func WithFadeDurations(in, out time.Duration) Option {
	return func(cfg *Config) error {
		if in < 0 || out < 0 {
			return fmt.Errorf("fade durations must be >= 0: %v, %v", in, out)
		}
		cfg.FadeIn, cfg.FadeOut = in, out

		return nil
	}
}

// WithFadeSteps sets the number of gain updates per fade.
func WithFadeSteps(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("fade steps must be > 0: %d", n)
		}
		cfg.FadeSteps = n

		return nil
	}
}

// WithTicker replaces the wall-clock fade ticker.
func WithTicker(newTicker func(time.Duration) fade.Ticker) Option {
	return func(cfg *Config) error {
		if newTicker == nil {
			return fmt.Errorf("fade ticker constructor must not be nil")
		}
		cfg.newTicker = newTicker

		return nil
	}
}

// WithStateHook registers fn to be called after every transport change.
// fn runs on the goroutine that made the change, never under engine locks.
func WithStateHook(fn func(PlaybackState)) Option {
	return func(cfg *Config) error {
		cfg.onState = fn

		return nil
	}
}

// Engine is the sound toy signal graph: noise and loop sources summed on a
// pre-mix bus, a fixed effect chain and a faded master gain.
//
// Control methods may be called from any goroutine and are serialized by an
// internal mutex. Render and RenderMono belong to the clock's goroutine;
// they take no locks and do not allocate.
type Engine struct {
	cfg   Config
	log   logrus.FieldLogger
	clock Clock

	mu      sync.Mutex
	state   PlaybackState
	stopSeq uint64
	closed  bool

	noiseParams atomicValue[NoiseParameters]
	tapeParams  atomicValue[[]TapeLoopControl]

	master core.Param
	fader  *fade.Controller

	noise [3]*signal.Noise
	tapes []*loop.Player
	user  *userSlot
	bus   *bus
	stage *effectStage
	meter meter

	mono []float64
}

// New builds the graph and decodes every bundled loop. A bundled loop that
// cannot be found fails with [ErrMissingAsset].
func New(cfg Config, opts ...Option) (*Engine, error) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	pc := core.ProcessorConfig{SampleRate: cfg.SampleRate, BlockSize: cfg.BlockSize}
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.FadeSteps <= 0 {
		cfg.FadeSteps = fade.DefaultSteps
	}
	if cfg.Opener == nil {
		cfg.Opener = DirAssets(cfg.AssetDir)
	}
	if cfg.Clock == nil {
		cfg.Clock = manualClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	e := &Engine{
		cfg:   cfg,
		log:   cfg.Logger,
		clock: cfg.Clock,
		user:  &userSlot{},
		mono:  make([]float64, cfg.BlockSize),
	}

	fadeOpts := []fade.Option{fade.WithSteps(cfg.FadeSteps)}
	if cfg.newTicker != nil {
		fadeOpts = append(fadeOpts, fade.WithTicker(cfg.newTicker))
	}
	fader, err := fade.New(&e.master, fadeOpts...)
	if err != nil {
		return nil, err
	}
	e.fader = fader

	if err := e.buildSources(); err != nil {
		return nil, err
	}

	e.stage, err = newEffectStage(cfg.SampleRate, cfg.BlockSize, e.bus, DefaultEffectParameters(), Lowpass)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"sample_rate": cfg.SampleRate,
		"block_size":  cfg.BlockSize,
		"tape_loops":  len(e.tapes),
	}).Info("engine ready")

	return e, nil
}

func (e *Engine) buildSources() error {
	sr := e.cfg.SampleRate
	e.bus = newBus(effects.MaxPull(e.cfg.BlockSize))

	controls := make([]TapeLoopControl, 0, len(e.cfg.Assets))
	for _, f := range e.cfg.Assets {
		clip, err := e.cfg.Opener(f)
		if err != nil {
			return fmt.Errorf("engine: open %s: %w", f.FileName(), err)
		}
		buf, err := prepareLoop(clip, sr)
		if err != nil {
			return fmt.Errorf("engine: prepare %s: %w", f.FileName(), err)
		}
		p, err := loop.NewPlayer(sr, loop.WithVolume(0))
		if err != nil {
			return err
		}
		p.LoadBuffer(buf)
		e.tapes = append(e.tapes, p)
		e.bus.add(p)
		controls = append(controls, DefaultTapeLoopControl(f.FileName()))

		e.log.WithFields(logrus.Fields{
			"file":     f.FileName(),
			"seconds":  buf.Duration(),
			"aligned":  buf.Aligned(),
			"channels": clip.Channels,
		}).Debug("tape loop loaded")
	}
	e.tapeParams.Store(controls)

	for i, color := range []signal.Color{signal.Brown, signal.Pink, signal.White} {
		n, err := signal.NewNoise(color, e.cfg.Seed+int64(i))
		if err != nil {
			return err
		}
		e.noise[i] = n
		e.bus.add(n)
	}
	e.noiseParams.Store(DefaultNoiseParameters())

	e.bus.add(e.user)

	return nil
}

// prepareLoop converts clip to a mono loop buffer at sampleRate.
func prepareLoop(clip *audiofile.Clip, sampleRate float64) (*loop.Buffer, error) {
	if clip == nil || clip.Frames() == 0 {
		return nil, audiofile.ErrEmptyClip
	}
	clip, err := clip.Resample(sampleRate)
	if err != nil {
		return nil, err
	}

	return loop.NewBuffer(clip.Mono(), sampleRate)
}

// Start starts the clock and fades in. It is a no-op while playing. While
// fading out, the fade-out is abandoned and the gain fades back in from
// where it is.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	switch e.state {
	case Playing:
		e.mu.Unlock()
		return nil
	case FadingOut:
		e.stopSeq++
		e.state = Playing
		e.fader.FadeIn(e.cfg.FadeIn)
		e.mu.Unlock()
		e.log.WithField("gain", e.master.Load()).Info("stop cancelled, fading back in")
		e.notify(Playing)

		return nil
	}

	if err := e.clock.Start(e.Render); err != nil {
		e.mu.Unlock()
		e.log.WithError(err).Error("audio clock failed to start")

		return fmt.Errorf("%w: %w", ErrClockStart, err)
	}
	for _, p := range e.tapes {
		p.Play()
	}
	if p := e.user.player.Load(); p != nil {
		p.Play()
	}
	e.state = Playing
	e.fader.FadeIn(e.cfg.FadeIn)
	e.mu.Unlock()

	e.log.WithField("fade_in", e.cfg.FadeIn).Info("playback started")
	e.notify(Playing)

	return nil
}

// Stop fades out, then stops the sources and the clock. It is a no-op
// unless the engine is playing.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != Playing {
		e.mu.Unlock()
		return
	}
	e.stopSeq++
	seq := e.stopSeq
	e.state = FadingOut
	e.fader.FadeOut(e.cfg.FadeOut, func() { e.finishStop(seq) })
	e.mu.Unlock()

	e.log.WithField("fade_out", e.cfg.FadeOut).Info("playback stopping")
	e.notify(FadingOut)
}

// finishStop runs on the fade goroutine when the fade-out of stop request
// seq completes.
func (e *Engine) finishStop(seq uint64) {
	e.mu.Lock()
	if e.stopSeq != seq || e.state != FadingOut {
		e.mu.Unlock()
		return
	}
	e.stopSources()
	err := e.clock.Stop()
	e.state = Stopped
	e.meter.reset()
	e.mu.Unlock()

	if err != nil {
		e.log.WithError(err).Warn("audio clock failed to stop")
	}
	e.log.Info("playback stopped")
	e.notify(Stopped)
}

func (e *Engine) stopSources() {
	for _, p := range e.tapes {
		p.Stop()
	}
	if p := e.user.player.Load(); p != nil {
		p.Stop()
	}
}

func (e *Engine) notify(s PlaybackState) {
	if e.cfg.onState != nil {
		e.cfg.onState(s)
	}
}

// Close stops the clock at once and cancels any fade. A clock that
// implements io.Closer is closed too.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stopSeq++
	e.fader.Cancel()

	var err error
	if e.state != Stopped {
		e.stopSources()
		err = e.clock.Stop()
		e.state = Stopped
	}
	e.master.Store(0)
	e.mu.Unlock()

	e.fader.Wait()
	if c, ok := e.clock.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}

	return err
}

// State returns the transport phase.
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// MasterGain returns the current master gain in [0, 1].
func (e *Engine) MasterGain() float64 {
	return e.master.Load()
}

// Levels returns the peak and RMS of the most recent output block.
func (e *Engine) Levels() (peak, rms float64) {
	return e.meter.peak.Load(), e.meter.rms.Load()
}

// SampleRate returns the graph rate in Hz.
func (e *Engine) SampleRate() float64 {
	return e.cfg.SampleRate
}

// SetNoiseParameters clamps p and applies it to the noise sources and the
// user loop.
func (e *Engine) SetNoiseParameters(p NoiseParameters) {
	p = p.Clamp()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.noise[0].SetAmplitude(p.Brown)
	e.noise[1].SetAmplitude(p.Pink)
	e.noise[2].SetAmplitude(p.White)
	if u := e.user.player.Load(); u != nil {
		u.SetVolume(p.UserVolume)
		u.SetPitchCents(p.UserPitchCents)
		u.SetSpeedRatio(p.UserSpeed)
	}
	e.noiseParams.Store(p)
}

// NoiseParameters returns the stored noise parameters.
func (e *Engine) NoiseParameters() NoiseParameters {
	return e.noiseParams.Load()
}

// SetTapeLoopControls applies controls to the bundled loops by position.
// Extra entries are ignored and missing ones keep their values. Names are
// owned by the engine and are not changed.
func (e *Engine) SetTapeLoopControls(controls []TapeLoopControl) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.tapeParams.Load()
	next := make([]TapeLoopControl, len(cur))
	copy(next, cur)
	for i := range min(len(controls), len(next)) {
		c := controls[i].Clamp()
		c.Name = next[i].Name
		next[i] = c

		p := e.tapes[i]
		p.SetVolume(c.Volume)
		p.SetPitchCents(c.PitchCents)
		p.SetSpeedRatio(c.Speed)
	}
	e.tapeParams.Store(next)
}

// TapeLoopControls returns a copy of the stored loop controls.
func (e *Engine) TapeLoopControls() []TapeLoopControl {
	cur := e.tapeParams.Load()
	out := make([]TapeLoopControl, len(cur))
	copy(out, cur)

	return out
}

// SetEffectParameters clamps p and publishes it to the effect chain.
func (e *Engine) SetEffectParameters(p EffectParameters) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stage.publish(p, e.stage.current().path)
}

// EffectParameters returns the stored effect parameters.
func (e *Engine) EffectParameters() EffectParameters {
	return e.stage.current().params
}

// SelectFilterPath routes the chosen filter output to the delay. Unknown
// paths select the low-pass.
func (e *Engine) SelectFilterPath(path FilterPath) {
	if path != Highpass {
		path = Lowpass
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stage.publish(e.stage.current().params, path)
	e.log.WithField("path", path).Debug("filter path selected")
}

// FilterPath returns the routed filter output.
func (e *Engine) FilterPath() FilterPath {
	return e.stage.current().path
}

// FilterPathGains returns the lowpass and highpass mixer gains.
func (e *Engine) FilterPathGains() (lowpass, highpass float64) {
	s := e.stage.current()

	return s.lpGain, s.hpGain
}

// LoadUserLoop installs clip as the user loop. The clip is resampled and
// aligned before the engine lock is taken. On error the current user loop
// keeps playing.
//
// The first load creates the user player at gain 0; later loads swap its
// buffer. Playback resumes only while the engine is running.
func (e *Engine) LoadUserLoop(clip *audiofile.Clip) error {
	buf, err := prepareLoop(clip, e.cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserLoop, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	p := e.user.player.Load()
	if p == nil {
		p, err = loop.NewPlayer(e.cfg.SampleRate, loop.WithVolume(0))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUserLoop, err)
		}
		np := e.noiseParams.Load()
		p.SetPitchCents(np.UserPitchCents)
		p.SetSpeedRatio(np.UserSpeed)
		p.LoadBuffer(buf)
		if e.state != Stopped {
			p.Play()
		}
		e.user.player.Store(p)
		e.log.WithField("seconds", buf.Duration()).Info("user loop created")

		return nil
	}

	p.Stop()
	p.LoadBuffer(buf)
	if e.state != Stopped {
		p.Play()
	}
	e.log.WithField("seconds", buf.Duration()).Info("user loop replaced")

	return nil
}

// LoadUserLoopFile decodes the file at path and installs it as the user
// loop.
func (e *Engine) LoadUserLoopFile(path string) error {
	clip, err := audiofile.Load(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserLoop, err)
	}

	return e.LoadUserLoop(clip)
}

// HasUserLoop reports whether a user loop has been loaded.
func (e *Engine) HasUserLoop() bool {
	return e.user.player.Load() != nil
}

// SourceCount returns the number of sources feeding the pre-mix bus: the
// bundled loops, the three noise colors and the user loop once loaded.
func (e *Engine) SourceCount() int {
	n := len(e.tapes) + len(e.noise)
	if e.HasUserLoop() {
		n++
	}

	return n
}

// Render fills dst with interleaved stereo frames. The mono graph output
// is written to both channels.
func (e *Engine) Render(dst []float32) {
	frames := len(dst) / 2
	for off := 0; off < frames; {
		n := min(frames-off, len(e.mono))
		block := e.mono[:n]
		e.renderBlock(block)
		out := dst[2*off : 2*(off+n)]
		for i, v := range block {
			s := float32(v)
			out[2*i] = s
			out[2*i+1] = s
		}
		off += n
	}
	if len(dst)%2 == 1 {
		dst[len(dst)-1] = 0
	}
}

// RenderMono fills dst with mono output.
func (e *Engine) RenderMono(dst []float64) {
	for len(dst) > 0 {
		n := min(len(dst), len(e.mono))
		e.renderBlock(dst[:n])
		dst = dst[n:]
	}
}

func (e *Engine) renderBlock(block []float64) {
	e.stage.ProcessTo(block)
	vecmath.ScaleBlockInPlace(block, e.master.Load())
	for i, v := range block {
		if !core.IsFinite(v) {
			block[i] = 0
		}
	}
	e.meter.update(block)
}
