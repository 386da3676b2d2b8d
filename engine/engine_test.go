package engine

import (
	"errors"
	"io"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/soundtoy/audiofile"
	"github.com/cwbudde/soundtoy/dsp/signal"
	"github.com/cwbudde/soundtoy/engine/fade"
	"github.com/cwbudde/soundtoy/internal/testutil"
)

type fakeClock struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	closed   bool
}

func (c *fakeClock) Start(RenderFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.startErr != nil {
		return c.startErr
	}
	c.starts++

	return nil
}

func (c *fakeClock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stops++

	return nil
}

func (c *fakeClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

func (c *fakeClock) counts() (starts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.starts, c.stops
}

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

type manualTickers struct {
	created chan *manualTicker
}

func newManualTickers() *manualTickers {
	return &manualTickers{created: make(chan *manualTicker, 8)}
}

func (m *manualTickers) newTicker(time.Duration) fade.Ticker {
	t := &manualTicker{c: make(chan time.Time)}
	m.created <- t

	return t
}

func (m *manualTickers) next(t *testing.T) *manualTicker {
	t.Helper()

	select {
	case tk := <-m.created:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("no fade ticker created")
		return nil
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func sineClip(freq float64) (*audiofile.Clip, error) {
	const (
		rate   = 22050
		frames = 11025
	)
	left := testutil.DeterministicSine(freq, rate, 0.5, frames)
	stereo := make([]float64, 2*frames)
	for i, v := range left {
		stereo[2*i] = v
		stereo[2*i+1] = v
	}

	return audiofile.NewClip(stereo, 2, rate)
}

var testAssets = []AudioFile{
	{Name: "first", Extension: "wav"},
	{Name: "second", Extension: "wav"},
}

func sineOpener(f AudioFile) (*audiofile.Clip, error) {
	if f.Name == "second" {
		return sineClip(330)
	}

	return sineClip(220)
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Assets = testAssets
	base := []Option{
		WithAssetOpener(sineOpener),
		WithLogger(quietLogger()),
	}
	e, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Assets = nil

	bad := cfg
	bad.SampleRate = 0
	if _, err := New(bad); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	bad = cfg
	bad.BlockSize = 0
	if _, err := New(bad); err == nil {
		t.Fatal("expected error for zero block size")
	}
	if _, err := New(cfg, WithFadeSteps(0)); err == nil {
		t.Fatal("expected error for zero fade steps")
	}
	if _, err := New(cfg, WithFadeDurations(-time.Second, 0)); err == nil {
		t.Fatal("expected error for negative fade")
	}
}

func TestNewMissingAsset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AssetDir = t.TempDir()

	_, err := New(cfg, WithLogger(quietLogger()))
	if !errors.Is(err, ErrMissingAsset) {
		t.Fatalf("error = %v, want ErrMissingAsset", err)
	}
}

func TestNewLoadsAssetsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	clip, err := sineClip(220)
	if err != nil {
		t.Fatal(err)
	}
	if err := audiofile.SaveWAV(filepath.Join(dir, "loop.wav"), clip); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.AssetDir = dir
	cfg.Assets = []AudioFile{{Name: "loop", Extension: "wav"}}
	e, err := New(cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	controls := e.TapeLoopControls()
	if len(controls) != 1 || controls[0].Name != "loop.wav" {
		t.Fatalf("controls = %+v", controls)
	}
}

func TestEffectParametersClampOnReadback(t *testing.T) {
	e := newTestEngine(t)

	e.SetEffectParameters(EffectParameters{
		DistortionMix:     150,
		LowpassCutoff:     1e6,
		LowpassResonance:  -3,
		HighpassCutoff:    1,
		HighpassResonance: 90,
		Rate:              math.NaN(),
		DelayFeedback:     1.5,
		DelayTime:         9,
		DelayMix:          -1,
		ReverbMix:         2,
	})

	want := EffectParameters{
		DistortionMix:     100,
		LowpassCutoff:     MaxCutoff,
		LowpassResonance:  0,
		HighpassCutoff:    MinCutoff,
		HighpassResonance: MaxResonance,
		Rate:              1,
		DelayFeedback:     1,
		DelayTime:         MaxDelayTime,
		DelayMix:          0,
		ReverbMix:         1,
	}
	if got := e.EffectParameters(); got != want {
		t.Fatalf("EffectParameters() = %+v, want %+v", got, want)
	}
}

func TestNoiseParametersClampOnReadback(t *testing.T) {
	e := newTestEngine(t)

	e.SetNoiseParameters(NoiseParameters{
		Brown:          2,
		Pink:           -1,
		White:          math.NaN(),
		UserVolume:     0.5,
		UserPitchCents: 5000,
		UserSpeed:      0.1,
	})

	want := NoiseParameters{
		Brown:          1,
		Pink:           0,
		White:          0,
		UserVolume:     0.5,
		UserPitchCents: 2400,
		UserSpeed:      0.25,
	}
	if got := e.NoiseParameters(); got != want {
		t.Fatalf("NoiseParameters() = %+v, want %+v", got, want)
	}
	if e.noise[0].Amplitude() != 1 || e.noise[1].Amplitude() != 0 {
		t.Fatalf("noise amplitudes = %v, %v", e.noise[0].Amplitude(), e.noise[1].Amplitude())
	}
}

func TestTapeLoopControls(t *testing.T) {
	e := newTestEngine(t)

	e.SetTapeLoopControls([]TapeLoopControl{
		{Name: "renamed", Volume: 3, PitchCents: -3000, Speed: 2},
		{Volume: 0.4, PitchCents: 700, Speed: 9},
		{Volume: 1},
	})

	got := e.TapeLoopControls()
	want := []TapeLoopControl{
		{Name: "first.wav", Volume: 1, PitchCents: -2400, Speed: 2},
		{Name: "second.wav", Volume: 0.4, PitchCents: 700, Speed: 4},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("control %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if e.tapes[1].Volume() != 0.4 || e.tapes[0].SpeedRatio() != 2 {
		t.Fatal("controls were not pushed to the players")
	}

	got[0].Volume = 0
	if e.TapeLoopControls()[0].Volume != 1 {
		t.Fatal("TapeLoopControls returned shared storage")
	}
}

func TestSliderMappingsRoundTrip(t *testing.T) {
	for f := MinCutoff; f <= MaxCutoff; f *= 1.37 {
		if got := SliderToCutoff(CutoffToSlider(f)); math.Abs(got-f) > 1e-9*f {
			t.Fatalf("cutoff %v round trip = %v", f, got)
		}
	}
	if got := SliderToCutoff(CutoffToSlider(MaxCutoff)); math.Abs(got-MaxCutoff) > 1e-9 {
		t.Fatalf("max cutoff round trip = %v", got)
	}

	for d := MinDelayTime; d <= MaxDelayTime; d *= 1.19 {
		if got := SliderToDelayTime(DelayTimeToSlider(d)); math.Abs(got-d) > 1e-12 {
			t.Fatalf("delay %v round trip = %v", d, got)
		}
	}
	if got := SliderToDelayTime(DelayTimeToSlider(MaxDelayTime)); math.Abs(got-MaxDelayTime) > 1e-12 {
		t.Fatalf("max delay round trip = %v", got)
	}
}

func TestFilterPathGainsAreExclusive(t *testing.T) {
	e := newTestEngine(t)

	check := func(want FilterPath, lp, hp float64) {
		t.Helper()
		gotLP, gotHP := e.FilterPathGains()
		if e.FilterPath() != want || gotLP != lp || gotHP != hp {
			t.Fatalf("path %v gains (%v, %v), want %v (%v, %v)", e.FilterPath(), gotLP, gotHP, want, lp, hp)
		}
	}

	check(Lowpass, 1, 0)
	e.SelectFilterPath(Highpass)
	check(Highpass, 0, 1)
	e.SelectFilterPath(Lowpass)
	check(Lowpass, 1, 0)
	e.SelectFilterPath(FilterPath(7))
	check(Lowpass, 1, 0)

	e.SelectFilterPath(Highpass)
	e.SetEffectParameters(DefaultEffectParameters())
	check(Highpass, 0, 1)
}

func TestSecondUserLoopKeepsSourceCount(t *testing.T) {
	e := newTestEngine(t)

	if e.HasUserLoop() {
		t.Fatal("user loop present before any load")
	}
	base := e.SourceCount()
	if base != len(testAssets)+3 {
		t.Fatalf("SourceCount = %d, want %d", base, len(testAssets)+3)
	}

	clip, err := sineClip(440)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.LoadUserLoop(clip); err != nil {
		t.Fatalf("first LoadUserLoop() error = %v", err)
	}
	first := e.user.player.Load()
	if !e.HasUserLoop() || e.SourceCount() != base+1 {
		t.Fatalf("after first load: HasUserLoop=%v count=%d", e.HasUserLoop(), e.SourceCount())
	}

	if err := e.LoadUserLoop(clip); err != nil {
		t.Fatalf("second LoadUserLoop() error = %v", err)
	}
	if e.SourceCount() != base+1 {
		t.Fatalf("SourceCount after second load = %d, want %d", e.SourceCount(), base+1)
	}
	if e.user.player.Load() != first {
		t.Fatal("second load replaced the user player")
	}
	if len(e.bus.slots) != len(testAssets)+4 {
		t.Fatalf("bus slots = %d", len(e.bus.slots))
	}
}

func TestUserLoopStartsSilent(t *testing.T) {
	e := newTestEngine(t)
	e.SetNoiseParameters(NoiseParameters{UserVolume: 0.8, UserPitchCents: 300, UserSpeed: 1.5})

	clip, err := sineClip(440)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.LoadUserLoop(clip); err != nil {
		t.Fatal(err)
	}

	p := e.user.player.Load()
	if p.Volume() != 0 {
		t.Fatalf("new user loop volume = %v, want 0", p.Volume())
	}
	if p.PitchCents() != 300 || p.SpeedRatio() != 1.5 {
		t.Fatalf("pitch/speed = %v, %v", p.PitchCents(), p.SpeedRatio())
	}

	e.SetNoiseParameters(NoiseParameters{UserVolume: 0.8, UserSpeed: 1})
	if p.Volume() != 0.8 {
		t.Fatalf("user volume = %v, want 0.8", p.Volume())
	}
}

func TestFailedUserLoopKeepsPrevious(t *testing.T) {
	e := newTestEngine(t)

	if err := e.LoadUserLoop(nil); !errors.Is(err, ErrUserLoop) {
		t.Fatalf("error = %v, want ErrUserLoop", err)
	}
	if e.HasUserLoop() {
		t.Fatal("failed first load created a user loop")
	}

	clip, err := sineClip(440)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.LoadUserLoop(clip); err != nil {
		t.Fatal(err)
	}
	before := e.user.player.Load().Buffer()

	if err := e.LoadUserLoopFile(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, ErrUserLoop) {
		t.Fatalf("error = %v, want ErrUserLoop", err)
	}
	if e.user.player.Load().Buffer() != before {
		t.Fatal("failed load replaced the user loop buffer")
	}
}

func TestUserLoopPlaysWhileRunning(t *testing.T) {
	e := newTestEngine(t, WithFadeDurations(0, 0))
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fade-in", func() bool { return e.MasterGain() == 1 })

	clip, err := sineClip(440)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.LoadUserLoop(clip); err != nil {
		t.Fatal(err)
	}
	e.SetNoiseParameters(NoiseParameters{UserVolume: 1, UserSpeed: 1})

	out := make([]float64, 8192)
	e.RenderMono(out)
	if rms := testutil.RMS(out[4096:]); rms < 0.1 {
		t.Fatalf("user loop RMS = %v, want audible output", rms)
	}
}

func TestStartStopReachesStoppedOnce(t *testing.T) {
	tickers := newManualTickers()
	clock := &fakeClock{}
	states := make(chan PlaybackState, 16)
	e := newTestEngine(t,
		WithClock(clock),
		WithTicker(tickers.newTicker),
		WithStateHook(func(s PlaybackState) { states <- s }),
	)

	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	in := tickers.next(t)
	for range fade.DefaultSteps / 2 {
		in.c <- time.Time{}
	}

	e.Stop()
	if e.State() != FadingOut {
		t.Fatalf("State = %v, want fading out", e.State())
	}
	out := tickers.next(t)

	prev := 1.0
	for range fade.DefaultSteps {
		out.c <- time.Time{}
		g := e.MasterGain()
		if g < 0 || g > 1 || g > prev {
			t.Fatalf("gain %v after %v", g, prev)
		}
		prev = g
	}
	waitFor(t, "stopped", func() bool { return e.State() == Stopped })

	var got []PlaybackState
	for len(got) < 3 {
		select {
		case s := <-states:
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("states = %v", got)
		}
	}
	if got[0] != Playing || got[1] != FadingOut || got[2] != Stopped {
		t.Fatalf("states = %v", got)
	}
	select {
	case s := <-states:
		t.Fatalf("unexpected extra state %v", s)
	case <-time.After(20 * time.Millisecond):
	}

	if starts, stops := clock.counts(); starts != 1 || stops != 1 {
		t.Fatalf("clock starts=%d stops=%d", starts, stops)
	}
	if !in.stopped.Load() {
		t.Fatal("fade-in ticker not stopped by Stop")
	}
	if e.MasterGain() != 0 {
		t.Fatalf("gain = %v, want 0", e.MasterGain())
	}
	if e.tapes[0].Playing() {
		t.Fatal("tape loop still playing after stop")
	}
}

func TestStartWhileFadingOutResumes(t *testing.T) {
	tickers := newManualTickers()
	clock := &fakeClock{}
	e := newTestEngine(t, WithClock(clock), WithTicker(tickers.newTicker))

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	in := tickers.next(t)
	for range fade.DefaultSteps {
		in.c <- time.Time{}
	}
	waitFor(t, "fade-in", func() bool { return e.MasterGain() == 1 })

	e.Stop()
	out := tickers.next(t)
	for range fade.DefaultSteps / 2 {
		out.c <- time.Time{}
	}

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if e.State() != Playing {
		t.Fatalf("State = %v, want playing", e.State())
	}
	in = tickers.next(t)
	for range fade.DefaultSteps {
		in.c <- time.Time{}
	}
	waitFor(t, "fade-in", func() bool { return e.MasterGain() == 1 })

	if e.State() != Playing {
		t.Fatalf("State = %v, want playing", e.State())
	}
	if starts, stops := clock.counts(); starts != 1 || stops != 0 {
		t.Fatalf("clock starts=%d stops=%d", starts, stops)
	}
	if !e.tapes[0].Playing() {
		t.Fatal("tape loop stopped by a cancelled fade-out")
	}
}

func TestStartFailureStaysStopped(t *testing.T) {
	boom := errors.New("device busy")
	e := newTestEngine(t, WithClock(&fakeClock{startErr: boom}))

	err := e.Start()
	if !errors.Is(err, ErrClockStart) || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want ErrClockStart wrapping the device error", err)
	}
	if e.State() != Stopped || e.MasterGain() != 0 {
		t.Fatalf("State = %v gain = %v", e.State(), e.MasterGain())
	}
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	clock := &fakeClock{}
	e := newTestEngine(t, WithClock(clock))

	e.Stop()
	if e.State() != Stopped {
		t.Fatalf("State = %v", e.State())
	}
	if _, stops := clock.counts(); stops != 0 {
		t.Fatalf("clock stopped %d times", stops)
	}
}

func TestBrownNoiseOnlyMatchesReference(t *testing.T) {
	const (
		seed = 7
		n    = 3 * 44100
	)
	e := newTestEngine(t, WithSeed(seed), WithFadeDurations(0, 0))
	e.SetNoiseParameters(NoiseParameters{Brown: 0.3, UserSpeed: 1})

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fade-in", func() bool { return e.MasterGain() == 1 })

	got := make([]float64, n)
	e.RenderMono(got)

	gen := signal.NewGenerator(signal.WithSeed(seed))
	want, err := gen.Noise(signal.Brown, 0.3, n)
	if err != nil {
		t.Fatal(err)
	}

	testutil.RequireFinite(t, got)
	testutil.RequireRelative(t, "brown rms", testutil.RMS(got[44100:]), testutil.RMS(want[44100:]), 0.02)

	peak, rms := e.Levels()
	if peak <= 0 || rms <= 0 || rms > peak {
		t.Fatalf("Levels() = %v, %v", peak, rms)
	}
}

func TestRenderIsSilentWhenStopped(t *testing.T) {
	e := newTestEngine(t)
	e.SetNoiseParameters(NoiseParameters{White: 1, UserSpeed: 1})

	out := make([]float32, 1024)
	e.Render(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %v, want silence at gain 0", i, v)
		}
	}
}

func TestRenderDuplicatesChannels(t *testing.T) {
	e := newTestEngine(t, WithFadeDurations(0, 0))
	e.SetNoiseParameters(NoiseParameters{Pink: 0.5, UserSpeed: 1})
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fade-in", func() bool { return e.MasterGain() == 1 })

	out := make([]float32, 2*3000)
	e.Render(out)

	var energy float64
	for i := 0; i < len(out); i += 2 {
		if out[i] != out[i+1] {
			t.Fatalf("frame %d: left %v right %v", i/2, out[i], out[i+1])
		}
		energy += float64(out[i]) * float64(out[i])
	}
	if energy == 0 {
		t.Fatal("render produced silence")
	}
}

func TestCloseStopsClockAndRejectsStart(t *testing.T) {
	clock := &fakeClock{}
	cfg := DefaultConfig()
	cfg.Assets = testAssets
	e, err := New(cfg, WithAssetOpener(sineOpener), WithLogger(quietLogger()), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if e.State() != Stopped || e.MasterGain() != 0 {
		t.Fatalf("State = %v gain = %v", e.State(), e.MasterGain())
	}
	if _, stops := clock.counts(); stops != 1 || !clock.closed {
		t.Fatalf("clock stops=%d closed=%v", stops, clock.closed)
	}
	if err := e.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close error = %v, want ErrClosed", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestPlaybackStateString(t *testing.T) {
	tests := map[PlaybackState]string{
		Stopped:          "stopped",
		Playing:          "playing",
		FadingOut:        "fading out",
		PlaybackState(9): "PlaybackState(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}
