package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/soundtoy/engine"
)

type fakeToy struct {
	state   engine.PlaybackState
	noise   engine.NoiseParameters
	tapes   []engine.TapeLoopControl
	effects engine.EffectParameters
	path    engine.FilterPath
	user    bool
}

func newFakeToy() *fakeToy {
	return &fakeToy{
		noise:   engine.DefaultNoiseParameters(),
		tapes:   []engine.TapeLoopControl{engine.DefaultTapeLoopControl("a"), engine.DefaultTapeLoopControl("b")},
		effects: engine.DefaultEffectParameters(),
	}
}

func (f *fakeToy) Start() error                                   { f.state = engine.Playing; return nil }
func (f *fakeToy) Stop()                                          { f.state = engine.FadingOut }
func (f *fakeToy) State() engine.PlaybackState                    { return f.state }
func (f *fakeToy) SetNoiseParameters(p engine.NoiseParameters)    { f.noise = p.Clamp() }
func (f *fakeToy) NoiseParameters() engine.NoiseParameters        { return f.noise }
func (f *fakeToy) SetTapeLoopControls(c []engine.TapeLoopControl) { f.tapes = c }
func (f *fakeToy) TapeLoopControls() []engine.TapeLoopControl {
	return append([]engine.TapeLoopControl(nil), f.tapes...)
}
func (f *fakeToy) SetEffectParameters(p engine.EffectParameters) { f.effects = p.Clamp() }
func (f *fakeToy) EffectParameters() engine.EffectParameters     { return f.effects }
func (f *fakeToy) SelectFilterPath(p engine.FilterPath)          { f.path = p }
func (f *fakeToy) FilterPath() engine.FilterPath                 { return f.path }
func (f *fakeToy) HasUserLoop() bool                             { return f.user }
func (f *fakeToy) Levels() (float64, float64)                    { return 0.5, 0.25 }

type fakeRecorder struct {
	recording bool
	starts    int
	stops     int
}

func (r *fakeRecorder) Start(context.Context) error { r.recording = true; r.starts++; return nil }
func (r *fakeRecorder) Stop() error                 { r.recording = false; r.stops++; return nil }
func (r *fakeRecorder) IsRecording() bool           { return r.recording }

func newTestController() (*controller, *fakeToy, *fakeRecorder, *bytes.Buffer) {
	toy := newFakeToy()
	rec := &fakeRecorder{}
	out := &bytes.Buffer{}

	return &controller{ctx: context.Background(), toy: toy, rec: rec, out: out}, toy, rec, out
}

func TestNextLevelCycles(t *testing.T) {
	v := 0.0
	var got []float64
	for range 5 {
		v = nextLevel(v)
		got = append(got, v)
	}
	want := []float64{0.25, 0.5, 1, 0, 0.25}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d = %v, want %v", i, got[i], want[i])
		}
	}
	if nextLevel(0.3) != 0.5 {
		t.Fatalf("nextLevel(0.3) = %v", nextLevel(0.3))
	}
}

func TestPlayToggle(t *testing.T) {
	c, toy, _, _ := newTestController()

	c.handle(' ')
	if toy.state != engine.Playing {
		t.Fatalf("state = %v, want playing", toy.state)
	}
	c.handle(' ')
	if toy.state != engine.FadingOut {
		t.Fatalf("state = %v, want fading out", toy.state)
	}
}

func TestHighPassToggle(t *testing.T) {
	c, toy, _, out := newTestController()

	c.handle('h')
	if toy.path != engine.Highpass {
		t.Fatalf("path = %v", toy.path)
	}
	c.handle('h')
	if toy.path != engine.Lowpass {
		t.Fatalf("path = %v", toy.path)
	}
	if !strings.Contains(out.String(), "filter: highpass\r\n") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRecordToggle(t *testing.T) {
	c, _, rec, _ := newTestController()

	c.handle('r')
	c.handle('r')
	if rec.starts != 1 || rec.stops != 1 || rec.recording {
		t.Fatalf("starts=%d stops=%d recording=%v", rec.starts, rec.stops, rec.recording)
	}
}

func TestNoiseAndEffectKeys(t *testing.T) {
	c, toy, _, _ := newTestController()

	c.handle('1')
	c.handle('2')
	c.handle('2')
	c.handle('3')
	if toy.noise.Brown != 0.25 || toy.noise.Pink != 0.5 || toy.noise.White != 0.25 {
		t.Fatalf("noise = %+v", toy.noise)
	}

	c.handle('d')
	c.handle('v')
	c.handle('x')
	if toy.effects.DelayMix != 0.25 || toy.effects.DelayFeedback != 0.125 {
		t.Fatalf("delay = %v / %v", toy.effects.DelayMix, toy.effects.DelayFeedback)
	}
	if toy.effects.ReverbMix != 0.25 || toy.effects.DistortionMix != 25 {
		t.Fatalf("effects = %+v", toy.effects)
	}

	c.handle('[')
	if toy.effects.LowpassCutoff >= engine.MaxCutoff {
		t.Fatalf("cutoff = %v, want lowered", toy.effects.LowpassCutoff)
	}
	before := toy.effects.DelayTime
	c.handle('.')
	if toy.effects.DelayTime <= before {
		t.Fatalf("delay time = %v, want above %v", toy.effects.DelayTime, before)
	}
}

func TestTapeAndUserKeys(t *testing.T) {
	c, toy, _, out := newTestController()

	c.handle('t')
	for _, tc := range toy.tapes {
		if tc.Volume != 0.25 {
			t.Fatalf("tape %s volume = %v", tc.Name, tc.Volume)
		}
	}

	c.handle('u')
	if toy.noise.UserVolume != 0 || !strings.Contains(out.String(), "no user loop") {
		t.Fatal("user key changed volume without a user loop")
	}
	toy.user = true
	c.handle('u')
	if toy.noise.UserVolume != 0.25 {
		t.Fatalf("user volume = %v", toy.noise.UserVolume)
	}
}

func TestQuitKeys(t *testing.T) {
	c, _, _, _ := newTestController()

	if !c.handle('s') {
		t.Fatal("status key quit")
	}
	if c.handle('q') || c.handle(3) {
		t.Fatal("q and ctrl-c should quit")
	}
}

func TestReadKeysStopsAtQuit(t *testing.T) {
	c, toy, _, _ := newTestController()

	readKeys(context.Background(), strings.NewReader(" 1q3"), c)
	if toy.state != engine.Playing || toy.noise.Brown != 0.25 {
		t.Fatalf("state = %v brown = %v", toy.state, toy.noise.Brown)
	}
	if toy.noise.White != 0 {
		t.Fatal("key after quit was handled")
	}
}

func TestPumpKeysReturnsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	keys := make(chan byte)
	done := make(chan struct{})
	go func() {
		pumpKeys(ctx, strings.NewReader("abc"), keys)
		close(done)
	}()

	if k := <-keys; k != 'a' {
		t.Fatalf("first key = %q, want 'a'", k)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pumpKeys blocked after cancel with nobody reading")
	}
	for range keys {
	}
}

func TestCRLFWriter(t *testing.T) {
	var b bytes.Buffer
	n, err := crlfWriter{&b}.Write([]byte("a\nb\n"))
	if err != nil || n != 4 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if b.String() != "a\r\nb\r\n" {
		t.Fatalf("got %q", b.String())
	}
}
