package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cwbudde/soundtoy/engine"
)

// toy is the engine surface the keyboard drives.
type toy interface {
	Start() error
	Stop()
	State() engine.PlaybackState
	SetNoiseParameters(engine.NoiseParameters)
	NoiseParameters() engine.NoiseParameters
	SetTapeLoopControls([]engine.TapeLoopControl)
	TapeLoopControls() []engine.TapeLoopControl
	SetEffectParameters(engine.EffectParameters)
	EffectParameters() engine.EffectParameters
	SelectFilterPath(engine.FilterPath)
	FilterPath() engine.FilterPath
	HasUserLoop() bool
	Levels() (peak, rms float64)
}

type recorder interface {
	Start(ctx context.Context) error
	Stop() error
	IsRecording() bool
}

// levelSteps is the cycle for keys that step a level.
var levelSteps = []float64{0, 0.25, 0.5, 1}

const (
	cutoffSliderStep = 0.1
	delaySliderStep  = 0.1
)

// controller maps key presses to engine calls.
type controller struct {
	ctx context.Context
	toy toy
	rec recorder
	out io.Writer
}

func nextLevel(v float64) float64 {
	for _, s := range levelSteps {
		if s > v+1e-9 {
			return s
		}
	}

	return levelSteps[0]
}

func (c *controller) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\r\n", args...)
}

func (c *controller) help() {
	c.printf("space play/stop   h high-pass   r record   q quit")
	c.printf("1/2/3 brown/pink/white   t tape loops   u user loop")
	c.printf("d/v delay/reverb mix   x distortion   [ ] low-pass   , . delay time   s status")
}

// handle runs one key. It reports false when the program should exit.
func (c *controller) handle(key byte) bool {
	switch key {
	case ' ':
		c.togglePlay()
	case 'h':
		path := engine.Highpass
		if c.toy.FilterPath() == engine.Highpass {
			path = engine.Lowpass
		}
		c.toy.SelectFilterPath(path)
		c.printf("filter: %v", path)
	case 'r':
		c.toggleRecord()
	case '1', '2', '3':
		c.stepNoise(key)
	case 't':
		c.stepTapes()
	case 'u':
		c.stepUser()
	case 'd', 'v', 'x', '[', ']', ',', '.':
		c.stepEffect(key)
	case 's':
		c.status()
	case '?':
		c.help()
	case 'q', 3:
		return false
	}

	return true
}

func (c *controller) togglePlay() {
	if c.toy.State() == engine.Playing {
		c.toy.Stop()
		return
	}
	if err := c.toy.Start(); err != nil {
		c.printf("start failed: %v", err)
	}
}

func (c *controller) toggleRecord() {
	if c.rec.IsRecording() {
		if err := c.rec.Stop(); err != nil {
			c.printf("recording failed: %v", err)
		}
		return
	}
	if err := c.rec.Start(c.ctx); err != nil {
		c.printf("cannot record: %v", err)
		return
	}
	c.printf("recording... press r to stop")
}

func (c *controller) stepNoise(key byte) {
	p := c.toy.NoiseParameters()
	var name string
	var v float64
	switch key {
	case '1':
		p.Brown = nextLevel(p.Brown)
		name, v = "brown", p.Brown
	case '2':
		p.Pink = nextLevel(p.Pink)
		name, v = "pink", p.Pink
	default:
		p.White = nextLevel(p.White)
		name, v = "white", p.White
	}
	c.toy.SetNoiseParameters(p)
	c.printf("%s noise: %.2f", name, v)
}

func (c *controller) stepTapes() {
	controls := c.toy.TapeLoopControls()
	if len(controls) == 0 {
		return
	}
	v := nextLevel(controls[0].Volume)
	for i := range controls {
		controls[i].Volume = v
	}
	c.toy.SetTapeLoopControls(controls)
	c.printf("tape loops: %.2f", v)
}

func (c *controller) stepUser() {
	if !c.toy.HasUserLoop() {
		c.printf("no user loop: record one with r")
		return
	}
	p := c.toy.NoiseParameters()
	p.UserVolume = nextLevel(p.UserVolume)
	c.toy.SetNoiseParameters(p)
	c.printf("user loop: %.2f", p.UserVolume)
}

func (c *controller) stepEffect(key byte) {
	p := c.toy.EffectParameters()
	switch key {
	case 'd':
		p.DelayMix = nextLevel(p.DelayMix)
		p.DelayFeedback = p.DelayMix / 2
	case 'v':
		p.ReverbMix = nextLevel(p.ReverbMix)
	case 'x':
		p.DistortionMix = nextLevel(p.DistortionMix/engine.MaxMixPct) * engine.MaxMixPct
	case '[':
		p.LowpassCutoff = engine.SliderToCutoff(engine.CutoffToSlider(p.LowpassCutoff) - cutoffSliderStep)
	case ']':
		p.LowpassCutoff = engine.SliderToCutoff(engine.CutoffToSlider(p.LowpassCutoff) + cutoffSliderStep)
	case ',':
		p.DelayTime = engine.SliderToDelayTime(engine.DelayTimeToSlider(p.DelayTime) - delaySliderStep)
	case '.':
		p.DelayTime = engine.SliderToDelayTime(engine.DelayTimeToSlider(p.DelayTime) + delaySliderStep)
	}
	c.toy.SetEffectParameters(p)
	p = c.toy.EffectParameters()
	c.printf("distortion %.0f%%  low-pass %.0f Hz  delay %.2f s mix %.2f  reverb %.2f",
		p.DistortionMix, p.LowpassCutoff, p.DelayTime, p.DelayMix, p.ReverbMix)
}

func (c *controller) status() {
	peak, rms := c.toy.Levels()
	n := c.toy.NoiseParameters()
	c.printf("%v  filter %v  recording %v  user loop %v",
		c.toy.State(), c.toy.FilterPath(), c.rec.IsRecording(), c.toy.HasUserLoop())
	c.printf("noise %.2f/%.2f/%.2f  peak %.3f  rms %.3f", n.Brown, n.Pink, n.White, peak, rms)
}
