// Package fade ramps a gain between silence and full level in fixed steps.
//
// Each request cancels the ramp in flight and continues from the current
// gain, so a fade-out interrupted by a fade-in never jumps. Ticks of a
// superseded ramp are dropped by a generation counter, and its completion
// callback never runs.
package fade

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// DefaultSteps is the number of gain updates per fade.
	DefaultSteps = 100
	// DefaultFadeIn is the start-up fade length.
	DefaultFadeIn = 2 * time.Second
	// DefaultFadeOut is the stop fade length.
	DefaultFadeOut = 4 * time.Second
)

// Gain is the value a Controller drives. [core.Param] satisfies it.
type Gain interface {
	Load() float64
	Store(v float64)
}

// State is the controller phase.
type State int

const (
	// Idle means no ramp is running.
	Idle State = iota
	// FadingIn ramps toward 1.
	FadingIn
	// FadingOut ramps toward 0.
	FadingOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FadingIn:
		return "fading in"
	case FadingOut:
		return "fading out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Ticker delivers step ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Option configures a Controller.
type Option func(*Controller) error

// WithSteps sets the number of gain updates per fade.
func WithSteps(n int) Option {
	return func(c *Controller) error {
		if n <= 0 {
			return fmt.Errorf("fade steps must be > 0: %d", n)
		}
		c.steps = n

		return nil
	}
}

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Controller) error {
		if newTicker == nil {
			return fmt.Errorf("fade ticker constructor must not be nil")
		}
		c.newTicker = newTicker

		return nil
	}
}

// Controller runs one ramp at a time on its own goroutine.
type Controller struct {
	target    Gain
	steps     int
	newTicker func(time.Duration) Ticker

	mu    sync.Mutex
	gen   uint64
	state State
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New returns an idle controller driving target.
func New(target Gain, opts ...Option) (*Controller, error) {
	if target == nil {
		return nil, fmt.Errorf("fade target must not be nil")
	}

	c := &Controller{
		target:    target,
		steps:     DefaultSteps,
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// FadeIn ramps the gain to 1 over d.
func (c *Controller) FadeIn(d time.Duration) {
	c.start(FadingIn, d, nil)
}

// FadeOut ramps the gain to 0 over d, then calls onComplete on the fade
// goroutine. onComplete is skipped if another request supersedes the fade.
func (c *Controller) FadeOut(d time.Duration, onComplete func()) {
	c.start(FadingOut, d, onComplete)
}

// Cancel stops the ramp in flight and leaves the gain where it is.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.supersede()
	c.state = Idle
}

// Wait blocks until every started ramp goroutine has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// supersede invalidates the running ramp. c.mu must be held.
func (c *Controller) supersede() uint64 {
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}

	return c.gen
}

func (c *Controller) start(kind State, d time.Duration, onComplete func()) {
	c.mu.Lock()
	gen := c.supersede()
	stop := make(chan struct{})
	c.stop = stop
	c.state = kind
	from := clampUnit(c.target.Load())
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(gen, stop, kind, from, d/time.Duration(c.steps), onComplete)
}

func (c *Controller) run(gen uint64, stop <-chan struct{}, kind State, from float64, interval time.Duration, onComplete func()) {
	defer c.wg.Done()

	var tick <-chan time.Time
	if interval > 0 {
		t := c.newTicker(interval)
		defer t.Stop()
		tick = t.C()
	}

	for step := 1; step <= c.steps; step++ {
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		}

		p := float64(step) / float64(c.steps)
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.target.Store(Curve(kind, from, p))
		if step == c.steps {
			c.state = Idle
			c.stop = nil
		}
		c.mu.Unlock()
	}

	if kind == FadingOut && onComplete != nil {
		onComplete()
	}
}

// Curve returns the gain at progress p in [0, 1] of a ramp that started at
// gain from. A fade-in from silence is p², a fade-out from full level is
// (1-p)²; other start points continue on the same square-law curve.
func Curve(kind State, from, p float64) float64 {
	from = clampUnit(from)
	p = clampUnit(p)
	t0 := math.Sqrt(from)

	var v float64
	switch kind {
	case FadingIn:
		v = t0 + (1-t0)*p
	case FadingOut:
		v = t0 * (1 - p)
	default:
		return from
	}

	return clampUnit(v * v)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
