package engine

// RenderFunc fills dst with interleaved stereo float32 frames.
type RenderFunc func(dst []float32)

// Clock drives rendering. An output device is the usual clock: it calls
// the render function whenever it needs frames. Start and Stop are called
// from the control thread.
type Clock interface {
	Start(render RenderFunc) error
	Stop() error
}

// manualClock is the default clock. It never calls render; the caller
// drives [Engine.Render] or [Engine.RenderMono] directly.
type manualClock struct{}

func (manualClock) Start(RenderFunc) error { return nil }
func (manualClock) Stop() error            { return nil }
