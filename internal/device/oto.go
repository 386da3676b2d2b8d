package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cwbudde/soundtoy/engine"
)

const (
	outputChannels = 2
	bytesPerSample = 4

	minRenderSamples = 4096
)

// OtoClock pulls stereo float32 frames from a render function whenever the
// output device needs them. oto allows one context per process, so create
// one clock and reuse it.
type OtoClock struct {
	ctx *oto.Context

	mu     sync.Mutex
	player *oto.Player

	render  atomic.Pointer[engine.RenderFunc]
	samples []float32
}

// NewOtoClock opens the default output device. bufferTime is the device
// buffer length; 0 lets oto choose.
func NewOtoClock(sampleRate int, bufferTime time.Duration) (*OtoClock, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("output sample rate must be > 0: %d", sampleRate)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: outputChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferTime,
	})
	if err != nil {
		return nil, fmt.Errorf("device: open output: %w", err)
	}
	<-ready

	return &OtoClock{
		ctx:     ctx,
		samples: make([]float32, renderBufferLen(sampleRate, bufferTime)),
	}, nil
}

// renderBufferLen returns the interleaved sample count of one device buffer,
// at least minRenderSamples.
func renderBufferLen(sampleRate int, bufferTime time.Duration) int {
	frames := int(math.Ceil(bufferTime.Seconds() * float64(sampleRate)))

	return max(frames*outputChannels, minRenderSamples)
}

// Start begins pulling frames from render.
func (c *OtoClock) Start(render engine.RenderFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ctx.Err(); err != nil {
		return err
	}
	c.render.Store(&render)
	if c.player == nil {
		c.player = c.ctx.NewPlayer(c)
	}
	c.player.Play()

	return nil
}

// Stop pauses the output stream.
func (c *OtoClock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.player != nil {
		c.player.Pause()
	}
	c.render.Store(nil)

	return nil
}

// Close releases the output stream.
func (c *OtoClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.render.Store(nil)
	if c.player == nil {
		return nil
	}
	err := c.player.Close()
	c.player = nil

	return err
}

// Read implements io.Reader for the oto player. It runs on oto's goroutine.
func (c *OtoClock) Read(p []byte) (int, error) {
	n := len(p) / bytesPerSample
	render := c.render.Load()
	if render == nil {
		clear(p)
		return len(p), nil
	}

	// Requests longer than the render buffer are filled in chunks.
	out := p
	for n > 0 {
		m := min(n, len(c.samples))
		m -= m % outputChannels
		if m == 0 {
			break
		}
		samples := c.samples[:m]
		(*render)(samples)
		for i, v := range samples {
			binary.LittleEndian.PutUint32(out[i*bytesPerSample:], math.Float32bits(v))
		}
		out = out[m*bytesPerSample:]
		n -= m
	}
	clear(out)

	return len(p), nil
}
