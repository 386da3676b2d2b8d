package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// MalgoCapture records from the default input device as interleaved
// float32 frames.
type MalgoCapture struct {
	sampleRate int
	channels   int
	log        logrus.FieldLogger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	dev *malgo.Device

	sink    atomic.Pointer[func([]float32)]
	samples []float32
}

// NewMalgoCapture returns a capture for the given format. The device is
// opened on Start.
func NewMalgoCapture(sampleRate, channels int, log logrus.FieldLogger) (*MalgoCapture, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("capture sample rate must be > 0: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("capture channel count must be > 0: %d", channels)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &MalgoCapture{
		sampleRate: sampleRate,
		channels:   channels,
		log:        log,
		samples:    make([]float32, 4096),
	}, nil
}

// Start opens the input device and streams frames to sink.
func (c *MalgoCapture) Start(sink func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return fmt.Errorf("device: capture already running")
	}
	if c.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
			c.log.WithField("backend", "malgo").Debug(msg)
		})
		if err != nil {
			return fmt.Errorf("device: init capture context: %w", err)
		}
		c.ctx = ctx
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(c.channels)
	cfg.SampleRate = uint32(c.sampleRate)

	c.sink.Store(&sink)
	dev, err := malgo.InitDevice(c.ctx.Context, cfg, malgo.DeviceCallbacks{Data: c.onData})
	if err != nil {
		c.sink.Store(nil)
		return fmt.Errorf("device: open capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		c.sink.Store(nil)
		return fmt.Errorf("device: start capture: %w", err)
	}
	c.dev = dev
	c.log.WithFields(logrus.Fields{
		"sample_rate": c.sampleRate,
		"channels":    c.channels,
	}).Debug("capture started")

	return nil
}

func (c *MalgoCapture) onData(_, input []byte, frames uint32) {
	sink := c.sink.Load()
	if sink == nil {
		return
	}

	n := min(int(frames)*c.channels, len(input)/4)
	if len(c.samples) < n {
		c.samples = make([]float32, n)
	}
	samples := c.samples[:n]
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[4*i:]))
	}
	(*sink)(samples)
}

// Stop closes the input device. The sink receives no frames afterwards.
func (c *MalgoCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil
	}
	err := c.dev.Stop()
	c.dev.Uninit()
	c.dev = nil
	c.sink.Store(nil)

	return err
}

// Close stops capture and releases the backend context.
func (c *MalgoCapture) Close() error {
	err := c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx != nil {
		if uerr := c.ctx.Uninit(); uerr != nil && err == nil {
			err = uerr
		}
		c.ctx.Free()
		c.ctx = nil
	}

	return err
}
