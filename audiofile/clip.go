// Package audiofile decodes and encodes the audio clips the sound toy loops:
// bundled tape loops, user-picked files and microphone recordings.
//
// Decoded clips hold interleaved float64 samples in [-1, 1]. Clips are
// converted to the engine rate with [Clip.Resample] before playback.
package audiofile

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/soundtoy/dsp/resample"
)

var (
	// ErrUnsupportedFormat is returned for file types no decoder handles.
	ErrUnsupportedFormat = errors.New("audiofile: unsupported format")
	// ErrInvalidFile is returned when a file cannot be parsed.
	ErrInvalidFile = errors.New("audiofile: invalid file")
	// ErrEmptyClip is returned when a clip holds no frames.
	ErrEmptyClip = errors.New("audiofile: empty clip")
)

// Clip is a decoded block of interleaved audio.
type Clip struct {
	Samples    []float64
	Channels   int
	SampleRate float64
}

// NewClip validates and wraps interleaved samples. The slice is not copied.
func NewClip(samples []float64, channels int, sampleRate float64) (*Clip, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("clip channel count must be > 0: %d", channels)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("clip sample rate must be > 0: %f", sampleRate)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("clip sample count %d is not a multiple of %d channels", len(samples), channels)
	}

	return &Clip{Samples: samples, Channels: channels, SampleRate: sampleRate}, nil
}

// Frames returns the number of sample frames.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}

	return len(c.Samples) / c.Channels
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}

	return time.Duration(math.Round(float64(c.Frames()) / c.SampleRate * float64(time.Second)))
}

// Mono returns the channel average.
func (c *Clip) Mono() []float64 {
	frames := c.Frames()
	out := make([]float64, frames)
	if c.Channels == 1 {
		copy(out, c.Samples)
		return out
	}

	scale := 1 / float64(c.Channels)
	for i := range out {
		var sum float64
		for ch := range c.Channels {
			sum += c.Samples[i*c.Channels+ch]
		}
		out[i] = sum * scale
	}

	return out
}

// Channel returns a copy of one channel.
func (c *Clip) Channel(ch int) ([]float64, error) {
	if ch < 0 || ch >= c.Channels {
		return nil, fmt.Errorf("clip channel must be in [0, %d]: %d", c.Channels-1, ch)
	}

	out := make([]float64, c.Frames())
	for i := range out {
		out[i] = c.Samples[i*c.Channels+ch]
	}

	return out, nil
}

// Resample returns the clip converted to sampleRate. A clip already at
// that rate is returned unchanged.
func (c *Clip) Resample(sampleRate float64, opts ...resample.Option) (*Clip, error) {
	if sampleRate == c.SampleRate {
		return c, nil
	}

	var out []float64
	for ch := range c.Channels {
		in, err := c.Channel(ch)
		if err != nil {
			return nil, err
		}
		conv, err := resample.Convert(in, c.SampleRate, sampleRate, opts...)
		if err != nil {
			return nil, fmt.Errorf("audiofile: resample channel %d: %w", ch, err)
		}
		if out == nil {
			out = make([]float64, len(conv)*c.Channels)
		}
		for i, v := range conv {
			out[i*c.Channels+ch] = v
		}
	}

	return NewClip(out, c.Channels, sampleRate)
}
