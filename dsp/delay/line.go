// Package delay provides the circular delay line shared by the echo,
// reverb and limiter stages.
package delay

import (
	"fmt"
	"math"

	"github.com/cwbudde/soundtoy/dsp/interp"
)

// Line is a circular delay line. It never allocates after construction.
type Line struct {
	buffer   []float64
	writePos int
}

// New returns a delay line of fixed size.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delay size must be > 0: %d", size)
	}

	return &Line{buffer: make([]float64, size)}, nil
}

// NewForDuration returns a line that can delay by up to maxSeconds at
// sampleRate, with guard samples for cubic interpolation.
func NewForDuration(maxSeconds, sampleRate float64) (*Line, error) {
	if maxSeconds <= 0 || math.IsNaN(maxSeconds) || math.IsInf(maxSeconds, 0) {
		return nil, fmt.Errorf("delay duration must be > 0: %f", maxSeconds)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("delay sample rate must be > 0: %f", sampleRate)
	}

	return New(int(math.Ceil(maxSeconds*sampleRate)) + 4)
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// MaxDelay returns the longest fractional delay ReadFractional can serve.
func (d *Line) MaxDelay() float64 {
	return float64(len(d.buffer) - 3)
}

// Write writes one sample.
func (d *Line) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// Read reads an integer delay in samples. Read(1) is the most recent sample.
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	readPos := (d.writePos - delay) % size
	if readPos < 0 {
		readPos += size
	}

	return d.buffer[readPos]
}

// ReadFractional reads with cubic Hermite interpolation. The delay is
// limited to [2, MaxDelay] so all four taps hold written history.
func (d *Line) ReadFractional(delay float64) float64 {
	if delay < 2 || math.IsNaN(delay) {
		delay = 2
	}
	if maxDelay := d.MaxDelay(); delay > maxDelay {
		delay = maxDelay
	}

	return interp.HermiteRing(d.buffer, float64(d.writePos)-delay)
}

// Reset clears line state.
func (d *Line) Reset() {
	clear(d.buffer)
	d.writePos = 0
}
