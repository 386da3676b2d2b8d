package loop

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

const (
	defaultCrossfade   = 0.010
	defaultSearchSpan  = 0.1
	maxMatchWindow     = 2048
	minMatchWindow     = 64
	maxCrossfadeSecond = 1.0
	maxSearchSpan      = 10.0
)

// ErrEmptyBuffer is returned when a buffer is built from no samples.
var ErrEmptyBuffer = errors.New("loop: empty buffer")

// BufferOption mutates buffer construction parameters.
type BufferOption func(*bufferConfig) error

type bufferConfig struct {
	align      bool
	crossfade  float64
	searchSpan float64
}

func defaultBufferConfig() bufferConfig {
	return bufferConfig{
		align:      true,
		crossfade:  defaultCrossfade,
		searchSpan: defaultSearchSpan,
	}
}

// WithLoopAlignment enables or disables loop-end alignment. Without it the
// samples are used unchanged.
func WithLoopAlignment(enabled bool) BufferOption {
	return func(cfg *bufferConfig) error {
		cfg.align = enabled

		return nil
	}
}

// WithCrossfade sets the tail-to-head crossfade length in seconds.
func WithCrossfade(seconds float64) BufferOption {
	return func(cfg *bufferConfig) error {
		if seconds < 0 || seconds > maxCrossfadeSecond || math.IsNaN(seconds) {
			return fmt.Errorf("loop crossfade must be in [0, %g]: %f", maxCrossfadeSecond, seconds)
		}
		cfg.crossfade = seconds

		return nil
	}
}

// WithSearchSpan sets how far before the end, in seconds, the loop end may
// move.
func WithSearchSpan(seconds float64) BufferOption {
	return func(cfg *bufferConfig) error {
		if seconds < 0 || seconds > maxSearchSpan || math.IsNaN(seconds) {
			return fmt.Errorf("loop search span must be in [0, %g]: %f", maxSearchSpan, seconds)
		}
		cfg.searchSpan = seconds

		return nil
	}
}

// Buffer is an immutable mono loop.
type Buffer struct {
	data       []float64
	sampleRate float64
	sourceLen  int
	aligned    bool
}

// NewBuffer copies samples into a new loop buffer.
func NewBuffer(samples []float64, sampleRate float64, opts ...BufferOption) (*Buffer, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyBuffer
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("loop sample rate must be > 0: %f", sampleRate)
	}

	cfg := defaultBufferConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	data := make([]float64, len(samples))
	copy(data, samples)

	b := &Buffer{
		data:       data,
		sampleRate: sampleRate,
		sourceLen:  len(samples),
	}

	if cfg.align {
		end, ok, err := findLoopEnd(data, int(cfg.searchSpan*sampleRate))
		if err != nil {
			return nil, err
		}
		if ok {
			crossfadeTail(data, end, int(cfg.crossfade*sampleRate))
			b.data = data[:end:end]
			b.aligned = true
		}
	}

	return b, nil
}

// Len returns the loop length in samples.
func (b *Buffer) Len() int { return len(b.data) }

// SourceLen returns the number of samples the buffer was built from.
func (b *Buffer) SourceLen() int { return b.sourceLen }

// SampleRate returns the buffer sample rate in Hz.
func (b *Buffer) SampleRate() float64 { return b.sampleRate }

// Duration returns the loop length in seconds.
func (b *Buffer) Duration() float64 { return float64(len(b.data)) / b.sampleRate }

// Aligned reports whether the loop end was moved to a matched position.
func (b *Buffer) Aligned() bool { return b.aligned }

// Samples returns the loop samples. The slice must not be modified.
func (b *Buffer) Samples() []float64 { return b.data }

// matchWindow returns the head length compared against the loop end.
func matchWindow(n int) int {
	return min(maxMatchWindow, n/4)
}

// findLoopEnd returns the end position e in [n-w-span, n-w] that maximizes
// the normalized correlation of data[e:e+w] with data[0:w].
func findLoopEnd(data []float64, span int) (int, bool, error) {
	n := len(data)
	w := matchWindow(n)
	if w < minMatchWindow || span <= 0 {
		return 0, false, nil
	}

	hi := n - w
	lo := max(hi-span, n/2)
	if lo > hi {
		return 0, false, nil
	}

	head := data[:w]
	headEnergy := energy(head)
	if headEnergy == 0 {
		return 0, false, nil
	}

	segment := data[lo : hi+w]
	corr, err := correlateFFT(segment, head)
	if err != nil {
		return 0, false, err
	}

	// Running energy of the candidate windows.
	segEnergy := energy(segment[:w])
	best := math.Inf(-1)
	bestLag := -1
	for lag := 0; lag <= hi-lo; lag++ {
		if lag > 0 {
			out := segment[lag-1]
			in := segment[lag+w-1]
			segEnergy += in*in - out*out
		}
		if segEnergy <= 1e-12*headEnergy {
			continue
		}
		score := corr[lag] / math.Sqrt(segEnergy*headEnergy)
		if score > best {
			best = score
			bestLag = lag
		}
	}
	if bestLag < 0 {
		return 0, false, nil
	}

	return lo + bestLag, true, nil
}

// correlateFFT returns c[lag] = sum_k segment[lag+k]*head[k] for
// lag in [0, len(segment)-len(head)].
func correlateFFT(segment, head []float64) ([]float64, error) {
	fftSize := nextPowerOf2(len(segment) + len(head) - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("loop: failed to create FFT plan: %w", err)
	}

	segPadded := make([]complex128, fftSize)
	headPadded := make([]complex128, fftSize)
	for i, v := range segment {
		segPadded[i] = complex(v, 0)
	}
	for i, v := range head {
		headPadded[i] = complex(v, 0)
	}

	segFreq := make([]complex128, fftSize)
	headFreq := make([]complex128, fftSize)
	if err := plan.Forward(segFreq, segPadded); err != nil {
		return nil, fmt.Errorf("loop: forward FFT failed: %w", err)
	}
	if err := plan.Forward(headFreq, headPadded); err != nil {
		return nil, fmt.Errorf("loop: forward FFT failed: %w", err)
	}

	for i := range segFreq {
		h := headFreq[i]
		segFreq[i] *= complex(real(h), -imag(h))
	}

	if err := plan.Inverse(segPadded, segFreq); err != nil {
		return nil, fmt.Errorf("loop: inverse FFT failed: %w", err)
	}

	lags := len(segment) - len(head) + 1
	out := make([]float64, lags)
	for i := range out {
		out[i] = real(segPadded[i])
	}

	return out, nil
}

// crossfadeTail blends the samples following the loop end into the head.
// The first head sample becomes data[end], continuing the tail exactly.
func crossfadeTail(data []float64, end, length int) {
	length = min(length, len(data)-end, end)
	for j := 0; j < length; j++ {
		s := math.Sin(0.5 * math.Pi * float64(j) / float64(length))
		g := s * s
		data[j] = data[j]*g + data[end+j]*(1-g)
	}
}

func energy(x []float64) float64 {
	return vecmath.DotProduct(x, x)
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
