package signal

import (
	"fmt"
	"math"
)

// Generator renders noise offline. Its output matches a streaming [Noise]
// source with the same seed sample for sample, which makes it the reference
// for graph tests.
type Generator struct {
	seed int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets the noise seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// NewGenerator returns a generator with seed 1 unless opts say otherwise.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{seed: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Seed returns the noise seed.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Noise renders samples of colored noise at amplitude in [0, 1].
func (g *Generator) Noise(color Color, amplitude float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("noise samples must be > 0: %d", samples)
	}
	if amplitude < minAmpl || amplitude > maxAmpl || math.IsNaN(amplitude) {
		return nil, fmt.Errorf("noise amplitude must be in [0, 1]: %f", amplitude)
	}

	src, err := NewNoise(color, g.seed)
	if err != nil {
		return nil, err
	}
	src.SetAmplitude(amplitude)

	out := make([]float64, samples)
	src.ProcessTo(out)

	return out, nil
}
