//go:build !fastmath

package effects

import "math"

// softClip is the saturating curve of the distortion output stage.
func softClip(x float64) float64 {
	return math.Tanh(x)
}
