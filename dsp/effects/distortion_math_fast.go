//go:build fastmath

package effects

import "github.com/meko-christian/algo-approx"

// softClip approximates tanh(x) = (e^2x - 1) / (e^2x + 1).
func softClip(x float64) float64 {
	switch {
	case x > 9:
		return 1
	case x < -9:
		return -1
	}

	e := approx.FastExp(2 * x)

	return (e - 1) / (e + 1)
}
