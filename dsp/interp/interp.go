package interp

// Linear2 interpolates between x0 and x1 at t in [0, 1].
func Linear2(t, x0, x1 float64) float64 {
	return x0 + t*(x1-x0)
}

// Hermite4 computes cubic 4-point interpolation.
// It interpolates from x0 to x1 using neighbor points xm1 and x2.
func Hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)
	return ((c3*t+c2)*t+c1)*t + c0
}

// HermiteRing reads a ring buffer at fractional index pos using Hermite4.
// pos may be any finite value; it wraps modulo len(ring).
func HermiteRing(ring []float64, pos float64) float64 {
	n := len(ring)
	if n == 0 {
		return 0
	}

	i := int(pos)
	if pos < 0 && float64(i) != pos {
		i--
	}
	t := pos - float64(i)

	i %= n
	if i < 0 {
		i += n
	}

	im1 := i - 1
	if im1 < 0 {
		im1 += n
	}
	i1 := i + 1
	if i1 >= n {
		i1 -= n
	}
	i2 := i1 + 1
	if i2 >= n {
		i2 -= n
	}

	return Hermite4(t, ring[im1], ring[i], ring[i1], ring[i2])
}
