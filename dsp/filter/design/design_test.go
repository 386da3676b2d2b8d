package design

import (
	"math"
	"testing"

	"github.com/cwbudde/soundtoy/dsp/filter/biquad"
)

func mag(c biquad.Coefficients, f, sr float64) float64 {
	return math.Sqrt(c.MagnitudeSquared(f, sr))
}

func TestResonanceToQ(t *testing.T) {
	for _, tc := range []struct{ db, q float64 }{
		{0, 1},
		{20, 10},
		{40, 100},
		{-20, 0.1},
	} {
		if got := ResonanceToQ(tc.db); math.Abs(got-tc.q) > 1e-9 {
			t.Errorf("ResonanceToQ(%v) = %v, want %v", tc.db, got, tc.q)
		}
	}
}

func TestLowpassHighpassShape(t *testing.T) {
	sr := 48000.0
	f := 1000.0
	q := 1 / math.Sqrt2

	lp := Lowpass(f, q, sr)
	if !(mag(lp, 100, sr) > mag(lp, 10000, sr)) {
		t.Fatal("lowpass shape check failed")
	}
	if math.Abs(mag(lp, 10, sr)-1) > 1e-3 {
		t.Fatalf("lowpass DC gain = %v, want ~1", mag(lp, 10, sr))
	}

	hp := Highpass(f, q, sr)
	if !(mag(hp, 10000, sr) > mag(hp, 100, sr)) {
		t.Fatal("highpass shape check failed")
	}

	for _, c := range []biquad.Coefficients{lp, hp} {
		if !c.Stable() {
			t.Fatalf("unstable design: %+v", c)
		}
	}
}

func TestResonancePeaksNearCutoff(t *testing.T) {
	sr := 44100.0
	lp := Lowpass(2000, ResonanceToQ(20), sr)

	if got := 20 * math.Log10(mag(lp, 2000, sr)); got < 19 || got > 21 {
		t.Fatalf("resonant peak = %.2f dB, want ~20 dB", got)
	}
}

func TestCutoffAtNyquistIsLimited(t *testing.T) {
	sr := 44100.0

	lp := Lowpass(22050, 1, sr)
	if lp == (biquad.Coefficients{}) {
		t.Fatal("nyquist cutoff produced zero coefficients")
	}
	if !lp.Stable() {
		t.Fatal("limited design is unstable")
	}
	if g := mag(lp, 1000, sr); math.Abs(g-1) > 0.01 {
		t.Fatalf("limited lowpass should be transparent at 1 kHz, got %v", g)
	}

	if Lowpass(22050, 1, sr) != Lowpass(0.49*sr, 1, sr) {
		t.Fatal("frequencies above the limit should design like the limit")
	}
}

func TestInvalidInputs(t *testing.T) {
	for _, c := range []biquad.Coefficients{
		Lowpass(0, 1, 48000),
		Lowpass(math.NaN(), 1, 48000),
		Highpass(1000, 1, 0),
		Peak(1000, 3, 1, -1),
	} {
		if c != (biquad.Coefficients{}) {
			t.Fatalf("expected zero coefficients, got %+v", c)
		}
	}

	if got, want := Lowpass(1000, -1, 48000), Lowpass(1000, defaultQ, 48000); got != want {
		t.Fatal("invalid q should fall back to the default")
	}
}

func TestPeakGain(t *testing.T) {
	sr := 48000.0
	c := Peak(400, 1.0, 1, sr)

	if got := c.MagnitudeDB(400, sr); math.Abs(got-1.0) > 1e-6 {
		t.Fatalf("peak gain at center = %v dB, want 1 dB", got)
	}
	if got := c.MagnitudeDB(20, sr); math.Abs(got) > 0.05 {
		t.Fatalf("peak gain far from center = %v dB, want ~0", got)
	}
}
