package biquad

import (
	"math"
	"testing"
)

const eps = 1e-12

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

var smoothing = Coefficients{B0: 0.25, B1: 0.5, B2: 0.25, A1: -0.2, A2: 0.04}

func TestProcessSample_DFIIT(t *testing.T) {
	// n=0: y=0.25, d0=0.55, d1=0.24
	// n=1: y=0.55, d0=0.35, d1=-0.022
	// n=2: y=0.35, d0=0.048, d1=-0.014
	s := NewSection(smoothing)

	want := []float64{0.25, 0.55, 0.35, 0.048}
	for i, w := range want {
		var x float64
		if i == 0 {
			x = 1
		}

		if y := s.ProcessSample(x); !almostEqual(y, w, eps) {
			t.Errorf("sample %d: got %.15f, want %.15f", i, y, w)
		}
	}
}

func TestProcessBlock_MatchesSample(t *testing.T) {
	input := []float64{1, 0.5, -0.3, 0.7, 0, -1, 0.2, 0.8, -0.1}

	s1 := NewSection(smoothing)
	ref := make([]float64, len(input))
	for i, x := range input {
		ref[i] = s1.ProcessSample(x)
	}

	s2 := NewSection(smoothing)
	block := append([]float64(nil), input...)
	s2.ProcessBlock(block)

	s3 := NewSection(smoothing)
	dst := make([]float64, len(input))
	s3.ProcessBlockTo(dst, input)

	for i := range ref {
		if !almostEqual(block[i], ref[i], eps) {
			t.Errorf("ProcessBlock sample %d: %.15f want %.15f", i, block[i], ref[i])
		}
		if !almostEqual(dst[i], ref[i], eps) {
			t.Errorf("ProcessBlockTo sample %d: %.15f want %.15f", i, dst[i], ref[i])
		}
	}
}

func TestProcessSample_PureDelay(t *testing.T) {
	s := NewSection(Coefficients{B1: 1})
	input := []float64{1, 2, 3, 4, 5}
	want := []float64{0, 1, 2, 3, 4}

	for i, x := range input {
		if y := s.ProcessSample(x); !almostEqual(y, want[i], eps) {
			t.Errorf("sample %d: got %v, want %v", i, y, want[i])
		}
	}
}

func TestIdentityPassesThrough(t *testing.T) {
	s := NewSection(Identity())
	buf := []float64{1, -0.5, 0.25}
	s.ProcessBlock(buf)

	if buf[0] != 1 || buf[1] != -0.5 || buf[2] != 0.25 {
		t.Fatalf("identity altered input: %v", buf)
	}
}

func TestResetAndState(t *testing.T) {
	s := NewSection(smoothing)
	s.ProcessSample(1)
	s.ProcessSample(0.5)

	saved := s.State()
	if saved == [2]float64{} {
		t.Fatal("state should be non-zero after processing")
	}

	y3 := s.ProcessSample(-0.3)
	s.SetState(saved)
	if y3b := s.ProcessSample(-0.3); !almostEqual(y3, y3b, eps) {
		t.Fatalf("restore mismatch: %v vs %v", y3b, y3)
	}

	s.Reset()
	if st := s.State(); st != [2]float64{} {
		t.Fatalf("state not zero after reset: %v", st)
	}
}

func TestSetCoefficientsKeepsState(t *testing.T) {
	s := NewSection(smoothing)
	s.ProcessSample(1)
	before := s.State()

	s.SetCoefficients(Identity())
	if s.State() != before {
		t.Fatal("SetCoefficients reset the delay state")
	}
}

func TestProcessBlockRecoversFromNaN(t *testing.T) {
	s := NewSection(smoothing)
	buf := []float64{math.NaN(), 0, 0}
	s.ProcessBlock(buf)

	next := []float64{1}
	s.ProcessBlock(next)
	if math.IsNaN(next[0]) {
		t.Fatal("NaN latched in section state")
	}
}

func TestStable(t *testing.T) {
	if !smoothing.Stable() {
		t.Fatal("smoothing section should be stable")
	}

	unstable := Coefficients{B0: 1, A1: -2.1, A2: 1.2}
	if unstable.Stable() {
		t.Fatal("pole outside the unit circle reported stable")
	}
}

func TestMagnitudeDBMatchesResponse(t *testing.T) {
	for _, f := range []float64{50, 1000, 8000, 20000} {
		h := smoothing.Response(f, 48000)
		want := 20 * math.Log10(math.Hypot(real(h), imag(h)))

		if got := smoothing.MagnitudeDB(f, 48000); !almostEqual(got, want, 1e-9) {
			t.Errorf("f=%v: MagnitudeDB=%v want %v", f, got, want)
		}
	}
}
