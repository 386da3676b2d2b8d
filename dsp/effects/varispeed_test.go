package effects

import (
	"math"
	"testing"

	"github.com/cwbudde/soundtoy/internal/testutil"
)

// rampSource emits 0, 1, 2, ... and counts what it was asked for.
type rampSource struct {
	next   float64
	pulled int
}

func (r *rampSource) ProcessTo(dst []float64) {
	for i := range dst {
		dst[i] = r.next
		r.next++
	}
	r.pulled += len(dst)
}

func TestVarispeedUnityRateIsDelayedCopy(t *testing.T) {
	src := &rampSource{}
	v, err := NewVarispeed(src, 64)
	if err != nil {
		t.Fatalf("NewVarispeed() error = %v", err)
	}

	out := make([]float64, 200)
	v.ProcessTo(out)

	for i := 3; i < len(out); i++ {
		if out[i] != float64(i-3) {
			t.Fatalf("index %d: got %v want %v", i, out[i], float64(i-3))
		}
	}
	if src.pulled != 200 {
		t.Fatalf("pulled %d samples, want 200", src.pulled)
	}
}

func TestVarispeedPullsRateTimesBlock(t *testing.T) {
	for _, rate := range []float64{0.25, 0.5, 1.5, 2, 4} {
		src := &rampSource{}
		v, err := NewVarispeed(src, 128)
		if err != nil {
			t.Fatal(err)
		}
		if err := v.SetRate(rate); err != nil {
			t.Fatal(err)
		}

		out := make([]float64, 128)
		for range 10 {
			v.ProcessTo(out)
		}

		want := rate * 1280
		if math.Abs(float64(src.pulled)-want) > 1 {
			t.Fatalf("rate %v: pulled %d, want ~%v", rate, src.pulled, want)
		}

		// On a ramp the output slope equals the rate.
		for i := 1; i < len(out); i++ {
			if d := out[i] - out[i-1]; math.Abs(d-rate) > 1e-9 {
				t.Fatalf("rate %v: slope %v at %d", rate, d, i)
			}
		}
	}
}

func TestVarispeedDoublesPitch(t *testing.T) {
	const sr = 48000.0

	sine := testutil.DeterministicSine(1000, sr, 1, 1<<16)
	src := &sliceSource{data: sine}

	v, err := NewVarispeed(src, 256)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.SetRate(2); err != nil {
		t.Fatal(err)
	}

	out := make([]float64, 4800)
	v.ProcessTo(out)

	crossings := 0
	for i := 101; i < len(out); i++ {
		if out[i-1] < 0 && out[i] >= 0 {
			crossings++
		}
	}

	// 4700 samples of 2 kHz at 48 kHz is about 196 cycles.
	if crossings < 190 || crossings > 200 {
		t.Fatalf("expected ~196 rising crossings, got %d", crossings)
	}
}

func TestVarispeedValidation(t *testing.T) {
	if _, err := NewVarispeed(nil, 64); err == nil {
		t.Fatal("expected nil source error")
	}
	if _, err := NewVarispeed(&rampSource{}, 0); err == nil {
		t.Fatal("expected block size error")
	}

	v, err := NewVarispeed(&rampSource{}, 64)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []float64{0.1, 5, math.NaN()} {
		if err := v.SetRate(r); err == nil {
			t.Fatalf("expected error for rate %v", r)
		}
	}
	if v.Rate() != 1 {
		t.Fatalf("rate changed by rejected calls: %v", v.Rate())
	}
}

type sliceSource struct {
	data []float64
	pos  int
}

func (s *sliceSource) ProcessTo(dst []float64) {
	for i := range dst {
		if s.pos < len(s.data) {
			dst[i] = s.data[s.pos]
			s.pos++
		} else {
			dst[i] = 0
		}
	}
}
