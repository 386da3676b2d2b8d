package effects

import (
	"math"
	"testing"

	"github.com/cwbudde/soundtoy/internal/testutil"
)

func TestDelayMixGainsSumToOne(t *testing.T) {
	for i := 0; i <= 100; i++ {
		mix := float64(i) / 100
		wet, dry := DelayMixGains(mix)

		if wet+dry != 1 && math.Abs(wet+dry-1) > 1e-15 {
			t.Fatalf("mix %v: wet %v + dry %v != 1", mix, wet, dry)
		}
		if dry != math.Abs(mix-1) {
			t.Fatalf("mix %v: dry gain %v is not |mix-1|", mix, dry)
		}
	}
}

func TestVariableDelayImpulse(t *testing.T) {
	const sr = 1000.0

	d, err := NewVariableDelay(sr, WithVariableDelayTime(0.01), WithVariableDelayMaxTime(1))
	if err != nil {
		t.Fatalf("NewVariableDelay() error = %v", err)
	}

	in := testutil.Impulse(64, 0)
	out := make([]float64, len(in))
	d.ProcessTo(out, in)

	// Read happens before write, so a 10-sample delay lands at index 10.
	for i, v := range out {
		want := 0.0
		if i == 10 {
			want = 1
		}
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("index %d: got %v want %v", i, v, want)
		}
	}
}

func TestVariableDelayFeedbackRepeats(t *testing.T) {
	d, err := NewVariableDelay(1000,
		WithVariableDelayTime(0.01),
		WithVariableDelayMaxTime(1),
		WithVariableDelayFeedback(0.5),
	)
	if err != nil {
		t.Fatal(err)
	}

	in := testutil.Impulse(40, 0)
	out := make([]float64, len(in))
	d.ProcessTo(out, in)

	for _, tc := range []struct {
		i    int
		want float64
	}{{10, 1}, {20, 0.5}, {30, 0.25}} {
		if math.Abs(out[tc.i]-tc.want) > 1e-9 {
			t.Fatalf("echo at %d: got %v want %v", tc.i, out[tc.i], tc.want)
		}
	}
}

func TestVariableDelayTimeGlides(t *testing.T) {
	d, err := NewVariableDelay(44100, WithVariableDelayTime(0.1))
	if err != nil {
		t.Fatal(err)
	}

	if err := d.SetTime(0.2); err != nil {
		t.Fatal(err)
	}

	d.ProcessSample(0)
	if d.delaySamples <= 0.1*44100 || d.delaySamples >= 0.2*44100 {
		t.Fatalf("delay should glide, got %v samples", d.delaySamples)
	}

	for range 44100 {
		d.ProcessSample(0)
	}
	if math.Abs(d.delaySamples-0.2*44100) > 1 {
		t.Fatalf("delay did not settle: %v samples", d.delaySamples)
	}
}

func TestVariableDelayValidation(t *testing.T) {
	d, err := NewVariableDelay(44100)
	if err != nil {
		t.Fatal(err)
	}
	if d.MaxTime() != 5 || d.Time() != 0.73 || d.Feedback() != 0 {
		t.Fatalf("unexpected defaults: max=%v time=%v fb=%v", d.MaxTime(), d.Time(), d.Feedback())
	}

	if err := d.SetTime(5.5); err == nil {
		t.Fatal("expected error above max time")
	}
	if err := d.SetTime(0.0001); err == nil {
		t.Fatal("expected error below min time")
	}
	if err := d.SetFeedback(1.2); err == nil {
		t.Fatal("expected feedback error")
	}
	if _, err := NewVariableDelay(44100, WithVariableDelayMaxTime(1), WithVariableDelayTime(2)); err == nil {
		t.Fatal("expected initial time above max to fail")
	}
}
