package design_test

import (
	"fmt"

	"github.com/cwbudde/soundtoy/dsp/filter/design"
)

func ExampleLowpass() {
	c := design.Lowpass(1000, design.ResonanceToQ(0), 48000)

	fmt.Printf("100 Hz:   %.2f dB\n", c.MagnitudeDB(100, 48000))
	fmt.Printf("10000 Hz: %.2f dB\n", c.MagnitudeDB(10000, 48000))
	// Output:
	// 100 Hz:   0.04 dB
	// 10000 Hz: -42.71 dB
}
