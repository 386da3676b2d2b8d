package loop_test

import (
	"fmt"

	"github.com/cwbudde/soundtoy/dsp/loop"
)

func ExamplePlayer() {
	buf, err := loop.NewBuffer([]float64{0.1, 0.2, 0.3}, 44100, loop.WithLoopAlignment(false))
	if err != nil {
		panic(err)
	}

	p, err := loop.NewPlayer(44100)
	if err != nil {
		panic(err)
	}
	p.LoadBuffer(buf)
	p.Play()

	out := make([]float64, 5)
	p.ProcessTo(out)
	fmt.Println(out)
	// Output:
	// [0.1 0.2 0.3 0.1 0.2]
}
