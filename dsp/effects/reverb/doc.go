// Package reverb provides the algorithmic reverb of the effect chain.
//
// [Zita] is an eight-line feedback delay network in the style of Fons
// Adriaensen's zita-rev1: separate decay times below and above a crossover
// frequency, high-frequency damping, and a two-band peaking equalizer on the
// wet output.
package reverb
