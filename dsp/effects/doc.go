// Package effects provides the single-input effect kernels of the sound toy
// chain.
//
// Subpackages:
//   - github.com/cwbudde/soundtoy/dsp/effects/dynamics
//   - github.com/cwbudde/soundtoy/dsp/effects/reverb
//
// Effects in this package:
//   - Varispeed: pull-based rate change (tape-style speed and pitch).
//   - Distortion: decimator, ring modulator, polynomial shaper and soft clip.
//   - BitCrusher: sample-and-hold decimation and bit-depth reduction.
//   - VariableDelay: feedback delay with a smoothed delay time, wet output only.
//
// Setters validate their input and return an error. Processing methods do
// not allocate.
package effects
