// Package biquad provides the second-order IIR section used by the
// resonant filter paths and the reverb equalizers.
//
// A [Section] implements Direct Form II Transposed processing for a single
// second-order section defined by [Coefficients]. Coefficient design lives in
// dsp/filter/design.
package biquad
