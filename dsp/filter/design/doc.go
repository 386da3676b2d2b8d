// Package design provides RBJ biquad coefficient designers.
//
// The functions in this package produce coefficients consumable by
// dsp/filter/biquad. Frequencies at or above [MaxCutoffRatio] times the
// sample rate are limited to that ratio, so a cutoff set to the Nyquist
// frequency still yields a usable, nearly transparent filter.
package design
