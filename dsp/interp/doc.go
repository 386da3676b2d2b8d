// Package interp provides the fractional-read primitives shared by the
// delay lines, the varispeed stage and the loop players.
//
//   - [Linear2]:  2-point linear interpolation
//   - [Hermite4]: 4-point cubic Hermite (default for audible paths)
package interp
