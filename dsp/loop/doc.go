// Package loop provides gap-free looping sample playback.
//
// A [Buffer] holds one mono loop at a fixed sample rate. Construction moves
// the loop end to the position whose following samples best match the loop
// head (FFT cross-correlation) and crossfades the tail into the head, so the
// wrap from the last sample to the first is continuous.
//
// A [Player] renders a Buffer with independent pitch (cents) and speed
// (time stretch). Parameters may be changed from a control goroutine while
// another goroutine renders; the render side only performs atomic loads and
// never allocates.
package loop
