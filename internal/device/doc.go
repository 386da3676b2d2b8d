// Package device binds the engine to the platform audio stack: an oto
// output stream that acts as the render clock and a malgo capture device
// for recordings.
package device
