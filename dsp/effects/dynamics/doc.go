// Package dynamics provides the output protection stage of the effect chain.
//
// [PeakLimiter] delays the program by a short lookahead, pulls the gain down
// ahead of peaks, and hard-limits whatever the smoothed gain misses, so its
// output never exceeds the ceiling.
package dynamics
