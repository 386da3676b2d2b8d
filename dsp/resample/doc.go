// Package resample converts sample rates with a polyphase FIR.
//
// Decoded clips arrive at whatever rate they were recorded with; Convert
// brings a whole clip to the engine rate with the filter delay removed.
// Converter streams block by block for longer material.
//
//	mode            taps/phase
//	QualityFast     16
//	QualityBalanced 32
//	QualityBest     64
package resample
