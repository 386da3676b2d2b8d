// Package signal provides the noise sources of the pre-mix bus and offline
// test-signal generators.
package signal
