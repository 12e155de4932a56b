// Package logs reads the daemon log for `radarflow logs`.
//
// Tail prints the last N lines of the current log, optionally filtered by a
// line predicate, then keeps polling for appended lines in follow mode. The
// daemon rotates to a new file per run behind the radarflow.log pointer, so
// follow mode reopens the pointer when its target changes.
package logs
