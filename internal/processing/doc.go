// Package processing implements the processing daemon.
//
// Volumes move pending -> processing -> completed or failed. A volume left in
// processing past the stuck timeout is forced back to pending at the start of
// the next cycle, even if its worker is still alive, so the decoder must
// tolerate seeing the same volume twice.
//
// Each cycle runs the stuck reset, refreshes completeness for every source,
// then decodes all eligible pending volumes with at most max_concurrent in
// flight. Incomplete volumes become eligible only with allow_incomplete set and
// once they are older than incomplete_timeout_hours.
package processing
