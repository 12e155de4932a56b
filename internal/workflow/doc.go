// Package workflow runs the pipeline daemons.
//
// Each daemon is driven by its own lane: a long-lived goroutine that runs one
// cycle, then sleeps for the daemon's poll interval. A cycle error is logged
// and followed by the error retry interval instead of ending the lane; only a
// stop request ends it. Lanes never call each other. All coordination goes
// through the state store.
//
// The Manager starts the enabled lanes, stops them gracefully (letting an
// in-flight cycle finish up to the shutdown timeout), and can restart a single
// lane with configuration overrides while the others keep running.
package workflow
