// Package main hosts the radarflow CLI entrypoint and command graph.
//
// The Cobra command tree starts and stops the daemon process, reports its
// status from the on-disk snapshot, and exposes maintenance operations on the
// state database. Heavy lifting lives in the internal packages; commands here
// resolve configuration and render output.
package main
