// Package daemon wraps the workflow manager in a single-instance process.
//
// A flock on base_dir/radarflowd.lock prevents two daemons from sharing one
// state store. While running, the daemon periodically writes a JSON status
// snapshot next to the lock so the CLI can report daemon state without an
// IPC channel.
package daemon
