// Package preflight provides readiness checks run before the daemon starts
// and shown by "radarflow status": data directory access, free disk space,
// FTP reachability, and the configured collaborator commands.
//
// Each check is gated by the daemon that needs it; disabled daemons are skipped.
package preflight
