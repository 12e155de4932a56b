// Package download implements the download daemon.
//
// Each cycle resolves a resume point per source (the later of the configured
// start date and the newest completed download), walks the remote
// YYYY/MM/DD/HH/MMSS hierarchy from there, keeps names accepted by the
// source's volume-type grammar, and fetches the ones not yet recorded as
// completed. Transfers share one semaphore across sources and retry with
// capped exponential backoff plus jitter. Every outcome, success or final
// failure, is written to the state store; nothing a single file does can end
// the cycle.
//
// Files land in <base>/bufr/<source>/<YYYYMMDD>/<name> through a ".part"
// temporary so readers never see a half-written file.
package download
