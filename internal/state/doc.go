// Package state persists the pipeline's shared state in SQLite and is the only
// coordination point between the daemons.
//
// Three tables are kept: downloads (one row per remote file), volume_processing
// (one row per volume id), and product_generation (one row per volume and
// product type). Every status transition is a single conditional UPDATE so two
// workers racing on the same row cannot both claim it; reclaimed leases may
// still lead to a volume being processed twice, which callers must tolerate.
//
// Connections come from a small database/sql pool. Each connection is opened
// with WAL, foreign keys, a busy timeout, and immediate transactions, and every
// write additionally retries on SQLITE_BUSY with capped backoff.
//
// Schema changes bump schemaVersion; users clear the database to adopt them.
package state
