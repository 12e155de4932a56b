// Package services defines shared utilities consumed by the daemons and the
// external collaborators they drive.
//
// Key responsibilities:
//   - Context helpers that stamp daemon names, sources, volume ids, product
//     types, and cycle correlation ids for logging.
//   - Structured error markers plus the Wrap helper, and ErrorKind, which maps a
//     failure onto the error_type persisted for product records.
package services
