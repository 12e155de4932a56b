// Package config loads, normalizes, and validates radarflow configuration.
//
// Configuration is read from TOML (explicit path, ~/.config/radarflow/config.toml,
// or ./radarflow.toml) and decoded over Default(). Normalization expands paths and
// canonicalizes the per-source volume-type grammar; Validate rejects values the
// daemons cannot run with. The typed field style table replaces any by-name
// attribute lookups when rendering products.
package config
