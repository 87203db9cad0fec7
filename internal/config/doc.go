// Package config loads, normalizes, and validates episodegen configuration.
//
// Configuration lives in a TOML file (default ~/.config/episodegen/config.toml)
// with one section per subsystem. Load applies defaults, expands paths, pulls
// provider credentials from well-known environment variables when the file
// omits them, and validates the result before handing it to callers.
package config
