// Package config loads, validates, and normalizes muse configuration.
//
// Configuration lives in a TOML file (default ~/.config/muse/config.toml)
// and is decoded over repository defaults, so a partial file is always
// valid. Path fields are expanded (~ and relative segments) during load.
package config
