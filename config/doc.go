// Package config loads runtime settings.
//
// Settings are layered: Default, then a TOML file (only keys present in
// the file apply), then HOTSWAP_* environment variables, then CLI flags
// applied by the caller. Durations are written as Go duration strings:
//
//	dir = "target"
//	name = "counter"
//	profile = "debug"
//	poll_interval = "500ms"
//	call_timeout = "2s"
//
// NewLogger builds the zap logger the rest of the process uses.
package config
