// Package config loads the hotswap host configuration.
//
// Configuration comes from three places, later ones overriding earlier:
//
//  1. Built-in defaults (Default)
//  2. A TOML file (Load)
//  3. HOTSWAP_* environment variables (ApplyEnv)
//
// Command line flags are applied by the caller on top of the result.
//
// # File format
//
//	[plugins]
//	dir = "plugins"
//	work_dir = ".hotswap"
//	max_depth = 5
//	watch = true
//	settle = "250ms"
//
//	[plugins.backoff]
//	initial = "500ms"
//	max = "30s"
//	multiplier = 2.0
//
//	[loop]
//	frames_per_tick = 60
//	frame_interval = "16ms"
//
//	[log]
//	level = "info"
//	format = "text"
//
//	[invoke]
//	slow_call = "100ms"
//
//	[[objects]]
//	name = "player"
//	traits = ["transform", "mesh"]
//	scripts = ["plugins/Player.so"]
package config
