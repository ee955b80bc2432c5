// Package engine defines the live engine subsystems that plugins are handed
// when they load: the application descriptor, window, renderer, physics
// backend, active scene and an optional profiler.
//
// The subsystems themselves (OpenGL/Vulkan renderers, physics backends,
// windowing) live elsewhere. This package only carries the narrow
// interfaces the plugin host and the frame loop call, the Context bundle
// passed to PluginLoadProtocol and PluginReloadProtocol, and headless
// implementations used when no real backend is attached.
//
// # Context
//
// A Context is a read/write capability bundle, not owned by the plugin.
// Every load and reload gets a fresh Snapshot so a plugin never observes a
// bundle that was later mutated under it:
//
//	ec := &engine.Context{
//	    App:      &engine.Descriptor{Name: "hotswap", Version: "dev"},
//	    Quit:     &quit,
//	    Window:   engine.NullWindow{},
//	    Renderer: engine.NewNullRenderer(),
//	    Physics:  engine.NewNullPhysics(),
//	}
//	snap := ec.Snapshot()
package engine
