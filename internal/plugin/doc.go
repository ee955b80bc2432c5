// Package plugin hot-loads native plugin libraries into a running host.
//
// A plugin is a dynamic library (.so, .dylib or .dll) exporting any subset
// of seventeen C-ABI entry points. Symbols a library does not export are
// bound to no-ops, so every call site can invoke every entry point without
// checking.
//
// # Quick Start
//
//	inv := plugin.NewInvoker(log)
//	reg := plugin.NewRegistry(
//	    plugin.WithRegistryObjects(scene),
//	    plugin.WithRegistryInvoker(inv),
//	    plugin.WithRegistryLogger(log),
//	    plugin.WithRegistryWorkDir(".hotswap"),
//	)
//	scan := plugin.NewScanner(reg, plugin.DefaultScannerConfig())
//
//	// once per tick
//	scan.Scan(ec)
//	scan.WatchFS(queue)
//
//	// at shutdown, after every object's links were ended
//	reg.UnloadAll()
//
// # Entry Points
//
//	PluginLoadProtocol(ctx, logger) bool     first load
//	PluginReloadProtocol(ctx, logger) bool   after each hot reload
//	PluginStartProtocol(obj) bool            object gains a link
//	PluginUpdateProtocol(obj) bool           once per frame per link
//	PluginEndProtocol(obj) bool              object loses a link
//	PluginUnloadProtocol() bool              before the library is closed
//	PluginOnMouse, PluginOnMouseMove, PluginOnMouseDrag,
//	PluginOnMouseScroll, PluginOnKeyboard, PluginOnWindowResize,
//	PluginOnWindowDragDrop, PluginOnWindowIconify,
//	PluginOnWindowIconifyRestore, PluginOnWindowMaximize,
//	PluginOnWindowMaximizeRestore            input forwarding
//
// ctx and logger are Handles; resolve them with ContextFromHandle and
// LoggerFromHandle. obj is the scene object reference.
//
// # Working Copies
//
// The host never maps a plugin's source file. Each (re)load copies the
// source into the work directory and maps the copy, so the toolchain can
// overwrite the source while the old generation is still running.
//
// # Reload
//
// Instance.Reload runs in this order:
//
//  1. PluginEndProtocol for every object linked to the plugin, then the
//     link is removed
//  2. the old library is closed
//  3. the source is copied and mapped again, symbols are rebound
//  4. PluginReloadProtocol
//  5. every affected object gets a fresh CodeLink, then
//     PluginStartProtocol through it
//
// If step 3 fails the instance is dead: nothing is invoked until a later
// reload succeeds, and that reload relinks the objects the failed one
// unlinked.
//
// # Fault Isolation
//
// Every call goes through an Invoker, which recovers panics at the
// boundary and logs the node, the plugin and the entry point. See the
// Invoker documentation for what cannot be recovered.
//
// # Lifecycle
//
//	Unloaded -> Loaded -> (Reload) -> Loaded
//	                   -> (Reload fails) -> Dead -> (Reload) -> Loaded
//	Unloaded -> (Load fails) -> Error
package plugin
