package plugin

import (
	"github.com/dshills/hotswap/internal/plugin/dynlib"
)

// Native signatures of the entry points. Pointers never cross the
// boundary: ctx and logger are Handles, obj is the scene object reference.
type (
	ProtocolFunc func(ctx, logger uintptr) bool
	ObjectFunc   func(obj uintptr) bool
	UnloadFunc   func() bool
	MouseFunc    func(obj uintptr, button, action, mods int32)
	CursorFunc   func(obj uintptr, x, y float64)
	KeyboardFunc func(obj uintptr, key, scancode, action, mods int32)
	ResizeFunc   func(obj uintptr, width, height int32)
	DropFunc     func(obj uintptr, path string)
	WindowFunc   func(obj uintptr)
)

// EntryPoint identifies one of the recognized plugin entry points.
type EntryPoint int

// Entry points, in symbol table order.
const (
	EntryLoad EntryPoint = iota
	EntryReload
	EntryStart
	EntryUpdate
	EntryEnd
	EntryUnload
	EntryOnMouse
	EntryOnMouseMove
	EntryOnMouseDrag
	EntryOnMouseScroll
	EntryOnKeyboard
	EntryOnWindowResize
	EntryOnWindowDragDrop
	EntryOnWindowIconify
	EntryOnWindowIconifyRestore
	EntryOnWindowMaximize
	EntryOnWindowMaximizeRestore

	entryCount
)

var entrySymbols = [entryCount]string{
	EntryLoad:                    "PluginLoadProtocol",
	EntryReload:                  "PluginReloadProtocol",
	EntryStart:                   "PluginStartProtocol",
	EntryUpdate:                  "PluginUpdateProtocol",
	EntryEnd:                     "PluginEndProtocol",
	EntryUnload:                  "PluginUnloadProtocol",
	EntryOnMouse:                 "PluginOnMouse",
	EntryOnMouseMove:             "PluginOnMouseMove",
	EntryOnMouseDrag:             "PluginOnMouseDrag",
	EntryOnMouseScroll:           "PluginOnMouseScroll",
	EntryOnKeyboard:              "PluginOnKeyboard",
	EntryOnWindowResize:          "PluginOnWindowResize",
	EntryOnWindowDragDrop:        "PluginOnWindowDragDrop",
	EntryOnWindowIconify:         "PluginOnWindowIconify",
	EntryOnWindowIconifyRestore:  "PluginOnWindowIconifyRestore",
	EntryOnWindowMaximize:        "PluginOnWindowMaximize",
	EntryOnWindowMaximizeRestore: "PluginOnWindowMaximizeRestore",
}

// Symbol returns the exported symbol name of the entry point.
func (e EntryPoint) Symbol() string {
	if e < 0 || e >= entryCount {
		return "unknown"
	}
	return entrySymbols[e]
}

// String returns the symbol name.
func (e EntryPoint) String() string {
	return e.Symbol()
}

// EntryPointList returns every recognized entry point in table order.
func EntryPointList() []EntryPoint {
	out := make([]EntryPoint, entryCount)
	for i := range out {
		out[i] = EntryPoint(i)
	}
	return out
}

// EntryPoints is the bound entry-point table of one library generation.
// Every field is always callable: symbols the library does not export are
// bound to no-ops that succeed and do nothing.
type EntryPoints struct {
	Load                    ProtocolFunc
	Reload                  ProtocolFunc
	Start                   ObjectFunc
	Update                  ObjectFunc
	End                     ObjectFunc
	Unload                  UnloadFunc
	OnMouse                 MouseFunc
	OnMouseMove             CursorFunc
	OnMouseDrag             CursorFunc
	OnMouseScroll           CursorFunc
	OnKeyboard              KeyboardFunc
	OnWindowResize          ResizeFunc
	OnWindowDragDrop        DropFunc
	OnWindowIconify         WindowFunc
	OnWindowIconifyRestore  WindowFunc
	OnWindowMaximize        WindowFunc
	OnWindowMaximizeRestore WindowFunc

	// bit i set: EntryPoint(i) is a no-op substitute
	missing uint32
}

func noopProtocol(uintptr, uintptr) bool { return true }
func noopObject(uintptr) bool { return true }
func noopUnload() bool { return true }
func noopMouse(uintptr, int32, int32, int32) {}
func noopCursor(uintptr, float64, float64) {}
func noopKeyboard(uintptr, int32, int32, int32, int32) {}
func noopResize(uintptr, int32, int32) {}
func noopDrop(uintptr, string) {}
func noopWindow(uintptr) {}

// NoopEntryPoints returns a table with every entry point bound to a no-op.
func NoopEntryPoints() EntryPoints {
	return EntryPoints{
		Load:                    noopProtocol,
		Reload:                  noopProtocol,
		Start:                   noopObject,
		Update:                  noopObject,
		End:                     noopObject,
		Unload:                  noopUnload,
		OnMouse:                 noopMouse,
		OnMouseMove:             noopCursor,
		OnMouseDrag:             noopCursor,
		OnMouseScroll:           noopCursor,
		OnKeyboard:              noopKeyboard,
		OnWindowResize:          noopResize,
		OnWindowDragDrop:        noopDrop,
		OnWindowIconify:         noopWindow,
		OnWindowIconifyRestore:  noopWindow,
		OnWindowMaximize:        noopWindow,
		OnWindowMaximizeRestore: noopWindow,
		missing:                 1<<entryCount - 1,
	}
}

// BindEntryPoints resolves every recognized symbol in lib. Each symbol the
// library lacks keeps its no-op and is reported once as a warning naming
// the plugin and the symbol.
func BindEntryPoints(lib dynlib.Library, pluginName string, log Logger) EntryPoints {
	log = orNop(log)
	ep := NoopEntryPoints()

	for _, e := range EntryPointList() {
		if lib != nil && lib.Bind(e.Symbol(), ep.slot(e)) {
			ep.missing &^= 1 << e
			continue
		}
		log.Warn("plugin %s: symbol %s not exported, using no-op", pluginName, e.Symbol())
	}
	return ep
}

// slot returns a pointer to the field backing e.
func (ep *EntryPoints) slot(e EntryPoint) any {
	switch e {
	case EntryLoad:
		return &ep.Load
	case EntryReload:
		return &ep.Reload
	case EntryStart:
		return &ep.Start
	case EntryUpdate:
		return &ep.Update
	case EntryEnd:
		return &ep.End
	case EntryUnload:
		return &ep.Unload
	case EntryOnMouse:
		return &ep.OnMouse
	case EntryOnMouseMove:
		return &ep.OnMouseMove
	case EntryOnMouseDrag:
		return &ep.OnMouseDrag
	case EntryOnMouseScroll:
		return &ep.OnMouseScroll
	case EntryOnKeyboard:
		return &ep.OnKeyboard
	case EntryOnWindowResize:
		return &ep.OnWindowResize
	case EntryOnWindowDragDrop:
		return &ep.OnWindowDragDrop
	case EntryOnWindowIconify:
		return &ep.OnWindowIconify
	case EntryOnWindowIconifyRestore:
		return &ep.OnWindowIconifyRestore
	case EntryOnWindowMaximize:
		return &ep.OnWindowMaximize
	case EntryOnWindowMaximizeRestore:
		return &ep.OnWindowMaximizeRestore
	default:
		return nil
	}
}

// Exports reports whether the library exported e (as opposed to e being a
// no-op substitute).
func (ep EntryPoints) Exports(e EntryPoint) bool {
	return e >= 0 && e < entryCount && ep.missing&(1<<e) == 0
}

// Missing returns the entry points bound to no-ops.
func (ep EntryPoints) Missing() []EntryPoint {
	var out []EntryPoint
	for _, e := range EntryPointList() {
		if !ep.Exports(e) {
			out = append(out, e)
		}
	}
	return out
}

// Complete reports whether every field is non-nil. It holds for any table
// built by NoopEntryPoints or BindEntryPoints.
func (ep EntryPoints) Complete() bool {
	return ep.Load != nil && ep.Reload != nil &&
		ep.Start != nil && ep.Update != nil && ep.End != nil && ep.Unload != nil &&
		ep.OnMouse != nil && ep.OnMouseMove != nil && ep.OnMouseDrag != nil &&
		ep.OnMouseScroll != nil && ep.OnKeyboard != nil && ep.OnWindowResize != nil &&
		ep.OnWindowDragDrop != nil && ep.OnWindowIconify != nil &&
		ep.OnWindowIconifyRestore != nil && ep.OnWindowMaximize != nil &&
		ep.OnWindowMaximizeRestore != nil
}
