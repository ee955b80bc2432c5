package plugin

import (
	"sync"
	"time"

	"github.com/dshills/hotswap/internal/engine"
)

// noNode is the node name reported for calls not tied to a scene object.
const noNode = "-"

// CallStats counts calls into one plugin.
type CallStats struct {
	Calls     int64
	Faults    int64
	SlowCalls int64
	LastFault string
}

// Invoker is the boundary every engine-to-plugin call goes through.
//
// A panic raised while a plugin entry point runs is recovered at the
// boundary, logged with the node name, the plugin source path and the entry
// point, and never propagates into the caller. The same holds for a fault
// the runtime converts into a panic. A hardware fault inside foreign code
// that the runtime cannot convert (SIGSEGV in C without a Go frame) still
// terminates the process; Go offers no way to trap it.
//
// Invoker is safe for concurrent use, but the frame loop only calls it from
// the main goroutine.
type Invoker struct {
	log  Logger
	slow time.Duration

	mu    sync.Mutex
	stats map[string]*CallStats
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithSlowCallThreshold logs a warning for any call still running after d.
// The call is not interrupted. Zero disables the watchdog.
func WithSlowCallThreshold(d time.Duration) InvokerOption {
	return func(iv *Invoker) {
		iv.slow = d
	}
}

// NewInvoker creates an invoker that reports faults to log.
func NewInvoker(log Logger, opts ...InvokerOption) *Invoker {
	iv := &Invoker{
		log:   orNop(log),
		stats: make(map[string]*CallStats),
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// call runs fn and reports whether it returned without panicking.
func (iv *Invoker) call(node, path string, e EntryPoint, fn func()) (ok bool) {
	iv.record(path, func(s *CallStats) { s.Calls++ })

	var watchdog *time.Timer
	if iv.slow > 0 {
		slow := iv.slow
		watchdog = time.AfterFunc(slow, func() {
			iv.record(path, func(s *CallStats) { s.SlowCalls++ })
			iv.log.Warn("plugin %s: %s on node %q still running after %s", path, e.Symbol(), node, slow)
		})
	}

	defer func() {
		if watchdog != nil {
			watchdog.Stop()
		}
		if r := recover(); r != nil {
			ok = false
			iv.record(path, func(s *CallStats) {
				s.Faults++
				s.LastFault = e.Symbol()
			})
			iv.log.Error("plugin %s: %s faulted on node %q: %v", path, e.Symbol(), node, r)
		}
	}()

	fn()
	return true
}

func (iv *Invoker) record(path string, fn func(*CallStats)) {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	s, ok := iv.stats[path]
	if !ok {
		s = &CallStats{}
		iv.stats[path] = s
	}
	fn(s)
}

// Stats returns the counters for the plugin at path.
func (iv *Invoker) Stats(path string) CallStats {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	if s, ok := iv.stats[path]; ok {
		return *s
	}
	return CallStats{}
}

// Forget drops the counters for path.
func (iv *Invoker) Forget(path string) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	delete(iv.stats, path)
}

// Load calls PluginLoadProtocol. It reports false on a fault or when the
// plugin returns false.
func (iv *Invoker) Load(path string, ep EntryPoints, ctx, logger Handle) bool {
	var res bool
	ok := iv.call(noNode, path, EntryLoad, func() {
		res = ep.Load(uintptr(ctx), uintptr(logger))
	})
	return ok && res
}

// Reload calls PluginReloadProtocol.
func (iv *Invoker) Reload(path string, ep EntryPoints, ctx, logger Handle) bool {
	var res bool
	ok := iv.call(noNode, path, EntryReload, func() {
		res = ep.Reload(uintptr(ctx), uintptr(logger))
	})
	return ok && res
}

// Unload calls PluginUnloadProtocol.
func (iv *Invoker) Unload(path string, ep EntryPoints) bool {
	var res bool
	ok := iv.call(noNode, path, EntryUnload, func() {
		res = ep.Unload()
	})
	return ok && res
}

// Start calls PluginStartProtocol for obj.
func (iv *Invoker) Start(obj Scripted, link CodeLink) bool {
	var res bool
	ok := iv.call(obj.Name(), link.SourcePath, EntryStart, func() {
		res = link.Entry.Start(obj.Ref())
	})
	return ok && res
}

// Update calls PluginUpdateProtocol for obj.
func (iv *Invoker) Update(obj Scripted, link CodeLink) bool {
	var res bool
	ok := iv.call(obj.Name(), link.SourcePath, EntryUpdate, func() {
		res = link.Entry.Update(obj.Ref())
	})
	return ok && res
}

// End calls PluginEndProtocol for obj.
func (iv *Invoker) End(obj Scripted, link CodeLink) bool {
	var res bool
	ok := iv.call(obj.Name(), link.SourcePath, EntryEnd, func() {
		res = link.Entry.End(obj.Ref())
	})
	return ok && res
}

// Mouse calls PluginOnMouse.
func (iv *Invoker) Mouse(obj Scripted, link CodeLink, button, action, mods int32) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnMouse, func() {
		link.Entry.OnMouse(obj.Ref(), button, action, mods)
	})
}

// MouseMove calls PluginOnMouseMove.
func (iv *Invoker) MouseMove(obj Scripted, link CodeLink, x, y float64) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnMouseMove, func() {
		link.Entry.OnMouseMove(obj.Ref(), x, y)
	})
}

// MouseDrag calls PluginOnMouseDrag.
func (iv *Invoker) MouseDrag(obj Scripted, link CodeLink, x, y float64) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnMouseDrag, func() {
		link.Entry.OnMouseDrag(obj.Ref(), x, y)
	})
}

// MouseScroll calls PluginOnMouseScroll.
func (iv *Invoker) MouseScroll(obj Scripted, link CodeLink, dx, dy float64) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnMouseScroll, func() {
		link.Entry.OnMouseScroll(obj.Ref(), dx, dy)
	})
}

// Keyboard calls PluginOnKeyboard.
func (iv *Invoker) Keyboard(obj Scripted, link CodeLink, key, scancode, action, mods int32) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnKeyboard, func() {
		link.Entry.OnKeyboard(obj.Ref(), key, scancode, action, mods)
	})
}

// WindowResize calls PluginOnWindowResize.
func (iv *Invoker) WindowResize(obj Scripted, link CodeLink, width, height int32) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnWindowResize, func() {
		link.Entry.OnWindowResize(obj.Ref(), width, height)
	})
}

// WindowDragDrop calls PluginOnWindowDragDrop once per path. It stops at
// the first fault.
func (iv *Invoker) WindowDragDrop(obj Scripted, link CodeLink, paths []string) bool {
	for _, p := range paths {
		ok := iv.call(obj.Name(), link.SourcePath, EntryOnWindowDragDrop, func() {
			link.Entry.OnWindowDragDrop(obj.Ref(), p)
		})
		if !ok {
			return false
		}
	}
	return true
}

// WindowIconify calls PluginOnWindowIconify.
func (iv *Invoker) WindowIconify(obj Scripted, link CodeLink) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnWindowIconify, func() {
		link.Entry.OnWindowIconify(obj.Ref())
	})
}

// WindowIconifyRestore calls PluginOnWindowIconifyRestore.
func (iv *Invoker) WindowIconifyRestore(obj Scripted, link CodeLink) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnWindowIconifyRestore, func() {
		link.Entry.OnWindowIconifyRestore(obj.Ref())
	})
}

// WindowMaximize calls PluginOnWindowMaximize.
func (iv *Invoker) WindowMaximize(obj Scripted, link CodeLink) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnWindowMaximize, func() {
		link.Entry.OnWindowMaximize(obj.Ref())
	})
}

// WindowMaximizeRestore calls PluginOnWindowMaximizeRestore.
func (iv *Invoker) WindowMaximizeRestore(obj Scripted, link CodeLink) bool {
	return iv.call(obj.Name(), link.SourcePath, EntryOnWindowMaximizeRestore, func() {
		link.Entry.OnWindowMaximizeRestore(obj.Ref())
	})
}

// Dispatch routes ev to the matching callback of link.
func (iv *Invoker) Dispatch(obj Scripted, link CodeLink, ev engine.InputEvent) bool {
	switch ev.Kind {
	case engine.InputMouseButton:
		return iv.Mouse(obj, link, ev.Button, ev.Action, ev.Mods)
	case engine.InputMouseMove:
		return iv.MouseMove(obj, link, ev.X, ev.Y)
	case engine.InputMouseDrag:
		return iv.MouseDrag(obj, link, ev.X, ev.Y)
	case engine.InputMouseScroll:
		return iv.MouseScroll(obj, link, ev.X, ev.Y)
	case engine.InputKey:
		return iv.Keyboard(obj, link, ev.Key, ev.Scancode, ev.Action, ev.Mods)
	case engine.InputWindowResize:
		return iv.WindowResize(obj, link, ev.Width, ev.Height)
	case engine.InputWindowDrop:
		return iv.WindowDragDrop(obj, link, ev.Paths)
	case engine.InputWindowIconify:
		return iv.WindowIconify(obj, link)
	case engine.InputWindowIconifyRestore:
		return iv.WindowIconifyRestore(obj, link)
	case engine.InputWindowMaximize:
		return iv.WindowMaximize(obj, link)
	case engine.InputWindowMaximizeRestore:
		return iv.WindowMaximizeRestore(obj, link)
	default:
		return true
	}
}
