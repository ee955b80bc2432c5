package plugin

import (
	"sync"
	"sync/atomic"

	"github.com/dshills/hotswap/internal/engine"
)

// Handle is an opaque token for a Go value handed across the native
// boundary. Native code cannot hold Go pointers, so the engine context and
// logger are passed as handles and resolved on the Go side.
type Handle uintptr

var (
	handles    sync.Map // Handle -> any
	handleNext atomic.Uintptr
)

// NewHandle registers v and returns its handle. The zero Handle is never
// returned; it stands for "no value".
func NewHandle(v any) Handle {
	h := Handle(handleNext.Add(1))
	handles.Store(h, v)
	return h
}

// Value returns the value registered for h.
func (h Handle) Value() (any, bool) {
	if h == 0 {
		return nil, false
	}
	return handles.Load(h)
}

// Delete releases h. Deleting an unknown or zero handle is a no-op.
func (h Handle) Delete() {
	if h != 0 {
		handles.Delete(h)
	}
}

// ContextFromHandle resolves the ctx argument of PluginLoadProtocol and
// PluginReloadProtocol.
func ContextFromHandle(h uintptr) (*engine.Context, bool) {
	v, ok := Handle(h).Value()
	if !ok {
		return nil, false
	}
	ec, ok := v.(*engine.Context)
	return ec, ok
}

// LoggerFromHandle resolves the logger argument of PluginLoadProtocol and
// PluginReloadProtocol.
func LoggerFromHandle(h uintptr) (Logger, bool) {
	v, ok := Handle(h).Value()
	if !ok {
		return nil, false
	}
	l, ok := v.(Logger)
	return l, ok
}
