// Package dynlibtest provides an in-memory dynlib.Opener for tests.
//
// A fake library is defined per file base name with a set of Go functions
// keyed by symbol name. Opening a path requires the file to exist on disk,
// so working-copy and missing-file behavior is exercised for real, but the
// symbols come from the definition instead of the file contents.
//
// Every bound function is wrapped so that calling it after its library was
// closed panics. Tests use this to prove no call ever reaches a closed
// mapping.
package dynlibtest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/dshills/hotswap/internal/plugin/dynlib"
)

// Symbols maps exported symbol names to Go functions of the native
// signature, e.g. "PluginUpdateProtocol": func(obj uintptr) bool {...}.
type Symbols map[string]any

// ErrOpenFailed is returned for paths registered with FailOpen.
var ErrOpenFailed = errors.New("fake open failure")

// Opener is a fake dynlib.Opener.
type Opener struct {
	mu      sync.Mutex
	defs    map[string]Symbols
	failing map[string]bool
	events  []string
	libs    []*Library
}

// NewOpener creates an empty fake opener.
func NewOpener() *Opener {
	return &Opener{
		defs:    make(map[string]Symbols),
		failing: make(map[string]bool),
	}
}

// Define sets the symbols served for libraries whose base name is base.
// Redefining a base simulates a recompile: the next Open sees the new set.
func (o *Opener) Define(base string, syms Symbols) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.defs[base] = syms
}

// FailOpen makes every Open of base fail until cleared with fail=false.
func (o *Opener) FailOpen(base string, fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failing[base] = fail
}

// Record appends a free-form entry to the event log. Symbol functions call
// it to interleave their calls with open/close entries.
func (o *Opener) Record(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the event log.
func (o *Opener) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

// ResetEvents clears the event log.
func (o *Opener) ResetEvents() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = nil
}

// OpenCount returns how many libraries are currently open.
func (o *Opener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, l := range o.libs {
		if !l.Closed() {
			n++
		}
	}
	return n
}

// Open implements dynlib.Opener.
func (o *Opener) Open(path string) (dynlib.Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("fake open %s: %w", path, err)
	}

	base := filepath.Base(path)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failing[base] {
		return nil, fmt.Errorf("fake open %s: %w", path, ErrOpenFailed)
	}

	syms := make(Symbols, len(o.defs[base]))
	for k, v := range o.defs[base] {
		syms[k] = v
	}

	lib := &Library{owner: o, path: path, base: base, syms: syms}
	o.libs = append(o.libs, lib)
	o.events = append(o.events, "open "+base)
	return lib, nil
}

// Library is a fake dynlib.Library.
type Library struct {
	owner *Opener

	mu     sync.Mutex
	path   string
	base   string
	syms   Symbols
	closed bool
}

// Path implements dynlib.Library.
func (l *Library) Path() string {
	return l.path
}

// Closed reports whether Close was called.
func (l *Library) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Bind implements dynlib.Library.
func (l *Library) Bind(name string, fptr any) bool {
	l.mu.Lock()
	fn, ok := l.syms[name]
	closed := l.closed
	l.mu.Unlock()
	if !ok || closed {
		return false
	}

	target := reflect.ValueOf(fptr)
	if target.Kind() != reflect.Pointer || target.Elem().Kind() != reflect.Func {
		return false
	}
	src := reflect.ValueOf(fn)
	ft := target.Elem().Type()
	if !src.Type().ConvertibleTo(ft) {
		return false
	}
	src = src.Convert(ft)

	guarded := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		if l.Closed() {
			panic(fmt.Sprintf("call to %s in closed library %s", name, l.base))
		}
		return src.Call(args)
	})
	target.Elem().Set(guarded)
	return true
}

// Close implements dynlib.Library.
func (l *Library) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.owner.Record("close %s", l.base)
	return nil
}
