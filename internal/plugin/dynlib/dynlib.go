// Package dynlib opens native dynamic libraries and binds their exported
// symbols to Go function values.
//
// The package is a thin layer over the operating system loader: dlopen on
// unix-like systems (through purego, so cgo is not required) and
// LoadLibrary on Windows. Unlike the standard library plugin package, a
// Library can be closed, which is what makes hot reload possible.
package dynlib

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
)

// Errors returned by library operations.
var (
	// ErrUnsupported is returned on platforms without a dynamic loader.
	ErrUnsupported = errors.New("dynamic libraries are not supported on this platform")

	// ErrClosed is returned when operating on a closed library.
	ErrClosed = errors.New("library is closed")
)

// Library is one live mapping of a dynamic library.
type Library interface {
	// Path returns the path the library was opened from.
	Path() string

	// Bind resolves the exported symbol name and stores a callable for it in
	// fptr, which must be a pointer to a function variable. It reports false
	// when the symbol is absent; fptr is left untouched in that case.
	Bind(name string, fptr any) bool

	// Close unmaps the library. Closing a closed library is a no-op.
	Close() error
}

// Opener opens libraries. The native implementation is returned by
// NewOpener; tests substitute their own.
type Opener interface {
	Open(path string) (Library, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Library, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Library, error) {
	return f(path)
}

// Extension returns the conventional dynamic library extension for the
// running platform, including the leading dot.
func Extension() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin", "ios":
		return ".dylib"
	default:
		return ".so"
	}
}

// IsLibrary reports whether path carries a dynamic library extension for
// the running platform. ".so" is accepted on every unix-like system.
func IsLibrary(path string) bool {
	ext := filepath.Ext(path)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(ext, ".dll")
	}
	return ext == ".so" || ext == Extension()
}
