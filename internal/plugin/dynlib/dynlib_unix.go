//go:build darwin || freebsd || linux

package dynlib

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

type nativeLibrary struct {
	mu     sync.Mutex
	path   string
	handle uintptr
}

type nativeOpener struct{}

// NewOpener returns an Opener backed by the platform loader.
func NewOpener() Opener {
	return nativeOpener{}
}

// Open maps the library with RTLD_NOW so unresolved references fail here
// rather than at first call, and RTLD_LOCAL so two generations of the same
// plugin never satisfy each other's symbols.
func (nativeOpener) Open(path string) (Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	return &nativeLibrary{path: path, handle: h}, nil
}

func (l *nativeLibrary) Path() string {
	return l.path
}

func (l *nativeLibrary) Bind(name string, fptr any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle == 0 {
		return false
	}
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return false
	}
	purego.RegisterFunc(fptr, addr)
	return true
}

func (l *nativeLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle == 0 {
		return nil
	}
	h := l.handle
	l.handle = 0
	if err := purego.Dlclose(h); err != nil {
		return fmt.Errorf("dlclose %s: %w", l.path, err)
	}
	return nil
}
