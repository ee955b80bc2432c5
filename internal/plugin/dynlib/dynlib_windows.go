//go:build windows

package dynlib

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/windows"
)

type nativeLibrary struct {
	mu     sync.Mutex
	path   string
	handle windows.Handle
}

type nativeOpener struct{}

// NewOpener returns an Opener backed by LoadLibrary.
func NewOpener() Opener {
	return nativeOpener{}
}

func (nativeOpener) Open(path string) (Library, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("LoadLibrary %s: %w", path, err)
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
	addr, err := windows.GetProcAddress(l.handle, name)
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
	if err := windows.FreeLibrary(h); err != nil {
		return fmt.Errorf("FreeLibrary %s: %w", l.path, err)
	}
	return nil
}
