package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when no plugin is registered for a path.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyLoaded is returned when registering a path twice.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrLoad is wrapped by every failure to open or initialize a library.
	ErrLoad = errors.New("plugin load failed")

	// ErrLoadRejected is returned when PluginLoadProtocol reports failure.
	ErrLoadRejected = errors.New("plugin rejected load")

	// ErrReload is wrapped by every failed reload. The instance is dead
	// afterwards.
	ErrReload = errors.New("plugin reload failed")

	// ErrWorkPathInUse is returned when two sources map to the same
	// working copy.
	ErrWorkPathInUse = errors.New("plugin working copy path already in use")
)

// OpError records a failed plugin operation and the library it targeted.
type OpError struct {
	Op   string // "load", "reload", "unload", ...
	Path string // source path of the plugin
	Err  error
}

// NewOpError creates a new OpError.
func NewOpError(op, path string, err error) *OpError {
	return &OpError{Op: op, Path: path, Err: err}
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
