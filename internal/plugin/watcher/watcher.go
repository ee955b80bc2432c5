// Package watcher reports changes to plugin libraries on disk.
//
// A Watcher wraps fsnotify, watching the plugin directory recursively and
// emitting an Event for every write, create or rename of a file. Forward
// feeds those events to a Notifier (the plugin registry), which flags the
// matching plugin for reload. The scanner's settle time takes care of
// coalescing the burst of writes a linker produces.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Changes reports whether op can leave a new library image behind.
func (op Op) Changes() bool {
	return op.Has(OpCreate) || op.Has(OpWrite) || op.Has(OpRename)
}

// Event represents a file system change event.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Stats provides watcher status information.
type Stats struct {
	WatchedPaths int
	TotalEvents  int64
	Errors       int64
	LastError    error
	StartTime    time.Time
}

// Config holds watcher configuration options.
type Config struct {
	// BufferSize is the size of the event and error channels.
	// Default: 100
	BufferSize int

	// IgnoreHidden ignores hidden files (starting with .).
	// Default: true
	IgnoreHidden bool

	// Filter keeps only events for which it returns true. Nil keeps all.
	Filter func(path string) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   100,
		IgnoreHidden: true,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithIgnoreHidden sets whether hidden files are ignored.
func WithIgnoreHidden(ignore bool) Option {
	return func(c *Config) {
		c.IgnoreHidden = ignore
	}
}

// WithFilter sets the path filter.
func WithFilter(filter func(path string) bool) Option {
	return func(c *Config) {
		c.Filter = filter
	}
}
