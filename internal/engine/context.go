package engine

import (
	"sync/atomic"
	"time"
)

// Descriptor describes the running application.
type Descriptor struct {
	Name    string
	Version string
	Started time.Time
}

// Context is the bundle of engine subsystems handed to plugins on load and
// reload.
type Context struct {
	App      *Descriptor
	Quit     *atomic.Bool
	Plugins  PluginSystem
	Window   Window
	Renderer Renderer
	Physics  Physics
	Scene    Scene

	// Profiler is optional and may be nil.
	Profiler Profiler

	// Traits is opaque trait-system data.
	Traits any
}

// Snapshot returns a shallow copy of c. The subsystems are shared; the
// bundle itself is not.
func (c *Context) Snapshot() *Context {
	if c == nil {
		return &Context{}
	}
	snap := *c
	return &snap
}

// RequestQuit sets the quit flag if one is attached.
func (c *Context) RequestQuit() {
	if c != nil && c.Quit != nil {
		c.Quit.Store(true)
	}
}

// QuitRequested reports whether the quit flag is set.
func (c *Context) QuitRequested() bool {
	return c != nil && c.Quit != nil && c.Quit.Load()
}
