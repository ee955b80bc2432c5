package engine

// Window is the source of input events.
type Window interface {
	// Size returns the framebuffer size in pixels (or cells).
	Size() (width, height int)

	// Events returns the channel input events are delivered on. The frame
	// loop drains it without blocking; a nil channel is never ready.
	Events() <-chan InputEvent

	Close() error
}

// Renderer is the part of the rendering backend the frame loop drives.
type Renderer interface {
	// Record runs the renderer's command recording pass.
	Record()

	// Draw presents the frame.
	Draw()

	// MarkBuffersChanged signals that GPU-side buffers must be rebuilt,
	// e.g. after a plugin reload replaced the code that fills them.
	MarkBuffersChanged()

	// ScheduleRedraw requests a redraw even if nothing else changed.
	ScheduleRedraw()
}

// Physics is the part of the physics backend the frame loop drives.
type Physics interface {
	Play()
	Pause()
	Record()
	Step(dt float64)
	HandleInput(ev InputEvent)
}

// Profiler measures named sections. Begin returns the function that ends
// the section.
type Profiler interface {
	Begin(name string) (end func())
}

// Scene is the view of the active scene exposed to plugins.
type Scene interface {
	Name() string
	Len() int
}

// PluginSystem is the view of the plugin registry exposed to plugins.
type PluginSystem interface {
	// Paths returns the source paths of every registered plugin.
	Paths() []string
}
