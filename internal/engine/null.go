package engine

import "sync/atomic"

// NullWindow is a window that never produces events.
type NullWindow struct {
	Width, Height int
}

func (w NullWindow) Size() (int, int) { return w.Width, w.Height }

func (NullWindow) Events() <-chan InputEvent { return nil }

func (NullWindow) Close() error { return nil }

// NullRenderer counts calls and draws nothing.
type NullRenderer struct {
	records        atomic.Int64
	draws          atomic.Int64
	bufferChanges  atomic.Int64
	redrawRequests atomic.Int64
}

// NewNullRenderer creates a headless renderer.
func NewNullRenderer() *NullRenderer {
	return &NullRenderer{}
}

func (r *NullRenderer) Record()             { r.records.Add(1) }
func (r *NullRenderer) Draw()               { r.draws.Add(1) }
func (r *NullRenderer) MarkBuffersChanged() { r.bufferChanges.Add(1) }
func (r *NullRenderer) ScheduleRedraw()     { r.redrawRequests.Add(1) }

// Draws returns the number of Draw calls.
func (r *NullRenderer) Draws() int64 { return r.draws.Load() }

// BufferChanges returns the number of MarkBuffersChanged calls.
func (r *NullRenderer) BufferChanges() int64 { return r.bufferChanges.Load() }

// NullPhysics tracks play state and step count and simulates nothing.
type NullPhysics struct {
	playing atomic.Bool
	steps   atomic.Int64
	inputs  atomic.Int64
}

// NewNullPhysics creates a headless physics backend.
func NewNullPhysics() *NullPhysics {
	return &NullPhysics{}
}

func (p *NullPhysics) Play()  { p.playing.Store(true) }
func (p *NullPhysics) Pause() { p.playing.Store(false) }
func (p *NullPhysics) Record() {}

func (p *NullPhysics) Step(float64) {
	if p.playing.Load() {
		p.steps.Add(1)
	}
}

func (p *NullPhysics) HandleInput(InputEvent) { p.inputs.Add(1) }

// Playing reports whether Play was called more recently than Pause.
func (p *NullPhysics) Playing() bool { return p.playing.Load() }

// Steps returns the number of steps taken while playing.
func (p *NullPhysics) Steps() int64 { return p.steps.Load() }

// Inputs returns the number of input events received.
func (p *NullPhysics) Inputs() int64 { return p.inputs.Load() }
