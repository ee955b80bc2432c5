package app

import (
	"sync/atomic"
	"time"
)

// Metrics tracks frame loop and plugin lifecycle counters.
type Metrics struct {
	// Frame timing
	frameCount   atomic.Uint64
	frameTotalNs atomic.Int64
	frameMinNs   atomic.Int64
	frameMaxNs   atomic.Int64
	lastFrameNs  atomic.Int64

	// Outer loop
	tickCount atomic.Uint64

	// Input handling
	inputCount atomic.Uint64

	// Commands
	commandCount  atomic.Uint64
	commandErrors atomic.Uint64

	// Plugin lifecycle
	reloadCount   atomic.Uint64
	reloadFailed  atomic.Uint64
	updateCalls   atomic.Uint64
	updateFaulted atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
	}
	// Initialize min to max int64 so first frame will be smaller
	m.frameMinNs.Store(1<<63 - 1)
	return m
}

// RecordFrame records frame timing.
func (m *Metrics) RecordFrame(duration time.Duration) {
	ns := duration.Nanoseconds()

	m.frameCount.Add(1)
	m.frameTotalNs.Add(ns)
	m.lastFrameNs.Store(ns)

	for {
		old := m.frameMinNs.Load()
		if ns >= old || m.frameMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.frameMaxNs.Load()
		if ns <= old || m.frameMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordTick records one outer loop iteration.
func (m *Metrics) RecordTick() {
	m.tickCount.Add(1)
}

// RecordInput records one input event forwarded to plugins.
func (m *Metrics) RecordInput() {
	m.inputCount.Add(1)
}

// RecordCommand records an executed command.
func (m *Metrics) RecordCommand(err error) {
	m.commandCount.Add(1)
	if err != nil {
		m.commandErrors.Add(1)
	}
}

// RecordReload records a committed reload.
func (m *Metrics) RecordReload(err error) {
	if err != nil {
		m.reloadFailed.Add(1)
		return
	}
	m.reloadCount.Add(1)
}

// RecordUpdate records one update call and whether it faulted.
func (m *Metrics) RecordUpdate(ok bool) {
	m.updateCalls.Add(1)
	if !ok {
		m.updateFaulted.Add(1)
	}
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	frameCount := m.frameCount.Load()

	var avgFrameNs int64
	if frameCount > 0 {
		avgFrameNs = m.frameTotalNs.Load() / int64(frameCount)
	}

	minFrameNs := m.frameMinNs.Load()
	if minFrameNs == 1<<63-1 {
		minFrameNs = 0
	}

	return MetricsSnapshot{
		Uptime:         time.Since(m.startTime),
		FrameCount:     frameCount,
		TickCount:      m.tickCount.Load(),
		AvgFrameTimeNs: avgFrameNs,
		MinFrameTimeNs: minFrameNs,
		MaxFrameTimeNs: m.frameMaxNs.Load(),
		LastFrameNs:    m.lastFrameNs.Load(),
		InputCount:     m.inputCount.Load(),
		CommandCount:   m.commandCount.Load(),
		CommandErrors:  m.commandErrors.Load(),
		Reloads:        m.reloadCount.Load(),
		FailedReloads:  m.reloadFailed.Load(),
		UpdateCalls:    m.updateCalls.Load(),
		UpdateFaults:   m.updateFaulted.Load(),
	}
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime         time.Duration
	FrameCount     uint64
	TickCount      uint64
	AvgFrameTimeNs int64
	MinFrameTimeNs int64
	MaxFrameTimeNs int64
	LastFrameNs    int64
	InputCount     uint64
	CommandCount   uint64
	CommandErrors  uint64
	Reloads        uint64
	FailedReloads  uint64
	UpdateCalls    uint64
	UpdateFaults   uint64
}

// AvgFPS returns the average frames per second.
func (s MetricsSnapshot) AvgFPS() float64 {
	if s.AvgFrameTimeNs == 0 {
		return 0
	}
	return 1e9 / float64(s.AvgFrameTimeNs)
}

// CurrentFPS returns the FPS based on last frame time.
func (s MetricsSnapshot) CurrentFPS() float64 {
	if s.LastFrameNs == 0 {
		return 0
	}
	return 1e9 / float64(s.LastFrameNs)
}

// Metrics returns the application's metrics.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}
