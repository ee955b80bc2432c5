package app

import (
	"time"

	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/plugin"
)

// maxInputPerFrame bounds how many queued window events one frame drains.
const maxInputPerFrame = 256

// Frame runs one frame:
//
//  1. queued commands (reloads, attachments, removals)
//  2. window input, forwarded to physics and every code link
//  3. renderer and physics recording
//  4. Update on every code link
//  5. physics step and draw
func (app *Application) Frame(dt float64) {
	start := time.Now()

	engine.Measure(app.profiler, "commands", app.runCommands)
	engine.Measure(app.profiler, "input", app.pumpInput)
	engine.Measure(app.profiler, "record", func() {
		app.renderer.Record()
		app.physics.Record()
	})
	engine.Measure(app.profiler, "update", app.updateScripts)
	engine.Measure(app.profiler, "physics", func() {
		app.physics.Step(dt)
	})
	engine.Measure(app.profiler, "draw", app.renderer.Draw)

	app.metrics.RecordFrame(time.Since(start))
}

// pumpInput drains pending window events without blocking.
func (app *Application) pumpInput() {
	events := app.window.Events()
	if events == nil {
		return
	}
	for i := 0; i < maxInputPerFrame; i++ {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			app.handleInput(ev)
		default:
			return
		}
	}
}

// handleInput routes one window event.
func (app *Application) handleInput(ev engine.InputEvent) {
	if ev.Kind == engine.InputWindowClose {
		app.log.Info("window closed")
		app.ctx.RequestQuit()
		return
	}

	app.metrics.RecordInput()
	app.physics.HandleInput(ev)
	plugin.EachLink(app.scene, func(obj plugin.Scripted, link plugin.CodeLink) {
		app.invoker.Dispatch(obj, link, ev)
	})
}

// updateScripts calls Update on every link of every scripted object.
func (app *Application) updateScripts() {
	plugin.EachLink(app.scene, func(obj plugin.Scripted, link plugin.CodeLink) {
		app.metrics.RecordUpdate(app.invoker.Update(obj, link))
	})
}
