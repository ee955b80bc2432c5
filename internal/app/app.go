// Package app wires the plugin host together: it owns the scene, the
// plugin registry and scanner, and drives the frame loop that invokes
// plugin code.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/hotswap/internal/config"
	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/plugin"
	"github.com/dshills/hotswap/internal/plugin/dynlib"
	"github.com/dshills/hotswap/internal/plugin/watcher"
	"github.com/dshills/hotswap/internal/scene"
)

// Name and Version describe the host to plugins.
const (
	Name    = "hotswap"
	Version = "0.1.0"
)

// logHistory is the number of entries the memory hook retains.
const logHistory = 256

// Application is the central coordinator of the host.
type Application struct {
	config *config.Config

	// Logging
	log     *Logger
	logHook *MemoryHook

	// Plugin subsystem
	registry *plugin.Registry
	scanner  *plugin.Scanner
	invoker  *plugin.Invoker
	watcher  *watcher.Watcher
	watchWg  sync.WaitGroup

	// Engine
	scene    *scene.Scene
	window   engine.Window
	renderer engine.Renderer
	physics  engine.Physics
	profiler engine.Profiler
	ctx      *engine.Context
	quit     atomic.Bool

	commands *CommandQueue
	metrics  *Metrics

	// Config scripts not yet attached because their plugin is not loaded
	attachments []attachment

	// State
	running atomic.Bool
	closed  atomic.Bool
}

// attachment is a startup script waiting for its plugin.
type attachment struct {
	object uintptr
	path   string
}

// Options configures the application.
type Options struct {
	// Config is the host configuration. Nil means config.Default().
	Config *config.Config

	// Opener opens plugin libraries. Nil means the native loader.
	Opener dynlib.Opener

	// Window, Renderer and Physics default to the headless
	// implementations.
	Window   engine.Window
	Renderer engine.Renderer
	Physics  engine.Physics

	// Profiler is optional.
	Profiler engine.Profiler

	// Logger defaults to a logger built from Config.Log writing to stderr.
	Logger *Logger
}

// New creates a new Application with the given options.
func New(opts Options) (*Application, error) {
	app := &Application{
		config:   opts.Config,
		log:      opts.Logger,
		window:   opts.Window,
		renderer: opts.Renderer,
		physics:  opts.Physics,
		profiler: opts.Profiler,
		commands: NewCommandQueue(),
		metrics:  NewMetrics(),
	}

	if err := app.bootstrap(opts.Opener); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(opener dynlib.Opener) error {
	// 1. Config
	if app.config == nil {
		app.config = config.Default()
	}
	if err := app.config.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	cfg := app.config

	// 2. Logging
	if app.log == nil {
		lc := DefaultLoggerConfig()
		lc.Level = ParseLogLevel(cfg.Log.Level)
		lc.Format = cfg.Log.Format
		app.log = NewLogger(lc)
	}
	app.logHook = NewMemoryHook(logHistory)
	app.log.AddHook(app.logHook)
	pluginLog := app.log.WithComponent("plugin")

	// 3. Engine collaborators
	if app.window == nil {
		app.window = engine.NullWindow{}
	}
	if app.renderer == nil {
		app.renderer = engine.NewNullRenderer()
	}
	if app.physics == nil {
		app.physics = engine.NewNullPhysics()
	}

	// 4. Scene
	app.scene = scene.New(cfg.Loop.Scene)
	if err := app.spawnObjects(); err != nil {
		return &InitError{Component: "scene", Err: err}
	}

	// 5. Plugin subsystem
	app.invoker = plugin.NewInvoker(pluginLog,
		plugin.WithSlowCallThreshold(cfg.Invoke.SlowCall.Std()))

	regOpts := []plugin.RegistryOption{
		plugin.WithRegistryObjects(app.scene),
		plugin.WithRegistryInvoker(app.invoker),
		plugin.WithRegistryLogger(pluginLog),
		plugin.WithRegistryWorkDir(cfg.Plugins.WorkDir),
	}
	if opener != nil {
		regOpts = append(regOpts, plugin.WithRegistryOpener(opener))
	}
	app.registry = plugin.NewRegistry(regOpts...)
	app.registry.Subscribe(app.onPluginEvent)

	app.scanner = plugin.NewScanner(app.registry, plugin.ScannerConfig{
		Dir:        cfg.Plugins.Dir,
		MaxDepth:   cfg.Plugins.MaxDepth,
		Extensions: cfg.Plugins.Extensions,
		Settle:     cfg.Plugins.Settle.Std(),
		Backoff: plugin.BackoffConfig{
			InitialDelay: cfg.Plugins.Backoff.Initial.Std(),
			MaxDelay:     cfg.Plugins.Backoff.Max.Std(),
			Multiplier:   cfg.Plugins.Backoff.Multiplier,
		},
	}, plugin.WithScannerLogger(pluginLog))

	// 6. Engine context handed to plugins
	app.ctx = &engine.Context{
		App: &engine.Descriptor{
			Name:    Name,
			Version: Version,
			Started: time.Now(),
		},
		Quit:     &app.quit,
		Plugins:  app.registry,
		Window:   app.window,
		Renderer: app.renderer,
		Physics:  app.physics,
		Scene:    app.scene,
		Profiler: app.profiler,
		Traits:   app.scene,
	}
	return nil
}

// spawnObjects creates the configured startup objects and remembers their
// scripts for attachment once the plugins load.
func (app *Application) spawnObjects() error {
	for _, oc := range app.config.Objects {
		traits := make([]scene.Trait, 0, len(oc.Traits)+1)
		for _, name := range oc.Traits {
			t, err := scene.ParseTrait(name)
			if err != nil {
				return fmt.Errorf("object %q: %w", oc.Name, err)
			}
			traits = append(traits, t)
		}
		if len(oc.Scripts) > 0 {
			traits = append(traits, scene.TraitScript)
		}

		obj := app.scene.Spawn(oc.Name, traits...)
		for _, path := range oc.Scripts {
			app.attachments = append(app.attachments, attachment{object: obj.Ref(), path: path})
		}
	}
	return nil
}

// onPluginEvent reacts to registry events. It must not call back into the
// registry.
func (app *Application) onPluginEvent(ev plugin.Event) {
	switch ev.Type {
	case plugin.EventPluginReloaded, plugin.EventPluginRemoved:
		app.renderer.MarkBuffersChanged()
		app.renderer.ScheduleRedraw()
	}
	app.log.Debug("plugin event %s: %s", ev.Type, ev.Plugin)
}

// Run starts the application main loop. It blocks until ctx is done, a
// quit is requested or the configured number of ticks has run, and always
// shuts down before returning.
func (app *Application) Run(ctx context.Context) (err error) {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		if serr := app.shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	if app.config.Plugins.Watch {
		app.startWatcher(ctx)
	}
	app.physics.Play()
	app.log.Info("scanning %s every %d frames", app.config.Plugins.Dir, app.config.Loop.FramesPerTick)

	return app.loop(ctx)
}

// loop runs outer ticks of discovery followed by FramesPerTick frames.
func (app *Application) loop(ctx context.Context) error {
	var ticker *time.Ticker
	if interval := app.config.Loop.FrameInterval.Std(); interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	last := time.Now()
	for tick := 0; !app.stopping(ctx); tick++ {
		if app.config.Loop.Ticks > 0 && tick >= app.config.Loop.Ticks {
			break
		}
		app.Tick()

		for f := 0; f < app.config.Loop.FramesPerTick && !app.stopping(ctx); f++ {
			now := time.Now()
			dt := now.Sub(last).Seconds()
			last = now

			app.Frame(dt)

			if ticker != nil {
				select {
				case <-ctx.Done():
				case <-ticker.C:
				}
			}
		}
	}
	return nil
}

func (app *Application) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || app.ctx.QuitRequested()
}

// Tick runs one discovery pass: load new libraries, attach startup scripts
// whose plugins are now available, and queue reloads of changed ones.
func (app *Application) Tick() {
	app.metrics.RecordTick()
	engine.Measure(app.profiler, "scan", func() {
		res := app.scanner.Scan(app.ctx)
		if len(res.Loaded) > 0 {
			app.log.Debug("scan loaded %d plugins", len(res.Loaded))
		}
	})
	app.resolveAttachments()
	app.scanner.WatchFS(app.commands)
}

// resolveAttachments queues AttachScript for every startup script whose
// plugin is loaded.
func (app *Application) resolveAttachments() {
	remaining := app.attachments[:0]
	for _, a := range app.attachments {
		inst, ok := app.registry.Find(a.path)
		if !ok || !inst.State().IsUsable() {
			remaining = append(remaining, a)
			continue
		}
		app.commands.Push(AttachScript{Object: a.object, Path: inst.SourcePath()})
	}
	app.attachments = remaining
}

// startWatcher relays fsnotify changes in the plugin directory to the
// registry. Failure leaves the mtime poll as the only change source.
func (app *Application) startWatcher(ctx context.Context) {
	w, err := watcher.New(
		watcher.WithIgnoreHidden(true),
		watcher.WithFilter(app.scanner.IsCandidate),
	)
	if err != nil {
		app.log.Warn("file watcher unavailable: %v", err)
		return
	}
	if err := w.WatchRecursive(app.config.Plugins.Dir); err != nil {
		app.log.Warn("not watching %s: %v", app.config.Plugins.Dir, err)
		w.Close()
		return
	}

	app.watcher = w
	app.watchWg.Add(1)
	go func() {
		defer app.watchWg.Done()
		watcher.Forward(ctx, w, app.registry, func(err error) {
			app.log.Warn("file watcher: %v", err)
		})
	}()
}

func (app *Application) stopWatcher() error {
	if app.watcher == nil {
		return nil
	}
	err := app.watcher.Close()
	app.watchWg.Wait()
	app.watcher = nil
	return err
}

// Close shuts the application down without running it. It is a no-op
// after Run has returned.
func (app *Application) Close() error {
	if app.running.Load() {
		return ErrAlreadyRunning
	}
	return app.shutdown()
}

// shutdown ends every link of every scripted object, then unloads every
// plugin and deletes its working copy. It runs once.
func (app *Application) shutdown() error {
	if !app.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := app.stopWatcher(); err != nil {
		errs = append(errs, fmt.Errorf("closing watcher: %w", err))
	}
	app.physics.Pause()

	plugin.EachLink(app.scene, func(obj plugin.Scripted, link plugin.CodeLink) {
		app.invoker.End(obj, link)
		obj.CodeLinks().Delete(link.SourcePath)
	})

	if err := app.registry.UnloadAll(); err != nil {
		errs = append(errs, err)
	}
	if err := app.window.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		app.log.Error("shutdown: %v", err)
		return err
	}
	app.log.Info("shutdown complete")
	return nil
}

// SetRenderer replaces the renderer. It must be called before Run; plugins
// loaded earlier keep the renderer they were handed.
func (app *Application) SetRenderer(r engine.Renderer) error {
	if app.running.Load() {
		return ErrAlreadyRunning
	}
	if r == nil {
		r = engine.NewNullRenderer()
	}
	app.renderer = r
	app.ctx.Renderer = r
	return nil
}

// RequestQuit asks the loop to stop after the current frame.
func (app *Application) RequestQuit() {
	app.ctx.RequestQuit()
}

// IsRunning returns true if the application is running.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Submit queues cmd for the start of the next frame.
func (app *Application) Submit(cmd Command) {
	app.commands.Push(cmd)
}

// Config returns the configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *Logger {
	return app.log
}

// LogHistory returns the hook holding recent log entries.
func (app *Application) LogHistory() *MemoryHook {
	return app.logHook
}

// Scene returns the active scene.
func (app *Application) Scene() *scene.Scene {
	return app.scene
}

// Registry returns the plugin registry.
func (app *Application) Registry() *plugin.Registry {
	return app.registry
}

// Scanner returns the plugin scanner.
func (app *Application) Scanner() *plugin.Scanner {
	return app.scanner
}

// Invoker returns the invoker every plugin call goes through.
func (app *Application) Invoker() *plugin.Invoker {
	return app.invoker
}

// Context returns the engine context handed to plugins.
func (app *Application) Context() *engine.Context {
	return app.ctx
}

// Commands returns the command queue.
func (app *Application) Commands() *CommandQueue {
	return app.commands
}
