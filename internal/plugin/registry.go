package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/plugin/dynlib"
)

// Registry owns every plugin instance, keyed by source path.
// It mediates discovery, reload and removal, and tears everything down at
// shutdown.
type Registry struct {
	mu sync.RWMutex

	// Registered instances by source path
	plugins map[string]*Instance

	// Working copy path -> source path
	workPaths map[string]string

	// Registration order (for deterministic iteration)
	loadOrder []string

	// Event handlers (protected by mu)
	eventHandlers []EventHandler

	// Shared by every instance the registry creates
	opener  dynlib.Opener
	objects ObjectSource
	invoker *Invoker
	log     Logger
	workDir string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryOpener sets the opener handed to new instances.
func WithRegistryOpener(o dynlib.Opener) RegistryOption {
	return func(r *Registry) {
		r.opener = o
	}
}

// WithRegistryObjects sets the scripted object source handed to new
// instances and used by Remove.
func WithRegistryObjects(src ObjectSource) RegistryOption {
	return func(r *Registry) {
		r.objects = src
	}
}

// WithRegistryInvoker sets the invoker shared by all instances.
func WithRegistryInvoker(iv *Invoker) RegistryOption {
	return func(r *Registry) {
		r.invoker = iv
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// WithRegistryWorkDir sets the directory working copies are placed in.
func WithRegistryWorkDir(dir string) RegistryOption {
	return func(r *Registry) {
		r.workDir = dir
	}
}

// EventHandler handles registry events.
// Handlers must be non-blocking and should not call back into the Registry
// to avoid deadlocks. Panics in handlers are recovered.
type EventHandler func(event Event)

// Event represents a registry event.
type Event struct {
	Type   EventType
	Plugin string // source path
	Error  error
}

// EventType is the type of registry event.
type EventType int

const (
	// EventPluginLoaded is emitted when a plugin is loaded and registered.
	EventPluginLoaded EventType = iota
	// EventPluginReloaded is emitted after a successful reload.
	EventPluginReloaded
	// EventPluginUnloaded is emitted when a plugin's library is closed.
	EventPluginUnloaded
	// EventPluginRemoved is emitted when a plugin leaves the registry.
	EventPluginRemoved
	// EventPluginError is emitted when a load or reload fails.
	EventPluginError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginReloaded:
		return "reloaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginRemoved:
		return "removed"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		plugins:   make(map[string]*Instance),
		workPaths: make(map[string]string),
		loadOrder: make([]string, 0),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.log = orNop(r.log)
	if r.opener == nil {
		r.opener = dynlib.NewOpener()
	}
	if r.invoker == nil {
		r.invoker = NewInvoker(r.log)
	}
	return r
}

// Invoker returns the invoker shared by the registry's instances.
func (r *Registry) Invoker() *Invoker {
	return r.invoker
}

// Objects returns the scripted object source.
func (r *Registry) Objects() ObjectSource {
	return r.objects
}

// NewInstance creates an unloaded instance for path wired to the
// registry's collaborators. It is not registered.
func (r *Registry) NewInstance(path string) *Instance {
	return NewInstance(path,
		WithOpener(r.opener),
		WithObjects(r.objects),
		WithInvoker(r.invoker),
		WithLogger(r.log),
		WithWorkDir(r.workDir),
	)
}

// Load creates an instance for path, loads it and registers it. A path that
// is already registered yields ErrAlreadyLoaded without touching the file.
// On failure nothing is registered.
func (r *Registry) Load(path string, ec *engine.Context) (*Instance, error) {
	inst := r.NewInstance(path)
	if err := r.checkFree(inst); err != nil {
		r.log.Error("plugin %s: %v", inst.SourcePath(), err)
		return nil, err
	}

	if err := inst.Load(ec); err != nil {
		r.emitEvent(Event{Type: EventPluginError, Plugin: inst.SourcePath(), Error: err})
		return nil, err
	}

	if err := r.Add(inst); err != nil {
		err = errors.Join(err, inst.Unload())
		// the copy belongs to whoever registered the work path first
		if !r.IsWorkPath(inst.WorkPath()) {
			err = errors.Join(err, inst.RemoveWorkingCopy())
		}
		r.log.Error("plugin %s: %v", inst.SourcePath(), err)
		r.emitEvent(Event{Type: EventPluginError, Plugin: inst.SourcePath(), Error: err})
		return nil, err
	}
	r.emitEvent(Event{Type: EventPluginLoaded, Plugin: inst.SourcePath()})
	return inst, nil
}

// checkFree reports whether inst could be registered.
func (r *Registry) checkFree(inst *Instance) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.plugins[inst.SourcePath()]; exists {
		return NewOpError("register", inst.SourcePath(), ErrAlreadyLoaded)
	}
	if owner, taken := r.workPaths[absPath(inst.WorkPath())]; taken {
		return NewOpError("register", inst.SourcePath(),
			fmt.Errorf("%w: %s is the working copy of %s", ErrWorkPathInUse, inst.WorkPath(), owner))
	}
	return nil
}

// Add registers a loaded instance.
func (r *Registry) Add(inst *Instance) error {
	if err := r.checkFree(inst); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// re-check under the write lock
	if _, exists := r.plugins[inst.SourcePath()]; exists {
		return NewOpError("register", inst.SourcePath(), ErrAlreadyLoaded)
	}
	r.plugins[inst.SourcePath()] = inst
	r.workPaths[absPath(inst.WorkPath())] = inst.SourcePath()
	r.loadOrder = append(r.loadOrder, inst.SourcePath())
	return nil
}

// Reload reloads the plugin at path.
func (r *Registry) Reload(path string, ec *engine.Context) error {
	inst, ok := r.Get(path)
	if !ok {
		return NewOpError("reload", path, ErrPluginNotFound)
	}

	if err := inst.Reload(ec); err != nil {
		r.emitEvent(Event{Type: EventPluginError, Plugin: path, Error: err})
		return err
	}
	r.emitEvent(Event{Type: EventPluginReloaded, Plugin: path})
	return nil
}

// Remove ends and unlinks every object's link to the plugin at path, unloads
// it, deletes its working copy and drops it from the registry.
func (r *Registry) Remove(path string) error {
	r.mu.Lock()
	inst, exists := r.plugins[path]
	if !exists {
		r.mu.Unlock()
		return NewOpError("remove", path, ErrPluginNotFound)
	}
	delete(r.plugins, path)
	delete(r.workPaths, absPath(inst.WorkPath()))
	r.removeFromLoadOrder(path)
	r.mu.Unlock()

	EachLink(r.objects, func(obj Scripted, link CodeLink) {
		if link.SourcePath != path {
			return
		}
		r.invoker.End(obj, link)
		obj.CodeLinks().Delete(path)
	})
	inst.clearOrphans()

	var errs []error
	if err := inst.Unload(); err != nil {
		errs = append(errs, err)
	} else {
		r.emitEvent(Event{Type: EventPluginUnloaded, Plugin: path})
	}
	if err := inst.RemoveWorkingCopy(); err != nil {
		errs = append(errs, err)
	}
	r.invoker.Forget(path)

	r.emitEvent(Event{Type: EventPluginRemoved, Plugin: path})
	return errors.Join(errs...)
}

// UnloadAll unloads every instance in load order, then deletes every
// working copy, then empties the registry. Callers must have ended every
// object's links first.
func (r *Registry) UnloadAll() error {
	r.mu.Lock()
	insts := make([]*Instance, 0, len(r.loadOrder))
	for _, path := range r.loadOrder {
		if inst, exists := r.plugins[path]; exists {
			insts = append(insts, inst)
		}
	}
	r.plugins = make(map[string]*Instance)
	r.workPaths = make(map[string]string)
	r.loadOrder = r.loadOrder[:0]
	r.mu.Unlock()

	var errs []error
	for _, inst := range insts {
		if err := inst.Unload(); err != nil {
			errs = append(errs, err)
			continue
		}
		r.emitEvent(Event{Type: EventPluginUnloaded, Plugin: inst.SourcePath()})
	}
	for _, inst := range insts {
		if err := inst.RemoveWorkingCopy(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to unload %d plugins: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Get returns the instance registered for path.
func (r *Registry) Get(path string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.plugins[path]
	return inst, exists
}

// Find returns the instance registered for path, matching the exact
// source path first and the absolute path second.
func (r *Registry) Find(path string) (*Instance, bool) {
	if inst, ok := r.Get(path); ok {
		return inst, true
	}
	want := absPath(path)
	for _, inst := range r.List() {
		if absPath(inst.SourcePath()) == want {
			return inst, true
		}
	}
	return nil, false
}

// MarkChanged flags the plugin whose source is path for reload. path may
// be absolute or relative. It reports whether a plugin matched.
func (r *Registry) MarkChanged(path string, at time.Time) bool {
	inst, ok := r.Find(path)
	if !ok {
		return false
	}
	inst.MarkChanged(at)
	return true
}

// IsWorkPath reports whether path is the working copy of a registered
// plugin.
func (r *Registry) IsWorkPath(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workPaths[absPath(path)]
	return ok
}

// Has reports whether path is registered.
func (r *Registry) Has(path string) bool {
	_, ok := r.Get(path)
	return ok
}

// List returns all registered instances in load order.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Instance, 0, len(r.loadOrder))
	for _, path := range r.loadOrder {
		if inst, exists := r.plugins[path]; exists {
			result = append(result, inst)
		}
	}
	return result
}

// ListByState returns registered instances in a specific state.
func (r *Registry) ListByState(state State) []*Instance {
	var result []*Instance
	for _, inst := range r.List() {
		if inst.State() == state {
			result = append(result, inst)
		}
	}
	return result
}

// Paths returns the source paths of every registered plugin in load order.
// It satisfies engine.PluginSystem.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.loadOrder))
	copy(out, r.loadOrder)
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Errors returns the dead instances with their errors.
func (r *Registry) Errors() map[string]error {
	errs := make(map[string]error)
	for _, inst := range r.ListByState(StateDead) {
		if err := inst.Err(); err != nil {
			errs[inst.SourcePath()] = err
		}
	}
	return errs
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (r *Registry) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	r.mu.Lock()
	r.eventHandlers = append(r.eventHandlers, handler)
	index := len(r.eventHandlers) - 1
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(r.eventHandlers) {
			r.eventHandlers[index] = nil
		}
	}
}

// emitEvent sends an event to all handlers.
// Handlers are called outside any locks and panics are recovered.
func (r *Registry) emitEvent(event Event) {
	r.mu.RLock()
	handlers := make([]EventHandler, len(r.eventHandlers))
	copy(handlers, r.eventHandlers)
	r.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.log.Warn("plugin event handler panicked on %s %s: %v", event.Type, event.Plugin, p)
				}
			}()
			handler(event)
		}()
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// removeFromLoadOrder removes a path from the load order slice.
// Must be called with mu held.
func (r *Registry) removeFromLoadOrder(path string) {
	for i, p := range r.loadOrder {
		if p == path {
			r.loadOrder = append(r.loadOrder[:i], r.loadOrder[i+1:]...)
			return
		}
	}
}
