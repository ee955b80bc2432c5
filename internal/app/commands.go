package app

import (
	"fmt"
	"sync"

	"github.com/dshills/hotswap/internal/plugin"
	"github.com/dshills/hotswap/internal/scene"
)

// Command is a deferred change to the scene or the plugin set. Commands
// are queued from anywhere and executed on the frame loop at the start of
// the next frame, before any plugin code runs.
type Command interface {
	// Name identifies the command in logs.
	Name() string

	// Execute applies the command.
	Execute(app *Application) error
}

// CommandQueue is a FIFO of pending commands. It is safe for concurrent use.
type CommandQueue struct {
	mu      sync.Mutex
	pending []Command
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Push appends cmd.
func (q *CommandQueue) Push(cmd Command) {
	if cmd == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()
}

// QueueReload pushes a CommitReload for path unless one is already
// pending. It satisfies plugin.ReloadQueue.
func (q *CommandQueue) QueueReload(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, cmd := range q.pending {
		if r, ok := cmd.(CommitReload); ok && r.Path == path {
			return false
		}
	}
	q.pending = append(q.pending, CommitReload{Path: path})
	return true
}

// Drain removes and returns every pending command in push order.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmds := q.pending
	q.pending = nil
	return cmds
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// CommitReload reloads the plugin at Path.
type CommitReload struct {
	Path string
}

func (c CommitReload) Name() string { return "reload" }

func (c CommitReload) Execute(app *Application) error {
	inst, ok := app.registry.Find(c.Path)
	if !ok {
		return NewOperationError("reload", c.Path, plugin.ErrPluginNotFound)
	}
	err := app.registry.Reload(inst.SourcePath(), app.ctx)
	app.metrics.RecordReload(err)
	return err
}

// AttachScript links the plugin at Path to Object and starts it. The
// object gains the script trait if it lacks it.
type AttachScript struct {
	Object uintptr
	Path   string
}

func (c AttachScript) Name() string { return "attach" }

func (c AttachScript) Execute(app *Application) error {
	obj, err := app.object("attach", c.Object)
	if err != nil {
		return err
	}
	inst, ok := app.registry.Find(c.Path)
	if !ok || !inst.State().IsUsable() {
		return NewOperationError("attach", c.Path, ErrPluginUnavailable).
			WithContext(obj.Name())
	}

	if !obj.Has(scene.TraitScript) {
		if err := app.scene.AddTrait(obj.Ref(), scene.TraitScript); err != nil {
			return NewOperationError("attach", obj.Name(), err)
		}
	}

	links := obj.CodeLinks()
	if _, exists := links.Get(inst.SourcePath()); exists {
		return NewOperationError("attach", inst.SourcePath(), ErrAlreadyAttached).
			WithContext(obj.Name())
	}

	link := inst.Link()
	links.Set(link)
	if !app.invoker.Start(obj, link) {
		app.log.Warn("plugin %s: start on %q did not succeed", link.SourcePath, obj.Name())
	}
	return nil
}

// RemoveScript ends and unlinks the plugin at Path from Object.
type RemoveScript struct {
	Object uintptr
	Path   string
}

func (c RemoveScript) Name() string { return "detach" }

func (c RemoveScript) Execute(app *Application) error {
	obj, err := app.object("detach", c.Object)
	if err != nil {
		return err
	}

	path := c.Path
	inst, found := app.registry.Find(c.Path)
	if found {
		path = inst.SourcePath()
	}

	links := obj.CodeLinks()
	link, linked := links.Get(path)
	if linked {
		app.invoker.End(obj, link)
		links.Delete(path)
	}

	// a dead plugin holds the object as an orphan instead of a link
	orphaned := found && holds(inst.Orphans(), obj.Ref())
	if found {
		inst.ForgetObject(obj.Ref())
	}
	if !linked && !orphaned {
		return NewOperationError("detach", path, ErrNotAttached).WithContext(obj.Name())
	}
	return nil
}

// AddTrait adds Trait to Object.
type AddTrait struct {
	Object uintptr
	Trait  scene.Trait
}

func (c AddTrait) Name() string { return "add-trait" }

func (c AddTrait) Execute(app *Application) error {
	if err := app.scene.AddTrait(c.Object, c.Trait); err != nil {
		return NewOperationError("add-trait", c.Trait.String(), err)
	}
	return nil
}

// RemoveTrait removes Trait from Object. Removing the script trait ends
// every link first.
type RemoveTrait struct {
	Object uintptr
	Trait  scene.Trait
}

func (c RemoveTrait) Name() string { return "remove-trait" }

func (c RemoveTrait) Execute(app *Application) error {
	if c.Trait == scene.TraitScript {
		obj, err := app.object("remove-trait", c.Object)
		if err != nil {
			return err
		}
		app.endAll(obj)
	}
	if err := app.scene.RemoveTrait(c.Object, c.Trait); err != nil {
		return NewOperationError("remove-trait", c.Trait.String(), err)
	}
	return nil
}

// RemovePlugin ends every link to the plugin at Path, unloads it and drops
// it from the registry.
type RemovePlugin struct {
	Path string
}

func (c RemovePlugin) Name() string { return "remove" }

func (c RemovePlugin) Execute(app *Application) error {
	inst, ok := app.registry.Find(c.Path)
	if !ok {
		return NewOperationError("remove", c.Path, plugin.ErrPluginNotFound)
	}
	return app.registry.Remove(inst.SourcePath())
}

// DestroyObject ends every link of Object and removes it from the scene.
type DestroyObject struct {
	Object uintptr
}

func (c DestroyObject) Name() string { return "destroy" }

func (c DestroyObject) Execute(app *Application) error {
	obj, err := app.object("destroy", c.Object)
	if err != nil {
		return err
	}
	app.endAll(obj)
	app.scene.Destroy(obj.Ref())
	return nil
}

// Quit asks the loop to stop after the current frame.
type Quit struct{}

func (Quit) Name() string { return "quit" }

func (Quit) Execute(app *Application) error {
	app.ctx.RequestQuit()
	return nil
}

// runCommands executes and clears the queue.
func (app *Application) runCommands() {
	for _, cmd := range app.commands.Drain() {
		err := cmd.Execute(app)
		app.metrics.RecordCommand(err)
		if err != nil {
			app.log.Error("command %s: %v", cmd.Name(), err)
		}
	}
}

// object resolves ref in the active scene.
func (app *Application) object(op string, ref uintptr) (*scene.Object, error) {
	obj, ok := app.scene.Object(ref)
	if !ok {
		return nil, NewOperationError(op, fmt.Sprintf("object %d", ref), ErrObjectNotFound)
	}
	return obj, nil
}

// endAll ends and drops every link obj holds and forgets it as an orphan.
func (app *Application) endAll(obj *scene.Object) {
	links := obj.CodeLinks()
	for _, key := range links.Keys() {
		link, _ := links.Get(key)
		app.invoker.End(obj, link)
		links.Delete(key)
	}
	for _, inst := range app.registry.List() {
		inst.ForgetObject(obj.Ref())
	}
}

func holds(objs []plugin.Scripted, ref uintptr) bool {
	for _, o := range objs {
		if o.Ref() == ref {
			return true
		}
	}
	return false
}
