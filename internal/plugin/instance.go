package plugin

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/fileio"
	"github.com/dshills/hotswap/internal/plugin/dynlib"
)

// Instance owns the lifecycle of one plugin library: the source file, the
// private working copy the engine actually maps, the open library and its
// bound entry points.
//
// Load, Reload and Unload run on the frame loop goroutine. MarkChanged may be
// called from any goroutine.
type Instance struct {
	mu sync.RWMutex

	// Identity
	source   string
	work     string
	manifest *Manifest

	// Collaborators
	opener  dynlib.Opener
	objects ObjectSource
	invoker *Invoker
	log     Logger

	// Library state
	lib        dynlib.Library
	entry      EntryPoints
	stamp      time.Time
	generation uint64
	state      State
	err        error

	ctxHandle Handle
	logHandle Handle

	// objects unlinked by a failed reload, relinked by the next good one
	orphans []Scripted

	// Change tracking
	pending    atomic.Bool
	lastChange atomic.Int64 // unix nanos
}

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// WithOpener sets the library opener. Defaults to the native opener.
func WithOpener(o dynlib.Opener) InstanceOption {
	return func(in *Instance) {
		in.opener = o
	}
}

// WithObjects sets the source of scripted objects relinked on reload.
func WithObjects(src ObjectSource) InstanceOption {
	return func(in *Instance) {
		in.objects = src
	}
}

// WithInvoker sets the invoker used for every entry-point call.
func WithInvoker(iv *Invoker) InstanceOption {
	return func(in *Instance) {
		in.invoker = iv
	}
}

// WithLogger sets the logger. It is also the logger handed to the plugin.
func WithLogger(l Logger) InstanceOption {
	return func(in *Instance) {
		in.log = l
	}
}

// WithWorkDir sets the directory the working copy is placed in. The
// default is the process working directory.
func WithWorkDir(dir string) InstanceOption {
	return func(in *Instance) {
		in.work = filepath.Join(dir, filepath.Base(in.source))
	}
}

// NewInstance creates an unloaded instance for the library at source.
func NewInstance(source string, opts ...InstanceOption) *Instance {
	source = filepath.Clean(source)
	in := &Instance{
		source:   source,
		work:     filepath.Base(source),
		manifest: NewManifestMinimal(source),
		state:    StateUnloaded,
	}
	for _, opt := range opts {
		opt(in)
	}

	in.log = orNop(in.log)
	if in.opener == nil {
		in.opener = dynlib.NewOpener()
	}
	if in.invoker == nil {
		in.invoker = NewInvoker(in.log)
	}
	return in
}

// SourcePath returns the path of the original library file.
func (in *Instance) SourcePath() string {
	return in.source
}

// WorkPath returns the path of the private working copy.
func (in *Instance) WorkPath() string {
	return in.work
}

// Name returns the plugin display name.
func (in *Instance) Name() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.manifest.DisplayName
}

// Manifest returns the plugin manifest.
func (in *Instance) Manifest() *Manifest {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.manifest
}

// State returns the current lifecycle state.
func (in *Instance) State() State {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.state
}

// Err returns the error of the last failed operation, if any.
func (in *Instance) Err() error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.err
}

// Generation returns the number of successful loads and reloads.
func (in *Instance) Generation() uint64 {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.generation
}

// Stamp returns the source modification time captured at the last
// (re)load attempt.
func (in *Instance) Stamp() time.Time {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.stamp
}

// EntryPoints returns the current bound table. It is the no-op table
// when no library is mapped.
func (in *Instance) EntryPoints() EntryPoints {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.lib == nil {
		return NoopEntryPoints()
	}
	return in.entry
}

// Link returns a fresh code link to the current library generation. The
// zero CodeLink is returned when no library is mapped.
func (in *Instance) Link() CodeLink {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.lib == nil || !in.state.IsUsable() {
		return CodeLink{}
	}
	return CodeLink{
		DisplayName: in.manifest.DisplayName,
		SourcePath:  in.source,
		Generation:  in.generation,
		Entry:       in.entry,
	}
}

// Load maps the library for the first time and calls PluginLoadProtocol.
// On failure the library is not left open and the working copy is removed;
// the caller must discard the instance.
func (in *Instance) Load(ec *engine.Context) error {
	in.mu.RLock()
	open := in.lib != nil
	in.mu.RUnlock()
	if open {
		return NewOpError("load", in.source, ErrAlreadyLoaded)
	}

	if err := in.open(); err != nil {
		in.closeLibrary()
		in.discardWorkingCopy()
		return in.fail(StateError, "load", fmt.Errorf("%w: %w", ErrLoad, err))
	}

	ctxHandle, logHandle := in.newHandles(ec)
	if !in.invoker.Load(in.source, in.EntryPoints(), ctxHandle, logHandle) {
		ctxHandle.Delete()
		logHandle.Delete()
		in.closeLibrary()
		in.discardWorkingCopy()
		return in.fail(StateError, "load", fmt.Errorf("%w: %w", ErrLoad, ErrLoadRejected))
	}

	in.mu.Lock()
	in.ctxHandle, in.logHandle = ctxHandle, logHandle
	in.state = StateLoaded
	in.err = nil
	in.generation++
	gen := in.generation
	in.mu.Unlock()

	in.ClearPending()
	in.log.Info("plugin %s: loaded %s (generation %d)", in.source, in.Name(), gen)
	return nil
}

// Reload swaps the mapped library for a fresh copy of the source file.
//
// Every object linked to this plugin receives PluginEndProtocol through its
// old link and loses the link before the old library is closed. Once the new
// library is bound and PluginReloadProtocol has run, each of those objects
// gets a new link and then PluginStartProtocol through it.
//
// If the new library cannot be mapped the instance is dead: the old links
// are already gone and nothing is invoked until a later Reload succeeds,
// which relinks and starts those objects as well.
func (in *Instance) Reload(ec *engine.Context) error {
	affected := in.detach()

	in.closeLibrary()
	in.releaseHandles()

	if err := in.open(); err != nil {
		in.mu.Lock()
		in.orphans = affected
		in.mu.Unlock()
		in.ClearPending()
		return in.fail(StateDead, "reload", fmt.Errorf("%w: %w", ErrReload, err))
	}

	ctxHandle, logHandle := in.newHandles(ec)

	in.mu.Lock()
	in.ctxHandle, in.logHandle = ctxHandle, logHandle
	in.state = StateLoaded
	in.err = nil
	in.generation++
	in.mu.Unlock()

	if !in.invoker.Reload(in.source, in.EntryPoints(), ctxHandle, logHandle) {
		in.log.Warn("plugin %s: PluginReloadProtocol reported failure", in.source)
	}

	link := in.Link()
	for _, obj := range affected {
		obj.CodeLinks().Set(link)
	}
	for _, obj := range affected {
		in.invoker.Start(obj, link)
	}

	in.ClearPending()
	in.log.Info("plugin %s: reloaded (generation %d, %d objects relinked)", in.source, link.Generation, len(affected))
	return nil
}

// detach ends and unlinks every object holding a link to this plugin and
// returns those objects in enumeration order, followed by the orphans of a
// previous failed reload that are still scripted.
func (in *Instance) detach() []Scripted {
	in.mu.Lock()
	orphans := in.orphans
	in.orphans = nil
	in.mu.Unlock()

	if in.objects == nil {
		return nil
	}

	var affected []Scripted
	live := make(map[uintptr]bool)
	for _, obj := range in.objects.ScriptedObjects() {
		live[obj.Ref()] = true
		links := obj.CodeLinks()
		old, ok := links.Get(in.source)
		if !ok {
			continue
		}
		in.invoker.End(obj, old)
		links.Delete(in.source)
		affected = append(affected, obj)
	}

	seen := make(map[uintptr]bool, len(affected))
	for _, obj := range affected {
		seen[obj.Ref()] = true
	}
	for _, obj := range orphans {
		if live[obj.Ref()] && !seen[obj.Ref()] {
			seen[obj.Ref()] = true
			affected = append(affected, obj)
		}
	}
	return affected
}

// Orphans returns the objects a failed reload unlinked.
func (in *Instance) Orphans() []Scripted {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]Scripted, len(in.orphans))
	copy(out, in.orphans)
	return out
}

// ForgetObject drops ref from the objects waiting to be relinked. It is
// called when an object is destroyed or its script removed while the
// instance is dead.
func (in *Instance) ForgetObject(ref uintptr) {
	in.mu.Lock()
	defer in.mu.Unlock()
	kept := in.orphans[:0]
	for _, obj := range in.orphans {
		if obj.Ref() != ref {
			kept = append(kept, obj)
		}
	}
	in.orphans = kept
}

func (in *Instance) clearOrphans() {
	in.mu.Lock()
	in.orphans = nil
	in.mu.Unlock()
}

// Unload calls PluginUnloadProtocol and closes the library. It does nothing
// when no library is open. The working copy is kept; see
// RemoveWorkingCopy.
func (in *Instance) Unload() error {
	in.mu.RLock()
	open := in.lib != nil
	entry := in.entry
	in.mu.RUnlock()
	if !open {
		return nil
	}

	if !in.invoker.Unload(in.source, entry) {
		in.log.Warn("plugin %s: PluginUnloadProtocol reported failure", in.source)
	}

	err := in.closeLibrary()
	in.releaseHandles()

	in.mu.Lock()
	in.state = StateUnloaded
	in.mu.Unlock()

	if err != nil {
		return NewOpError("unload", in.source, err)
	}
	in.log.Debug("plugin %s: unloaded", in.source)
	return nil
}

// RemoveWorkingCopy deletes the private working copy. A missing file is not
// an error. A working path that is the source itself is left alone.
func (in *Instance) RemoveWorkingCopy() error {
	if samePath(in.source, in.work) {
		return nil
	}
	if err := fileio.RemoveIfExists(in.work); err != nil {
		return NewOpError("remove working copy", in.source, err)
	}
	return nil
}

func (in *Instance) discardWorkingCopy() {
	if samePath(in.source, in.work) {
		return
	}
	if err := fileio.RemoveIfExists(in.work); err != nil {
		in.log.Warn("plugin %s: removing working copy: %v", in.source, err)
	}
}

// Stale reports whether the source file's modification time differs from
// the one captured at the last (re)load. A missing source is not stale.
func (in *Instance) Stale() bool {
	mt, err := fileio.Stamp(in.source)
	if err != nil {
		return false
	}
	return !mt.Equal(in.Stamp())
}

// MarkChanged flags the instance for reload and records when the change was
// observed.
func (in *Instance) MarkChanged(at time.Time) {
	in.lastChange.Store(at.UnixNano())
	in.pending.Store(true)
}

// Pending reports whether a reload has been requested and not yet
// committed.
func (in *Instance) Pending() bool {
	return in.pending.Load()
}

// ClearPending drops a pending reload request.
func (in *Instance) ClearPending() {
	in.pending.Store(false)
}

// LastChange returns when MarkChanged was last called.
func (in *Instance) LastChange() time.Time {
	n := in.lastChange.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// SettledFor reports whether no change has been observed during the d
// before now.
func (in *Instance) SettledFor(d time.Duration, now time.Time) bool {
	return now.Sub(in.LastChange()) >= d
}

// open stamps and copies the source, maps the copy and binds the table.
func (in *Instance) open() error {
	if m, err := LoadManifest(in.source); err != nil {
		in.log.Warn("plugin %s: ignoring manifest: %v", in.source, err)
	} else {
		in.mu.Lock()
		in.manifest = m
		in.mu.Unlock()
	}

	stamp, err := fileio.Stamp(in.source)
	if err != nil {
		return err
	}
	if samePath(in.source, in.work) {
		return fmt.Errorf("%w: working copy %s is the source itself", ErrWorkPathInUse, in.work)
	}
	in.mu.Lock()
	in.stamp = stamp
	in.mu.Unlock()

	if err := fileio.CopyFile(in.source, in.work); err != nil {
		return fmt.Errorf("copying to %s: %w", in.work, err)
	}

	lib, err := in.opener.Open(in.work)
	if err != nil {
		return err
	}

	entry := BindEntryPoints(lib, in.Name(), in.log)

	in.mu.Lock()
	in.lib = lib
	in.entry = entry
	in.mu.Unlock()
	return nil
}

// closeLibrary closes the mapped library, if any.
func (in *Instance) closeLibrary() error {
	in.mu.Lock()
	lib := in.lib
	in.lib = nil
	in.entry = EntryPoints{}
	in.mu.Unlock()

	if lib == nil {
		return nil
	}
	return lib.Close()
}

func samePath(a, b string) bool {
	return absPath(a) == absPath(b)
}

func (in *Instance) newHandles(ec *engine.Context) (ctx, logger Handle) {
	return NewHandle(ec.Snapshot()), NewHandle(in.log)
}

func (in *Instance) releaseHandles() {
	in.mu.Lock()
	ctx, logger := in.ctxHandle, in.logHandle
	in.ctxHandle, in.logHandle = 0, 0
	in.mu.Unlock()

	ctx.Delete()
	logger.Delete()
}

// fail records err, moves to state and logs one error entry.
func (in *Instance) fail(state State, op string, err error) error {
	opErr := NewOpError(op, in.source, err)

	in.mu.Lock()
	in.state = state
	in.err = opErr
	in.mu.Unlock()

	in.log.Error("plugin %s: %v", in.source, opErr)
	return opErr
}
