package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/plugin/dynlib/dynlibtest"
)

// testObject is a scripted object for tests.
type testObject struct {
	ref   uintptr
	name  string
	links CodeLinks
}

func newTestObject(ref uintptr, name string) *testObject {
	return &testObject{ref: ref, name: name, links: make(CodeLinks)}
}

func (o *testObject) Ref() uintptr         { return o.ref }
func (o *testObject) Name() string         { return o.name }
func (o *testObject) CodeLinks() CodeLinks { return o.links }

// testScene is an ObjectSource over a fixed object list.
type testScene struct {
	objs []*testObject
}

func (s *testScene) ScriptedObjects() []Scripted {
	out := make([]Scripted, len(s.objs))
	for i, o := range s.objs {
		out[i] = o
	}
	return out
}

// recordLogger collects log lines per level.
type recordLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newRecordLogger() *recordLogger {
	return &recordLogger{lines: make(map[string][]string)}
}

func (l *recordLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], fmt.Sprintf(msg, args...))
}

func (l *recordLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordLogger) get(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines[level]))
	copy(out, l.lines[level])
	return out
}

// fixture is a plugin directory, a work directory and a fake opener.
type fixture struct {
	t       *testing.T
	dir     string
	work    string
	opener  *dynlibtest.Opener
	scene   *testScene
	log     *recordLogger
	invoker *Invoker
	ctx     *engine.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		t:      t,
		dir:    filepath.Join(root, "plugins"),
		work:   filepath.Join(root, "work"),
		opener: dynlibtest.NewOpener(),
		scene:  &testScene{},
		log:    newRecordLogger(),
		ctx:    &engine.Context{App: &engine.Descriptor{Name: "test"}},
	}
	f.invoker = NewInvoker(f.log)
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return f
}

// write creates the library file base in the plugin directory.
func (f *fixture) write(base string) string {
	f.t.Helper()
	path := filepath.Join(f.dir, base)
	if err := os.WriteFile(path, []byte("lib "+base), 0o644); err != nil {
		f.t.Fatal(err)
	}
	return path
}

// install writes base and defines the recording symbol set for it.
func (f *fixture) install(base string) string {
	f.t.Helper()
	path := f.write(base)
	f.opener.Define(base, recordingSymbols(f.opener, base))
	return path
}

func (f *fixture) instance(path string) *Instance {
	return NewInstance(path,
		WithOpener(f.opener),
		WithObjects(f.scene),
		WithInvoker(f.invoker),
		WithLogger(f.log),
		WithWorkDir(f.work),
	)
}

func (f *fixture) registry() *Registry {
	return NewRegistry(
		WithRegistryOpener(f.opener),
		WithRegistryObjects(f.scene),
		WithRegistryInvoker(f.invoker),
		WithRegistryLogger(f.log),
		WithRegistryWorkDir(f.work),
	)
}

func (f *fixture) spawn(ref uintptr, name string) *testObject {
	o := newTestObject(ref, name)
	f.scene.objs = append(f.scene.objs, o)
	return o
}

// link attaches obj to inst and starts it.
func (f *fixture) link(obj *testObject, inst *Instance) {
	f.t.Helper()
	l := inst.Link()
	if !l.Valid() {
		f.t.Fatalf("no valid link for %s", inst.SourcePath())
	}
	obj.links.Set(l)
	f.invoker.Start(obj, l)
}

// recordingSymbols exports the lifecycle entry points and records each call
// as "<base> <symbol> [obj]".
func recordingSymbols(o *dynlibtest.Opener, base string) dynlibtest.Symbols {
	return dynlibtest.Symbols{
		"PluginLoadProtocol": func(ctx, logger uintptr) bool {
			o.Record("%s load", base)
			return true
		},
		"PluginReloadProtocol": func(ctx, logger uintptr) bool {
			o.Record("%s reload", base)
			return true
		},
		"PluginUnloadProtocol": func() bool {
			o.Record("%s unload", base)
			return true
		},
		"PluginStartProtocol": func(obj uintptr) bool {
			o.Record("%s start %d", base, obj)
			return true
		},
		"PluginUpdateProtocol": func(obj uintptr) bool {
			o.Record("%s update %d", base, obj)
			return true
		},
		"PluginEndProtocol": func(obj uintptr) bool {
			o.Record("%s end %d", base, obj)
			return true
		},
	}
}

func indexOf(events []string, want string) int {
	for i, e := range events {
		if e == want {
			return i
		}
	}
	return -1
}

func countOf(events []string, want string) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
