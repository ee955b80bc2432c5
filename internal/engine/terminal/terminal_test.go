package terminal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/plugin"
	"github.com/dshills/hotswap/internal/plugin/dynlib/dynlibtest"
)

func newSimWindow(t *testing.T) (*Window, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	w, err := NewWithScreen(screen)
	if err != nil {
		t.Fatalf("NewWithScreen() failed: %v", err)
	}
	screen.SetSize(80, 24)
	t.Cleanup(func() { w.Close() })
	return w, screen
}

func waitFor(t *testing.T, w *Window, kind engine.InputKind) engine.InputEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatalf("event channel closed waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestConvertKey(t *testing.T) {
	tests := []struct {
		name     string
		key      tcell.Key
		r        rune
		mod      tcell.ModMask
		wantKind engine.InputKind
		wantKey  int32
		wantMods int32
	}{
		{"letter", tcell.KeyRune, 'a', tcell.ModNone, engine.InputKey, 'A', 0},
		{"shifted letter", tcell.KeyRune, 'Q', tcell.ModShift, engine.InputKey, 'Q', engine.ModShift},
		{"upper-case rune", tcell.KeyRune, 'Z', tcell.ModNone, engine.InputKey, 'Z', engine.ModShift},
		{"digit", tcell.KeyRune, '7', tcell.ModNone, engine.InputKey, '7', 0},
		{"enter", tcell.KeyEnter, 0, tcell.ModNone, engine.InputKey, KeyEnter, 0},
		{"arrow", tcell.KeyLeft, 0, tcell.ModAlt, engine.InputKey, KeyLeft, engine.ModAlt},
		{"function", tcell.KeyF5, 0, tcell.ModNone, engine.InputKey, KeyF1 + 4, 0},
		{"escape closes", tcell.KeyEscape, 0, tcell.ModNone, engine.InputWindowClose, 0, 0},
		{"ctrl-c closes", tcell.KeyCtrlC, 0, tcell.ModCtrl, engine.InputWindowClose, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := convertKey(tcell.NewEventKey(tt.key, tt.r, tt.mod))
			if ev.Kind != tt.wantKind {
				t.Fatalf("Kind = %s, want %s", ev.Kind, tt.wantKind)
			}
			if tt.wantKind != engine.InputKey {
				return
			}
			if ev.Key != tt.wantKey {
				t.Errorf("Key = %d, want %d", ev.Key, tt.wantKey)
			}
			if ev.Mods&tt.wantMods != tt.wantMods {
				t.Errorf("Mods = %b, want %b set", ev.Mods, tt.wantMods)
			}
			if ev.Action != engine.ActionPress {
				t.Errorf("Action = %d, want press", ev.Action)
			}
		})
	}
}

func TestConvertKey_LowerCaseHasNoShift(t *testing.T) {
	ev := convertKey(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	if ev.Mods&engine.ModShift != 0 {
		t.Errorf("Mods = %b, want Shift clear", ev.Mods)
	}
	if ev.Key != 'Q' || ev.Scancode != 'q' {
		t.Errorf("Key = %d, Scancode = %d", ev.Key, ev.Scancode)
	}
}

func TestConvertMouse_PressDragRelease(t *testing.T) {
	w := &Window{}

	evs := w.convertMouse(5, 5, tcell.Button1, 0)
	if len(evs) != 2 || evs[0].Kind != engine.InputMouseButton || evs[0].Action != engine.ActionPress || evs[0].Button != MouseLeft {
		t.Fatalf("press events = %+v", evs)
	}
	if evs[1].Kind != engine.InputMouseMove {
		t.Errorf("first motion = %s, want mouse-move", evs[1].Kind)
	}

	evs = w.convertMouse(8, 6, tcell.Button1, 0)
	if len(evs) != 1 || evs[0].Kind != engine.InputMouseDrag || evs[0].X != 8 || evs[0].Y != 6 {
		t.Fatalf("drag events = %+v", evs)
	}

	evs = w.convertMouse(8, 6, tcell.ButtonNone, 0)
	if len(evs) != 1 || evs[0].Kind != engine.InputMouseButton || evs[0].Action != engine.ActionRelease {
		t.Fatalf("release events = %+v", evs)
	}

	evs = w.convertMouse(9, 6, tcell.ButtonNone, 0)
	if len(evs) != 1 || evs[0].Kind != engine.InputMouseMove {
		t.Fatalf("move events = %+v", evs)
	}
}

func TestConvertMouse_Wheel(t *testing.T) {
	w := &Window{}
	tests := []struct {
		buttons tcell.ButtonMask
		x, y    float64
	}{
		{tcell.WheelUp, 0, 1},
		{tcell.WheelDown, 0, -1},
		{tcell.WheelLeft, -1, 0},
		{tcell.WheelRight, 1, 0},
	}
	for _, tt := range tests {
		evs := w.convertMouse(0, 0, tt.buttons, 0)
		if len(evs) == 0 || evs[0].Kind != engine.InputMouseScroll {
			t.Fatalf("buttons %v: events = %+v", tt.buttons, evs)
		}
		if evs[0].X != tt.x || evs[0].Y != tt.y {
			t.Errorf("buttons %v: scroll = (%v, %v), want (%v, %v)", tt.buttons, evs[0].X, evs[0].Y, tt.x, tt.y)
		}
	}
}

func TestWindow_RelaysScreenEvents(t *testing.T) {
	w, screen := newSimWindow(t)

	screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	if ev := waitFor(t, w, engine.InputKey); ev.Key != 'X' {
		t.Errorf("Key = %d, want %d", ev.Key, 'X')
	}

	screen.InjectKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	waitFor(t, w, engine.InputWindowClose)

	if width, height := w.Size(); width != 80 || height != 24 {
		t.Errorf("Size() = %dx%d, want 80x24", width, height)
	}
}

func TestWindow_CloseEndsEvents(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	w, err := NewWithScreen(screen)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	for range w.Events() {
		// drain whatever was queued before close
	}
}

func screenText(screen tcell.SimulationScreen) string {
	cells, width, height := screen.GetContents()
	var b strings.Builder
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := cells[y*width+x]
			if len(c.Runes) > 0 {
				b.WriteRune(c.Runes[0])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestStatusRenderer_DrawsPlugins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Spinner.so")
	if err := os.WriteFile(path, []byte("lib"), 0o644); err != nil {
		t.Fatal(err)
	}
	opener := dynlibtest.NewOpener()
	opener.Define("Spinner.so", dynlibtest.Symbols{})

	reg := plugin.NewRegistry(
		plugin.WithRegistryOpener(opener),
		plugin.WithRegistryWorkDir(filepath.Join(dir, "work")),
	)
	if _, err := reg.Load(path, &engine.Context{}); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	defer reg.UnloadAll()

	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	defer screen.Fini()
	screen.SetSize(100, 20)

	r := NewStatusRenderer(screen, reg, WithFooter(func(n int) []string {
		return []string{"last log line"}
	}))
	r.Record()
	r.Draw()

	text := screenText(screen)
	for _, want := range []string{"plugins: 1", "Spinner", "loaded", "Spinner.so", "last log line"} {
		if !strings.Contains(text, want) {
			t.Errorf("screen missing %q:\n%s", want, text)
		}
	}
}

func TestStatusRenderer_RedrawsOnlyWhenDirty(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	defer screen.Fini()
	screen.SetSize(60, 10)

	r := NewStatusRenderer(screen, plugin.NewRegistry())
	r.Record()
	r.Draw()
	if !strings.Contains(screenText(screen), "frame: 1") {
		t.Fatal("first draw missing")
	}

	r.Record()
	r.Draw()
	if !strings.Contains(screenText(screen), "frame: 1") {
		t.Error("clean frame was redrawn")
	}

	r.MarkBuffersChanged()
	r.Record()
	r.Draw()
	text := screenText(screen)
	if !strings.Contains(text, "frame: 3") || !strings.Contains(text, "reloads: 1") {
		t.Errorf("dirty frame not redrawn:\n%s", text)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much too long", 8, "much to~"},
	}
	for _, tt := range tests {
		if got := clip(tt.in, tt.n); got != tt.want {
			t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
