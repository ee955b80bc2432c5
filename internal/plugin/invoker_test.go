package plugin

import (
	"strings"
	"testing"
	"time"

	"github.com/dshills/hotswap/internal/engine"
)

func TestInvoker_RecoversPanic(t *testing.T) {
	log := newRecordLogger()
	iv := NewInvoker(log)
	obj := newTestObject(3, "crate")

	link := CodeLink{SourcePath: "plugins/Bad.so", Entry: NoopEntryPoints()}
	link.Entry.Update = func(uintptr) bool {
		var m map[string]int
		m["boom"]++
		return true
	}

	if iv.Update(obj, link) {
		t.Fatal("Update() = true for a panicking plugin")
	}

	errs := log.get("error")
	if len(errs) != 1 {
		t.Fatalf("got %d error entries, want 1", len(errs))
	}
	for _, want := range []string{"plugins/Bad.so", "PluginUpdateProtocol", `"crate"`} {
		if !strings.Contains(errs[0], want) {
			t.Errorf("error %q does not mention %s", errs[0], want)
		}
	}

	stats := iv.Stats("plugins/Bad.so")
	if stats.Calls != 1 || stats.Faults != 1 || stats.LastFault != "PluginUpdateProtocol" {
		t.Errorf("Stats() = %+v", stats)
	}

	// the invoker stays usable
	link.Entry.Update = func(uintptr) bool { return true }
	if !iv.Update(obj, link) {
		t.Error("Update() after a fault = false")
	}
}

func TestInvoker_ResultPassthrough(t *testing.T) {
	iv := NewInvoker(nil)
	obj := newTestObject(1, "a")
	link := CodeLink{SourcePath: "p.so", Entry: NoopEntryPoints()}

	link.Entry.Start = func(uintptr) bool { return false }
	if iv.Start(obj, link) {
		t.Error("Start() = true, want plugin's false")
	}

	ep := NoopEntryPoints()
	ep.Load = func(ctx, logger uintptr) bool { return false }
	if iv.Load("p.so", ep, 0, 0) {
		t.Error("Load() = true, want plugin's false")
	}
	ep.Unload = func() bool { panic("unload") }
	if iv.Unload("p.so", ep) {
		t.Error("Unload() = true for a panicking plugin")
	}
}

func TestInvoker_SlowCall(t *testing.T) {
	log := newRecordLogger()
	iv := NewInvoker(log, WithSlowCallThreshold(time.Millisecond))
	obj := newTestObject(1, "slow")

	link := CodeLink{SourcePath: "Slow.so", Entry: NoopEntryPoints()}
	link.Entry.Update = func(uintptr) bool {
		time.Sleep(50 * time.Millisecond)
		return true
	}

	if !iv.Update(obj, link) {
		t.Fatal("slow call must still succeed")
	}
	if got := iv.Stats("Slow.so").SlowCalls; got != 1 {
		t.Errorf("SlowCalls = %d, want 1", got)
	}
	warns := log.get("warn")
	if len(warns) != 1 || !strings.Contains(warns[0], "still running") {
		t.Errorf("warnings = %v", warns)
	}
}

func TestInvoker_Forget(t *testing.T) {
	iv := NewInvoker(nil)
	iv.Update(newTestObject(1, "a"), CodeLink{SourcePath: "p.so", Entry: NoopEntryPoints()})
	iv.Forget("p.so")
	if s := iv.Stats("p.so"); s.Calls != 0 {
		t.Errorf("Stats() after Forget = %+v", s)
	}
}

func TestInvoker_Dispatch(t *testing.T) {
	iv := NewInvoker(nil)
	obj := newTestObject(9, "target")

	var got []string
	ep := NoopEntryPoints()
	ep.OnMouse = func(o uintptr, button, action, mods int32) { got = append(got, "mouse") }
	ep.OnMouseMove = func(o uintptr, x, y float64) { got = append(got, "move") }
	ep.OnMouseDrag = func(o uintptr, x, y float64) { got = append(got, "drag") }
	ep.OnMouseScroll = func(o uintptr, dx, dy float64) { got = append(got, "scroll") }
	ep.OnKeyboard = func(o uintptr, key, scancode, action, mods int32) {
		if key != 'A' || scancode != 30 {
			t.Errorf("keyboard args = %d %d", key, scancode)
		}
		got = append(got, "key")
	}
	ep.OnWindowResize = func(o uintptr, w, h int32) { got = append(got, "resize") }
	ep.OnWindowDragDrop = func(o uintptr, p string) { got = append(got, "drop "+p) }
	ep.OnWindowIconify = func(uintptr) { got = append(got, "iconify") }
	ep.OnWindowIconifyRestore = func(uintptr) { got = append(got, "iconify-restore") }
	ep.OnWindowMaximize = func(uintptr) { got = append(got, "maximize") }
	ep.OnWindowMaximizeRestore = func(uintptr) { got = append(got, "maximize-restore") }
	link := CodeLink{SourcePath: "In.so", Entry: ep}

	events := []engine.InputEvent{
		{Kind: engine.InputMouseButton},
		{Kind: engine.InputMouseMove},
		{Kind: engine.InputMouseDrag},
		{Kind: engine.InputMouseScroll},
		{Kind: engine.InputKey, Key: 'A', Scancode: 30},
		{Kind: engine.InputWindowResize, Width: 80, Height: 24},
		{Kind: engine.InputWindowDrop, Paths: []string{"a", "b"}},
		{Kind: engine.InputWindowIconify},
		{Kind: engine.InputWindowIconifyRestore},
		{Kind: engine.InputWindowMaximize},
		{Kind: engine.InputWindowMaximizeRestore},
		{Kind: engine.InputWindowClose},
	}
	for _, ev := range events {
		if !iv.Dispatch(obj, link, ev) {
			t.Errorf("Dispatch(%v) = false", ev.Kind)
		}
	}

	want := []string{"mouse", "move", "drag", "scroll", "key", "resize", "drop a", "drop b",
		"iconify", "iconify-restore", "maximize", "maximize-restore"}
	if !equalStrings(got, want) {
		t.Errorf("callbacks = %v, want %v", got, want)
	}
}

func TestInvoker_DragDropStopsOnFault(t *testing.T) {
	iv := NewInvoker(nil)
	calls := 0
	ep := NoopEntryPoints()
	ep.OnWindowDragDrop = func(o uintptr, p string) {
		calls++
		panic(p)
	}
	link := CodeLink{SourcePath: "Drop.so", Entry: ep}

	if iv.WindowDragDrop(newTestObject(1, "a"), link, []string{"x", "y"}) {
		t.Error("WindowDragDrop() = true after a fault")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
