package plugin

import (
	"errors"
	"testing"
)

func TestCodeLinks(t *testing.T) {
	links := make(CodeLinks)
	links.Set(CodeLink{SourcePath: "b.so", Entry: NoopEntryPoints()})
	links.Set(CodeLink{SourcePath: "a.so", Entry: NoopEntryPoints()})

	if got := links.Keys(); !equalStrings(got, []string{"a.so", "b.so"}) {
		t.Errorf("Keys() = %v", got)
	}
	l, ok := links.Get("a.so")
	if !ok || !l.Valid() {
		t.Errorf("Get(a.so) = %+v, %v", l, ok)
	}
	if !links.Delete("a.so") || links.Delete("a.so") {
		t.Error("Delete() must report whether a link existed")
	}
	if (CodeLink{}).Valid() {
		t.Error("zero link is valid")
	}
	if (CodeLink{SourcePath: "x.so"}).Valid() {
		t.Error("link without a table is valid")
	}
}

func TestEachLink(t *testing.T) {
	a := newTestObject(1, "a")
	b := newTestObject(2, "b")
	a.links.Set(CodeLink{SourcePath: "z.so"})
	a.links.Set(CodeLink{SourcePath: "m.so"})
	b.links.Set(CodeLink{SourcePath: "m.so"})
	src := &testScene{objs: []*testObject{a, b}}

	var got []string
	EachLink(src, func(obj Scripted, link CodeLink) {
		got = append(got, obj.Name()+" "+link.SourcePath)
		// deleting during the walk is allowed
		obj.CodeLinks().Delete(link.SourcePath)
	})

	want := []string{"a m.so", "a z.so", "b m.so"}
	if !equalStrings(got, want) {
		t.Errorf("visited %v, want %v", got, want)
	}
	if len(a.links)+len(b.links) != 0 {
		t.Error("links not deleted")
	}

	EachLink(nil, func(Scripted, CodeLink) { t.Error("called for nil source") })
}

func TestObjectSourceFunc(t *testing.T) {
	obj := newTestObject(5, "x")
	src := ObjectSourceFunc(func() []Scripted { return []Scripted{obj} })
	if got := src.ScriptedObjects(); len(got) != 1 || got[0].Ref() != 5 {
		t.Errorf("ScriptedObjects() = %v", got)
	}
}

func TestHandle(t *testing.T) {
	h := NewHandle("value")
	if h == 0 {
		t.Fatal("zero handle returned")
	}
	if v, ok := h.Value(); !ok || v != "value" {
		t.Errorf("Value() = %v, %v", v, ok)
	}
	if _, ok := ContextFromHandle(uintptr(h)); ok {
		t.Error("string resolved as a context")
	}
	if _, ok := LoggerFromHandle(uintptr(h)); ok {
		t.Error("string resolved as a logger")
	}

	h.Delete()
	if _, ok := h.Value(); ok {
		t.Error("deleted handle still resolves")
	}
	Handle(0).Delete()
	if _, ok := Handle(0).Value(); ok {
		t.Error("zero handle resolves")
	}

	lh := NewHandle(NopLogger)
	defer lh.Delete()
	if _, ok := LoggerFromHandle(uintptr(lh)); !ok {
		t.Error("logger handle did not resolve")
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		state  State
		name   string
		usable bool
	}{
		{StateUnloaded, "unloaded", false},
		{StateLoaded, "loaded", true},
		{StateDead, "dead", false},
		{StateError, "error", false},
		{State(9), "unknown", false},
	}
	for _, tt := range tests {
		if tt.state.String() != tt.name || tt.state.IsUsable() != tt.usable {
			t.Errorf("%d: String() = %q, IsUsable() = %v", tt.state, tt.state.String(), tt.state.IsUsable())
		}
	}
}

func TestOpError(t *testing.T) {
	err := NewOpError("reload", "plugins/A.so", ErrReload)
	if err.Error() != "reload plugins/A.so: plugin reload failed" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrReload) {
		t.Error("OpError does not unwrap")
	}
	if got := NewOpError("scan", "", ErrLoad).Error(); got != "scan: plugin load failed" {
		t.Errorf("Error() = %q", got)
	}

	var nilErr *OpError
	if nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Error("nil OpError must be safe")
	}
}
