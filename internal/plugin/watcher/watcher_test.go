package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitEvent(t *testing.T, w *Watcher, want func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatal("event channel closed")
			}
			if want(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestOp(t *testing.T) {
	if !(OpCreate | OpWrite).Has(OpWrite) {
		t.Error("Has(OpWrite) = false")
	}
	if OpRemove.Changes() {
		t.Error("remove must not count as a change")
	}
	for _, op := range []Op{OpCreate, OpWrite, OpRename, OpWrite | OpRemove} {
		if !op.Changes() {
			t.Errorf("%v.Changes() = false", op)
		}
	}
	if OpRename.String() != "RENAME" || Op(0).String() != "UNKNOWN" {
		t.Error("String() mismatch")
	}
}

func TestWatchRecursive(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub", ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.WatchRecursive(dir); err != nil {
		t.Fatalf("WatchRecursive() error = %v", err)
	}
	if !w.IsWatching(dir) || !w.IsWatching(filepath.Join(dir, "sub")) {
		t.Error("directories not watched")
	}
	if w.IsWatching(filepath.Join(dir, "sub", ".hidden")) {
		t.Error("hidden directory watched")
	}
	if got := w.Stats().WatchedPaths; got != 2 {
		t.Errorf("WatchedPaths = %d, want 2", got)
	}

	if err := w.WatchRecursive(filepath.Join(dir, "missing")); !errors.Is(err, ErrPathNotExist) {
		t.Errorf("WatchRecursive(missing) = %v, want ErrPathNotExist", err)
	}
}

func TestWatcher_ReportsWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := New(WithFilter(func(p string) bool { return strings.HasSuffix(p, ".so") }))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".A.so.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	lib := filepath.Join(dir, "A.so")
	if err := os.WriteFile(lib, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, w, func(Event) bool { return true })
	if ev.Path != lib {
		t.Errorf("first event for %s, want %s", ev.Path, lib)
	}
	if !ev.Op.Changes() {
		t.Errorf("Op = %v", ev.Op)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(dir, "later")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !w.IsWatching(sub) {
		if time.Now().After(deadline) {
			t.Fatal("new subdirectory not watched")
		}
		time.Sleep(10 * time.Millisecond)
	}

	lib := filepath.Join(sub, "B.so")
	if err := os.WriteFile(lib, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w, func(ev Event) bool { return ev.Path == lib })
}

func TestWatcher_Close(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("events channel open after Close")
	}
	// the walk records the failure instead of returning it
	_ = w.WatchRecursive(t.TempDir())
	if w.Stats().Errors == 0 {
		t.Error("watching after Close not reported")
	}
}

type notifier struct {
	mu    sync.Mutex
	paths []string
	known string
}

func (n *notifier) MarkChanged(path string, at time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return path == n.known
}

func (n *notifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func TestForward(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "A.so")
	if err := os.WriteFile(lib, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}

	n := &notifier{known: lib}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() { done <- Forward(ctx, w, n, nil) }()

	if err := os.WriteFile(lib, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "A.so")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(n.seen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no change forwarded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	matched := <-done
	if matched < 1 {
		t.Errorf("Forward() matched %d, want at least 1", matched)
	}
	for _, p := range n.seen() {
		if p != lib {
			t.Errorf("forwarded unexpected path %s", p)
		}
	}
	w.Close()
}

func TestForward_StopsOnClose(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan int)
	go func() { done <- Forward(context.Background(), w, &notifier{}, nil) }()

	w.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Forward did not return after Close")
	}
}
