package fileio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.so")
	write(t, path, "x")

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatal(err)
	}
	got, err := Stamp(path)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(at) {
		t.Errorf("Stamp() = %v, want %v", got, at)
	}

	if _, err := Stamp(dir); err == nil {
		t.Error("Stamp(dir) succeeded")
	}
	if _, err := Stamp(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("Stamp(missing) = %v", err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.so")
	write(t, src, "library bytes")
	if err := os.Chmod(src, 0o750); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "work", "deeper", "src.so")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "library bytes" {
		t.Errorf("copied %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o750 {
		t.Errorf("mode = %v, want 0750", info.Mode().Perm())
	}

	// overwrite in place
	write(t, src, "v2")
	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "v2" {
		t.Errorf("after overwrite %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.so")
	if err := CopyFile(filepath.Join(dir, "missing.so"), dst); err == nil {
		t.Fatal("CopyFile() of a missing source succeeded")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("destination created")
	}
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a")
	write(t, path, "x")
	if err := RemoveIfExists(path); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Errorf("second RemoveIfExists() = %v", err)
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{
		"a.so",
		"b.txt",
		".hidden.so",
		".cache/c.so",
		"one/d.so",
		"one/two/e.so",
		"one/two/three/f.so",
	} {
		write(t, filepath.Join(dir, rel), "x")
	}

	rel := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			r, _ := filepath.Rel(dir, p)
			out[i] = filepath.ToSlash(r)
		}
		return out
	}

	tests := []struct {
		name  string
		depth int
		keep  func(string) bool
		want  []string
	}{
		{"depth 1", 1, nil, []string{"a.so", "b.txt"}},
		{"depth 3", 3, nil, []string{"a.so", "b.txt", "one/d.so", "one/two/e.so"}},
		{"filtered", 5, func(p string) bool { return strings.HasSuffix(p, ".so") },
			[]string{"a.so", "one/d.so", "one/two/e.so", "one/two/three/f.so"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := ListFiles(dir, tt.depth, tt.keep)
			if err != nil {
				t.Fatal(err)
			}
			got := rel(files)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ListFiles() = %v, want %v", got, tt.want)
			}
		})
	}

	files, err := ListFiles(filepath.Join(dir, "missing"), 5, nil)
	if err != nil || len(files) != 0 {
		t.Errorf("ListFiles(missing) = %v, %v", files, err)
	}
}
