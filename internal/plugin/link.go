package plugin

import "sort"

// CodeLink is one object's copy of a plugin's bound entry points.
//
// A CodeLink is a plain value. It does not reference the Instance it was
// taken from, and it is only valid while that instance's current library
// generation is mapped: Instance.Reload replaces every copy before any
// further call can reach the old one.
type CodeLink struct {
	DisplayName string
	SourcePath  string
	Generation  uint64
	Entry       EntryPoints
}

// Valid reports whether the link carries a callable table.
func (l CodeLink) Valid() bool {
	return l.SourcePath != "" && l.Entry.Complete()
}

// CodeLinks maps plugin source paths to the links an object holds.
type CodeLinks map[string]CodeLink

// Get returns the link for path.
func (c CodeLinks) Get(path string) (CodeLink, bool) {
	l, ok := c[path]
	return l, ok
}

// Set stores link under its source path.
func (c CodeLinks) Set(link CodeLink) {
	c[link.SourcePath] = link
}

// Delete removes the link for path and reports whether one existed.
func (c CodeLinks) Delete(path string) bool {
	if _, ok := c[path]; !ok {
		return false
	}
	delete(c, path)
	return true
}

// Keys returns the source paths in sorted order.
func (c CodeLinks) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scripted is a scene object that carries the script trait.
type Scripted interface {
	// Ref is the value passed to plugins as the obj argument.
	Ref() uintptr

	// Name is the node name used in diagnostics.
	Name() string

	// CodeLinks returns the object's live link map. Mutations through the
	// returned map are visible to the object.
	CodeLinks() CodeLinks
}

// ObjectSource enumerates the objects that carry the script trait.
type ObjectSource interface {
	ScriptedObjects() []Scripted
}

// ObjectSourceFunc adapts a function to ObjectSource.
type ObjectSourceFunc func() []Scripted

// ScriptedObjects calls f.
func (f ObjectSourceFunc) ScriptedObjects() []Scripted {
	return f()
}

// EachLink calls fn for every link of every scripted object in src, with
// each object's links in sorted key order. Links added or removed by fn are
// not visited in the same pass.
func EachLink(src ObjectSource, fn func(obj Scripted, link CodeLink)) {
	if src == nil {
		return
	}
	for _, obj := range src.ScriptedObjects() {
		links := obj.CodeLinks()
		for _, key := range links.Keys() {
			link, ok := links.Get(key)
			if !ok {
				continue
			}
			fn(obj, link)
		}
	}
}
