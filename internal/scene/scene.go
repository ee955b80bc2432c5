// Package scene is a minimal scene: named objects carrying trait masks.
// Objects with the script trait hold the plugin code links invoked by the
// frame loop.
package scene

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/hotswap/internal/plugin"
)

// Scene errors.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUnknownTrait   = errors.New("unknown trait")
)

// ScriptTrait is the data of the script trait: the object's code links,
// keyed by plugin source path.
type ScriptTrait struct {
	Links plugin.CodeLinks
}

// Object is an entity in the scene.
type Object struct {
	ref    uintptr
	id     uuid.UUID
	name   string
	traits TraitMask
	script *ScriptTrait
}

// Ref returns the numeric reference handed to plugins.
func (o *Object) Ref() uintptr { return o.ref }

// ID returns the object's UUID.
func (o *Object) ID() uuid.UUID { return o.id }

// Name returns the object name.
func (o *Object) Name() string { return o.name }

// Traits returns the object's trait mask.
func (o *Object) Traits() TraitMask { return o.traits }

// Has reports whether the object carries t.
func (o *Object) Has(t Trait) bool { return o.traits.Has(t) }

// ScriptTrait returns the script trait data, or nil without the trait.
func (o *Object) ScriptTrait() *ScriptTrait { return o.script }

// CodeLinks returns the live link map of the script trait. Objects without
// the trait return an empty map that is not retained.
func (o *Object) CodeLinks() plugin.CodeLinks {
	if o.script == nil {
		return plugin.CodeLinks{}
	}
	return o.script.Links
}

// Scene holds the objects of one scene.
type Scene struct {
	mu      sync.RWMutex
	name    string
	objects map[uintptr]*Object
	nextRef uintptr
}

// New creates an empty scene.
func New(name string) *Scene {
	return &Scene{
		name:    name,
		objects: make(map[uintptr]*Object),
	}
}

// Name returns the scene name.
func (s *Scene) Name() string {
	return s.name
}

// Len returns the number of objects.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Spawn creates an object with the given traits. References start at 1
// and are never reused.
func (s *Scene) Spawn(name string, traits ...Trait) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRef++
	o := &Object{
		ref:  s.nextRef,
		id:   uuid.New(),
		name: name,
	}
	for _, t := range traits {
		s.addTraitLocked(o, t)
	}
	s.objects[o.ref] = o
	return o
}

// Object returns the object with ref.
func (s *Scene) Object(ref uintptr) (*Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[ref]
	return o, ok
}

// Find returns the first object named name, by ascending ref.
func (s *Scene) Find(name string) (*Object, bool) {
	for _, o := range s.Objects() {
		if o.name == name {
			return o, true
		}
	}
	return nil, false
}

// ByID returns the object with the given UUID.
func (s *Scene) ByID(id uuid.UUID) (*Object, bool) {
	for _, o := range s.Objects() {
		if o.id == id {
			return o, true
		}
	}
	return nil, false
}

// Objects returns every object sorted by ref.
func (s *Scene) Objects() []*Object {
	return s.FetchObjectsByTraits(0)
}

// FetchObjectsByTraits returns the objects carrying every trait in mask,
// sorted by ref.
func (s *Scene) FetchObjectsByTraits(mask TraitMask) []*Object {
	s.mu.RLock()
	out := make([]*Object, 0, len(s.objects))
	for _, o := range s.objects {
		if o.traits.ContainsAll(mask) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ref < out[j].ref })
	return out
}

// ScriptedObjects returns the objects with the script trait. It satisfies
// plugin.ObjectSource.
func (s *Scene) ScriptedObjects() []plugin.Scripted {
	objs := s.FetchObjectsByTraits(MaskOf(TraitScript))
	out := make([]plugin.Scripted, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

// AddTrait adds t to the object with ref. Adding the script trait gives the
// object an empty link map. Adding a trait twice is a no-op.
func (s *Scene) AddTrait(ref uintptr, t Trait) error {
	if t >= traitCount {
		return ErrUnknownTrait
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[ref]
	if !ok {
		return ErrObjectNotFound
	}
	s.addTraitLocked(o, t)
	return nil
}

func (s *Scene) addTraitLocked(o *Object, t Trait) {
	if o.traits.Has(t) {
		return
	}
	o.traits.Set(t)
	if t == TraitScript {
		o.script = &ScriptTrait{Links: make(plugin.CodeLinks)}
	}
}

// RemoveTrait removes t from the object with ref. Removing the script
// trait drops its links; callers end them first.
func (s *Scene) RemoveTrait(ref uintptr, t Trait) error {
	if t >= traitCount {
		return ErrUnknownTrait
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[ref]
	if !ok {
		return ErrObjectNotFound
	}
	o.traits.Clear(t)
	if t == TraitScript {
		o.script = nil
	}
	return nil
}

// Destroy removes the object with ref. It reports whether it existed.
func (s *Scene) Destroy(ref uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[ref]; !ok {
		return false
	}
	delete(s.objects, ref)
	return true
}
