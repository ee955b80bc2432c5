package scene

import (
	"fmt"
	"math/bits"
	"strings"
)

// Trait identifies a kind of data an object may carry.
type Trait uint8

// Known traits.
const (
	TraitTransform Trait = iota
	TraitMesh
	TraitLight
	TraitCamera
	TraitRigidBody
	TraitScript

	traitCount
)

var traitNames = [traitCount]string{
	TraitTransform: "transform",
	TraitMesh:      "mesh",
	TraitLight:     "light",
	TraitCamera:    "camera",
	TraitRigidBody: "rigidbody",
	TraitScript:    "script",
}

// String returns the trait name.
func (t Trait) String() string {
	if t >= traitCount {
		return fmt.Sprintf("trait(%d)", uint8(t))
	}
	return traitNames[t]
}

// ParseTrait returns the trait called name.
func ParseTrait(name string) (Trait, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range traitNames {
		if n == name {
			return Trait(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTrait, name)
}

// TraitMask is a set of traits.
type TraitMask uint64

// MaskOf returns the mask holding traits.
func MaskOf(traits ...Trait) TraitMask {
	var m TraitMask
	for _, t := range traits {
		m.Set(t)
	}
	return m
}

// Set adds t.
func (m *TraitMask) Set(t Trait) {
	*m |= 1 << t
}

// Clear removes t.
func (m *TraitMask) Clear(t Trait) {
	*m &^= 1 << t
}

// Has reports whether t is in the mask.
func (m TraitMask) Has(t Trait) bool {
	return m&(1<<t) != 0
}

// ContainsAll returns true if every trait in other is also in m.
func (m TraitMask) ContainsAll(other TraitMask) bool {
	return m&other == other
}

// IsZero returns true if no traits are set.
func (m TraitMask) IsZero() bool {
	return m == 0
}

// Count returns the number of traits set.
func (m TraitMask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Traits lists the traits in the mask in ascending order.
func (m TraitMask) Traits() []Trait {
	out := make([]Trait, 0, m.Count())
	for rest := uint64(m); rest != 0; rest &= rest - 1 {
		out = append(out, Trait(bits.TrailingZeros64(rest)))
	}
	return out
}

// String returns the trait names joined by "|".
func (m TraitMask) String() string {
	if m == 0 {
		return "none"
	}
	names := make([]string, 0, m.Count())
	for _, t := range m.Traits() {
		names = append(names, t.String())
	}
	return strings.Join(names, "|")
}
