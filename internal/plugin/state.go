package plugin

// State represents the lifecycle state of a plugin instance.
type State int

// Plugin states.
const (
	// StateUnloaded - no library is mapped.
	StateUnloaded State = iota

	// StateLoaded - a library is mapped and its entry points are bound.
	StateLoaded

	// StateDead - a reload tore down the old library but could not map
	// the new one. Nothing may be invoked until a later reload succeeds.
	StateDead

	// StateError - the initial load failed.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateDead:
		return "dead"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsUsable returns true if entry points may be invoked.
func (s State) IsUsable() bool {
	return s == StateLoaded
}
