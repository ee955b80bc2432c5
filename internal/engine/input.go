package engine

// InputKind identifies the type of an input event.
type InputKind int

// Input event kinds. Each maps to one plugin callback.
const (
	InputNone InputKind = iota
	InputMouseButton
	InputMouseMove
	InputMouseDrag
	InputMouseScroll
	InputKey
	InputWindowResize
	InputWindowDrop
	InputWindowIconify
	InputWindowIconifyRestore
	InputWindowMaximize
	InputWindowMaximizeRestore

	// InputWindowClose asks the host to quit. It is not forwarded to
	// plugins.
	InputWindowClose
)

// String returns a string representation of the kind.
func (k InputKind) String() string {
	switch k {
	case InputNone:
		return "none"
	case InputMouseButton:
		return "mouse"
	case InputMouseMove:
		return "mouse-move"
	case InputMouseDrag:
		return "mouse-drag"
	case InputMouseScroll:
		return "mouse-scroll"
	case InputKey:
		return "key"
	case InputWindowResize:
		return "window-resize"
	case InputWindowDrop:
		return "window-drop"
	case InputWindowIconify:
		return "window-iconify"
	case InputWindowIconifyRestore:
		return "window-iconify-restore"
	case InputWindowMaximize:
		return "window-maximize"
	case InputWindowMaximizeRestore:
		return "window-maximize-restore"
	case InputWindowClose:
		return "window-close"
	default:
		return "unknown"
	}
}

// Button and key actions, matching the usual windowing convention.
const (
	ActionRelease int32 = 0
	ActionPress   int32 = 1
	ActionRepeat  int32 = 2
)

// Modifier bits.
const (
	ModShift int32 = 1 << iota
	ModControl
	ModAlt
	ModSuper
)

// InputEvent is one window or input event forwarded to plugins.
type InputEvent struct {
	Kind InputKind

	// Mouse button and keyboard fields
	Button   int32
	Key      int32
	Scancode int32
	Action   int32
	Mods     int32

	// Cursor position, drag position, or scroll offsets
	X, Y float64

	// Window resize
	Width, Height int32

	// Dropped file paths
	Paths []string
}
