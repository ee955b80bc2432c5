// Package terminal runs the host in a terminal: a tcell screen stands in
// for the window, its key, mouse, resize and focus events become engine
// input events, and a status view of the loaded plugins is drawn in place
// of a rendered scene.
package terminal

import (
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/hotswap/internal/engine"
)

// Key codes follow the common windowing convention: printable keys are
// their upper-case code point, special keys start at 256.
const (
	KeyEscape    int32 = 256
	KeyEnter     int32 = 257
	KeyTab       int32 = 258
	KeyBackspace int32 = 259
	KeyInsert    int32 = 260
	KeyDelete    int32 = 261
	KeyRight     int32 = 262
	KeyLeft      int32 = 263
	KeyDown      int32 = 264
	KeyUp        int32 = 265
	KeyPageUp    int32 = 266
	KeyPageDown  int32 = 267
	KeyHome      int32 = 268
	KeyEnd       int32 = 269
	KeyF1        int32 = 290
)

// Mouse buttons.
const (
	MouseLeft   int32 = 0
	MouseRight  int32 = 1
	MouseMiddle int32 = 2
)

var specialKeys = map[tcell.Key]int32{
	tcell.KeyEnter:      KeyEnter,
	tcell.KeyTab:        KeyTab,
	tcell.KeyBackspace:  KeyBackspace,
	tcell.KeyBackspace2: KeyBackspace,
	tcell.KeyInsert:     KeyInsert,
	tcell.KeyDelete:     KeyDelete,
	tcell.KeyRight:      KeyRight,
	tcell.KeyLeft:       KeyLeft,
	tcell.KeyDown:       KeyDown,
	tcell.KeyUp:         KeyUp,
	tcell.KeyPgUp:       KeyPageUp,
	tcell.KeyPgDn:       KeyPageDown,
	tcell.KeyHome:       KeyHome,
	tcell.KeyEnd:        KeyEnd,
}

// Window is an engine.Window backed by a tcell screen.
type Window struct {
	screen tcell.Screen
	events chan engine.InputEvent
	done   chan struct{}

	mu      sync.Mutex
	buttons tcell.ButtonMask
	lastX   int
	lastY   int
	closed  bool

	dropped atomic.Int64
}

// Option configures a Window.
type Option func(*windowConfig)

type windowConfig struct {
	bufferSize int
	mouse      bool
}

// WithBufferSize sets how many events may wait for the next frame.
func WithBufferSize(n int) Option {
	return func(c *windowConfig) {
		c.bufferSize = n
	}
}

// WithMouse enables or disables mouse reporting.
func WithMouse(enabled bool) Option {
	return func(c *windowConfig) {
		c.mouse = enabled
	}
}

// New opens the controlling terminal.
func New(opts ...Option) (*Window, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewWithScreen(screen, opts...)
}

// NewWithScreen initializes screen and starts relaying its events.
func NewWithScreen(screen tcell.Screen, opts ...Option) (*Window, error) {
	cfg := windowConfig{bufferSize: 256, mouse: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = 1
	}

	if err := screen.Init(); err != nil {
		return nil, err
	}
	if cfg.mouse {
		screen.EnableMouse()
	}
	screen.EnableFocus()
	screen.HideCursor()

	w := &Window{
		screen: screen,
		events: make(chan engine.InputEvent, cfg.bufferSize),
		done:   make(chan struct{}),
	}
	go w.pollLoop()
	return w, nil
}

// Screen returns the underlying screen.
func (w *Window) Screen() tcell.Screen {
	return w.screen
}

// Size returns the screen size in cells.
func (w *Window) Size() (int, int) {
	return w.screen.Size()
}

// Events returns the input event channel. It is closed by Close.
func (w *Window) Events() <-chan engine.InputEvent {
	return w.events
}

// Dropped returns the number of events discarded because the frame loop
// fell behind.
func (w *Window) Dropped() int64 {
	return w.dropped.Load()
}

// Close restores the terminal and stops the event relay.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.screen.Fini()
	<-w.done
	return nil
}

func (w *Window) pollLoop() {
	defer close(w.done)
	defer close(w.events)

	for {
		ev := w.screen.PollEvent()
		if ev == nil {
			return
		}
		for _, ie := range w.convertEvent(ev) {
			select {
			case w.events <- ie:
			default:
				w.dropped.Add(1)
			}
		}
	}
}

// convertEvent converts a tcell event into zero or more input events.
func (w *Window) convertEvent(ev tcell.Event) []engine.InputEvent {
	switch e := ev.(type) {
	case *tcell.EventKey:
		return []engine.InputEvent{convertKey(e)}

	case *tcell.EventMouse:
		x, y := e.Position()
		return w.convertMouse(x, y, e.Buttons(), convertMod(e.Modifiers()))

	case *tcell.EventResize:
		width, height := e.Size()
		return []engine.InputEvent{{
			Kind:   engine.InputWindowResize,
			Width:  int32(width),
			Height: int32(height),
		}}

	case *tcell.EventFocus:
		// losing focus is the closest a terminal gets to being iconified
		if e.Focused {
			return []engine.InputEvent{{Kind: engine.InputWindowIconifyRestore}}
		}
		return []engine.InputEvent{{Kind: engine.InputWindowIconify}}

	default:
		return nil
	}
}

// convertKey converts a tcell key event. Ctrl+C and Escape close the
// window.
func convertKey(e *tcell.EventKey) engine.InputEvent {
	switch e.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return engine.InputEvent{Kind: engine.InputWindowClose}
	}

	ev := engine.InputEvent{
		Kind:   engine.InputKey,
		Action: engine.ActionPress,
		Mods:   convertMod(e.Modifiers()),
	}
	switch k := e.Key(); {
	case k == tcell.KeyRune:
		ev.Key = int32(unicode.ToUpper(e.Rune()))
		ev.Scancode = int32(e.Rune())
		// tcell strips Shift from shifted runes
		if unicode.IsUpper(e.Rune()) {
			ev.Mods |= engine.ModShift
		}
	case k >= tcell.KeyF1 && k <= tcell.KeyF12:
		ev.Key = KeyF1 + int32(k-tcell.KeyF1)
	default:
		if code, ok := specialKeys[k]; ok {
			ev.Key = code
		} else if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
			ev.Key = 'A' + int32(k-tcell.KeyCtrlA)
			ev.Mods |= engine.ModControl
		} else {
			ev.Key = int32(k)
		}
	}
	return ev
}

// convertMouse diffs buttons against the previous event to produce press
// and release events, then reports motion as a move or, with a button
// held, a drag. Wheel steps become scroll events.
func (w *Window) convertMouse(x, y int, buttons tcell.ButtonMask, mods int32) []engine.InputEvent {
	var out []engine.InputEvent

	switch {
	case buttons&tcell.WheelUp != 0:
		out = append(out, engine.InputEvent{Kind: engine.InputMouseScroll, Y: 1, Mods: mods})
	case buttons&tcell.WheelDown != 0:
		out = append(out, engine.InputEvent{Kind: engine.InputMouseScroll, Y: -1, Mods: mods})
	case buttons&tcell.WheelLeft != 0:
		out = append(out, engine.InputEvent{Kind: engine.InputMouseScroll, X: -1, Mods: mods})
	case buttons&tcell.WheelRight != 0:
		out = append(out, engine.InputEvent{Kind: engine.InputMouseScroll, X: 1, Mods: mods})
	}

	pressed := buttons & (tcell.Button1 | tcell.Button2 | tcell.Button3)

	w.mu.Lock()
	prev := w.buttons
	moved := x != w.lastX || y != w.lastY
	w.buttons = pressed
	w.lastX, w.lastY = x, y
	w.mu.Unlock()

	for _, b := range []struct {
		mask tcell.ButtonMask
		id   int32
	}{
		{tcell.Button1, MouseLeft},
		{tcell.Button2, MouseRight},
		{tcell.Button3, MouseMiddle},
	} {
		switch {
		case pressed&b.mask != 0 && prev&b.mask == 0:
			out = append(out, engine.InputEvent{Kind: engine.InputMouseButton, Button: b.id, Action: engine.ActionPress, Mods: mods, X: float64(x), Y: float64(y)})
		case pressed&b.mask == 0 && prev&b.mask != 0:
			out = append(out, engine.InputEvent{Kind: engine.InputMouseButton, Button: b.id, Action: engine.ActionRelease, Mods: mods, X: float64(x), Y: float64(y)})
		}
	}

	if moved {
		kind := engine.InputMouseMove
		if pressed != 0 && prev != 0 {
			kind = engine.InputMouseDrag
		}
		out = append(out, engine.InputEvent{Kind: kind, X: float64(x), Y: float64(y), Mods: mods})
	}
	return out
}

func convertMod(m tcell.ModMask) int32 {
	var result int32
	if m&tcell.ModShift != 0 {
		result |= engine.ModShift
	}
	if m&tcell.ModCtrl != 0 {
		result |= engine.ModControl
	}
	if m&tcell.ModAlt != 0 {
		result |= engine.ModAlt
	}
	if m&tcell.ModMeta != 0 {
		result |= engine.ModSuper
	}
	return result
}
