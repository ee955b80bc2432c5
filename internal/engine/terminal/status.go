package terminal

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/hotswap/internal/plugin"
)

// redrawEvery forces a redraw after this many frames without changes, so
// call counters stay current.
const redrawEvery = 30

// Row is one line of the plugin table.
type Row struct {
	Name       string
	Path       string
	State      plugin.State
	Generation uint64
	Stats      plugin.CallStats
}

var (
	styleTitle  = tcell.StyleDefault.Bold(true).Reverse(true)
	styleHeader = tcell.StyleDefault.Bold(true).Underline(true)
	styleNormal = tcell.StyleDefault
	styleDead   = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleDim    = tcell.StyleDefault.Dim(true)
)

// StatusRenderer is an engine.Renderer that draws the registered plugins,
// their state and call counters, followed by recent log lines.
type StatusRenderer struct {
	screen   tcell.Screen
	registry *plugin.Registry
	footer   func(n int) []string

	mu     sync.Mutex
	rows   []Row
	frame  int64
	drawn  int64
	reload int64

	dirty atomic.Bool
}

// StatusOption configures a StatusRenderer.
type StatusOption func(*StatusRenderer)

// WithFooter sets the source of the lines drawn under the table. It is
// asked for at most n lines.
func WithFooter(fn func(n int) []string) StatusOption {
	return func(r *StatusRenderer) {
		r.footer = fn
	}
}

// NewStatusRenderer draws reg onto screen.
func NewStatusRenderer(screen tcell.Screen, reg *plugin.Registry, opts ...StatusOption) *StatusRenderer {
	r := &StatusRenderer{
		screen:   screen,
		registry: reg,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dirty.Store(true)
	return r
}

// Record snapshots the registry.
func (r *StatusRenderer) Record() {
	rows := Rows(r.registry)

	r.mu.Lock()
	r.rows = rows
	r.frame++
	r.mu.Unlock()
}

// Draw redraws the screen when something changed or the periodic refresh
// is due.
func (r *StatusRenderer) Draw() {
	r.mu.Lock()
	due := r.frame-r.drawn >= redrawEvery
	r.mu.Unlock()
	if !r.dirty.Swap(false) && !due {
		return
	}

	r.mu.Lock()
	rows := r.rows
	frame := r.frame
	reloads := r.reload
	r.drawn = frame
	r.mu.Unlock()

	r.draw(rows, frame, reloads)
}

// MarkBuffersChanged counts a reload and forces a redraw.
func (r *StatusRenderer) MarkBuffersChanged() {
	r.mu.Lock()
	r.reload++
	r.mu.Unlock()
	r.dirty.Store(true)
}

// ScheduleRedraw forces a redraw on the next Draw.
func (r *StatusRenderer) ScheduleRedraw() {
	r.dirty.Store(true)
}

func (r *StatusRenderer) draw(rows []Row, frame, reloads int64) {
	s := r.screen
	s.Clear()
	width, height := s.Size()

	title := fmt.Sprintf(" hotswap  plugins: %d  frame: %d  reloads: %d ", len(rows), frame, reloads)
	fill(s, 0, 0, width, styleTitle)
	put(s, 0, 0, width, title, styleTitle)

	y := 2
	put(s, 0, y, width, fmt.Sprintf("%-20s %-8s %5s %10s %7s  %s", "PLUGIN", "STATE", "GEN", "CALLS", "FAULTS", "FILE"), styleHeader)
	y++
	for _, row := range rows {
		if y >= height {
			break
		}
		style := styleNormal
		if row.State == plugin.StateDead || row.State == plugin.StateError {
			style = styleDead
		}
		line := fmt.Sprintf("%-20s %-8s %5d %10d %7d  %s",
			clip(row.Name, 20), row.State, row.Generation, row.Stats.Calls, row.Stats.Faults, filepath.Base(row.Path))
		put(s, 0, y, width, line, style)
		y++
	}

	if r.footer != nil && y+1 < height {
		y++
		for _, line := range r.footer(height - y) {
			if y >= height {
				break
			}
			put(s, 0, y, width, line, styleDim)
			y++
		}
	}

	s.Show()
}

// Rows builds the table rows for reg in load order.
func Rows(reg *plugin.Registry) []Row {
	if reg == nil {
		return nil
	}
	insts := reg.List()
	rows := make([]Row, 0, len(insts))
	for _, inst := range insts {
		rows = append(rows, Row{
			Name:       inst.Name(),
			Path:       inst.SourcePath(),
			State:      inst.State(),
			Generation: inst.Generation(),
			Stats:      reg.Invoker().Stats(inst.SourcePath()),
		})
	}
	return rows
}

// put writes text at (x, y) one grapheme cluster at a time, honoring wide
// clusters and stopping at maxX.
func put(s tcell.Screen, x, y, maxX int, text string, style tcell.Style) {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		w := g.Width()
		if w == 0 {
			continue
		}
		if x+w > maxX {
			return
		}
		runes := g.Runes()
		s.SetContent(x, y, runes[0], runes[1:], style)
		x += w
	}
}

func fill(s tcell.Screen, x, y, maxX int, style tcell.Style) {
	for ; x < maxX; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

// clip truncates text to n display columns, marking the cut with "~".
func clip(text string, n int) string {
	if uniseg.StringWidth(text) <= n {
		return text
	}
	var out []byte
	width := 0
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		if width+g.Width() > n-1 {
			break
		}
		out = append(out, g.Str()...)
		width += g.Width()
	}
	return string(out) + "~"
}
