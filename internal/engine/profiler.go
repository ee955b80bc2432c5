package engine

import (
	"sort"
	"sync"
	"time"
)

// SectionStats accumulates timings for one profiled section.
type SectionStats struct {
	Name  string
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average section duration.
func (s SectionStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// SectionProfiler is a Profiler that keeps per-section totals in memory.
type SectionProfiler struct {
	mu       sync.Mutex
	sections map[string]*SectionStats
	now      func() time.Time
}

// NewSectionProfiler creates an empty profiler.
func NewSectionProfiler() *SectionProfiler {
	return &SectionProfiler{
		sections: make(map[string]*SectionStats),
		now:      time.Now,
	}
}

// Begin starts timing name.
func (p *SectionProfiler) Begin(name string) func() {
	start := p.now()
	return func() {
		d := p.now().Sub(start)

		p.mu.Lock()
		defer p.mu.Unlock()

		s, ok := p.sections[name]
		if !ok {
			s = &SectionStats{Name: name}
			p.sections[name] = s
		}
		s.Count++
		s.Total += d
		if d > s.Max {
			s.Max = d
		}
	}
}

// Stats returns all sections sorted by name.
func (p *SectionProfiler) Stats() []SectionStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]SectionStats, 0, len(p.sections))
	for _, s := range p.sections {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Measure runs fn inside section name of p. A nil profiler just runs fn.
func Measure(p Profiler, name string, fn func()) {
	if p == nil {
		fn()
		return
	}
	end := p.Begin(name)
	defer end()
	fn()
}
