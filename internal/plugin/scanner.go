package plugin

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/fileio"
	"github.com/dshills/hotswap/internal/plugin/dynlib"
)

// BackoffConfig configures how long a library that failed to load is left
// alone before the scanner tries it again.
type BackoffConfig struct {
	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the wait.
	MaxDelay time.Duration

	// Multiplier multiplies the wait after each further failure.
	Multiplier float64
}

// DefaultBackoffConfig returns sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait after the given number of consecutive failures.
func (c BackoffConfig) Delay(failures int) time.Duration {
	if failures <= 0 || c.InitialDelay <= 0 {
		return 0
	}
	delay := c.InitialDelay
	for i := 1; i < failures; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// ScannerConfig configures plugin discovery.
type ScannerConfig struct {
	// Dir is the plugin directory.
	Dir string

	// MaxDepth bounds directory recursion. Files directly in Dir are at
	// depth 1.
	MaxDepth int

	// Extensions overrides the accepted library extensions. Empty means
	// the platform default.
	Extensions []string

	// Settle is how long a changed library must stay unchanged before its
	// reload is queued.
	Settle time.Duration

	// Backoff governs retries of libraries that failed to load.
	Backoff BackoffConfig
}

// DefaultScannerConfig returns sensible defaults.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Dir:      "plugins",
		MaxDepth: 5,
		Settle:   250 * time.Millisecond,
		Backoff:  DefaultBackoffConfig(),
	}
}

// ReloadQueue receives reload requests found by WatchFS. QueueReload
// reports false when a reload of path is already queued.
type ReloadQueue interface {
	QueueReload(path string) bool
}

// ScanResult summarizes one Scan.
type ScanResult struct {
	Loaded  []string
	Failed  []string
	Backoff []string
}

// loadFailure remembers a library that failed to load.
type loadFailure struct {
	attempts int
	next     time.Time
	stamp    time.Time
	err      error
}

// Scanner discovers plugin libraries and detects changes to loaded ones.
type Scanner struct {
	registry *Registry
	config   ScannerConfig
	log      Logger
	now      func() time.Time

	mu       sync.Mutex
	failures map[string]*loadFailure
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScannerLogger sets the logger.
func WithScannerLogger(l Logger) ScannerOption {
	return func(s *Scanner) {
		s.log = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		s.now = now
	}
}

// NewScanner creates a scanner feeding reg.
func NewScanner(reg *Registry, config ScannerConfig, opts ...ScannerOption) *Scanner {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultScannerConfig().MaxDepth
	}
	s := &Scanner{
		registry: reg,
		config:   config,
		now:      time.Now,
		failures: make(map[string]*loadFailure),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = orNop(s.log)
	return s
}

// Config returns the scanner configuration.
func (s *Scanner) Config() ScannerConfig {
	return s.config
}

// Dir returns the plugin directory.
func (s *Scanner) Dir() string {
	return s.config.Dir
}

// IsCandidate reports whether path has an accepted library extension.
func (s *Scanner) IsCandidate(path string) bool {
	if len(s.config.Extensions) == 0 {
		return dynlib.IsLibrary(path)
	}
	ext := filepath.Ext(path)
	for _, want := range s.config.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// Candidates lists every library file under the plugin directory, sorted.
// Working copies of registered plugins are excluded.
func (s *Scanner) Candidates() ([]string, error) {
	return fileio.ListFiles(s.config.Dir, s.config.MaxDepth, func(p string) bool {
		return s.IsCandidate(p) && !s.registry.IsWorkPath(p)
	})
}

// Scan loads every candidate library not yet registered. A library that
// fails to load is not registered; it is retried once its backoff expires,
// or at once if the file changed since the failure.
func (s *Scanner) Scan(ec *engine.Context) ScanResult {
	var res ScanResult

	paths, err := s.Candidates()
	if err != nil {
		s.log.Error("plugin scan of %s failed: %v", s.config.Dir, err)
		return res
	}

	now := s.now()
	for _, path := range paths {
		path = filepath.Clean(path)
		if s.registry.Has(path) {
			continue
		}
		if s.backingOff(path, now) {
			res.Backoff = append(res.Backoff, path)
			continue
		}

		if _, err := s.registry.Load(path, ec); err != nil {
			s.recordFailure(path, now, err)
			res.Failed = append(res.Failed, path)
			continue
		}
		s.clearFailure(path)
		res.Loaded = append(res.Loaded, path)
	}

	s.pruneFailures(paths)
	return res
}

// WatchFS queues a reload for every registered plugin that is pending or
// whose source changed on disk, once the change has settled. A dead plugin
// with an unchanged source is retried only when its backoff delay runs out.
// It returns the number of reloads queued.
func (s *Scanner) WatchFS(q ReloadQueue) int {
	now := s.now()
	queued := 0
	for _, inst := range s.registry.List() {
		if !inst.Pending() && inst.Stale() {
			inst.MarkChanged(now)
		}

		switch {
		case inst.State() == StateDead && !inst.Pending():
			if s.retryDead(inst, now) && q.QueueReload(inst.SourcePath()) {
				s.log.Debug("plugin %s: retrying dead plugin", inst.SourcePath())
				queued++
			}
			continue
		case inst.State() == StateLoaded:
			s.clearFailure(inst.SourcePath())
		}

		if !inst.Pending() || !inst.SettledFor(s.config.Settle, now) {
			continue
		}
		if q.QueueReload(inst.SourcePath()) {
			s.log.Debug("plugin %s: reload queued", inst.SourcePath())
			queued++
		}
	}
	return queued
}

// Failures returns the last load error of every library in backoff.
func (s *Scanner) Failures() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]error, len(s.failures))
	for path, f := range s.failures {
		out[path] = f.err
	}
	return out
}

// FailedPaths returns the libraries in backoff, sorted.
func (s *Scanner) FailedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.failures))
	for path := range s.failures {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (s *Scanner) backingOff(path string, now time.Time) bool {
	s.mu.Lock()
	f, ok := s.failures[path]
	s.mu.Unlock()
	if !ok {
		return false
	}

	if mt, err := fileio.Stamp(path); err == nil && !mt.Equal(f.stamp) {
		return false
	}
	return now.Before(f.next)
}

func (s *Scanner) recordFailure(path string, now time.Time, err error) {
	stamp, _ := fileio.Stamp(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failures[path]
	if !ok || !stamp.Equal(f.stamp) {
		f = &loadFailure{stamp: stamp}
		s.failures[path] = f
	}
	f.attempts++
	f.err = err
	delay := s.config.Backoff.Delay(f.attempts)
	f.next = now.Add(delay)

	s.log.Debug("plugin %s: retry in %s after %d failed attempts", path, delay, f.attempts)
}

// retryDead reports whether a dead plugin is due for another reload. The
// first call after a failure, or after the source changed, starts the delay.
func (s *Scanner) retryDead(inst *Instance, now time.Time) bool {
	path := inst.SourcePath()
	stamp, _ := fileio.Stamp(path)

	s.mu.Lock()
	f, ok := s.failures[path]
	due := ok && stamp.Equal(f.stamp) && !now.Before(f.next)
	fresh := !ok || !stamp.Equal(f.stamp)
	s.mu.Unlock()

	if fresh || due {
		s.recordFailure(path, now, inst.Err())
	}
	return due
}

func (s *Scanner) clearFailure(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// pruneFailures forgets libraries that disappeared from the directory.
func (s *Scanner) pruneFailures(present []string) {
	seen := make(map[string]bool, len(present))
	for _, p := range present {
		seen[filepath.Clean(p)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.failures {
		if !seen[path] {
			delete(s.failures, path)
		}
	}
}
