package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the complete host configuration.
type Config struct {
	Plugins PluginsConfig  `toml:"plugins"`
	Loop    LoopConfig     `toml:"loop"`
	Log     LogConfig      `toml:"log"`
	Invoke  InvokeConfig   `toml:"invoke"`
	Objects []ObjectConfig `toml:"objects"`
}

// PluginsConfig configures discovery and hot reload.
type PluginsConfig struct {
	// Dir is the directory scanned for plugin libraries.
	Dir string `toml:"dir"`

	// WorkDir receives the private working copies. Empty means the
	// process working directory.
	WorkDir string `toml:"work_dir"`

	// MaxDepth bounds directory recursion.
	MaxDepth int `toml:"max_depth"`

	// Extensions overrides the platform library extensions.
	Extensions []string `toml:"extensions"`

	// Watch enables fsnotify change detection on top of the mtime poll.
	Watch bool `toml:"watch"`

	// Settle is how long a changed library must stay quiet before reload.
	Settle Duration `toml:"settle"`

	Backoff BackoffConfig `toml:"backoff"`
}

// BackoffConfig configures retries of libraries that failed to load.
type BackoffConfig struct {
	Initial    Duration `toml:"initial"`
	Max        Duration `toml:"max"`
	Multiplier float64  `toml:"multiplier"`
}

// LoopConfig configures the frame loop.
type LoopConfig struct {
	// FramesPerTick is the number of frames between two discovery passes.
	FramesPerTick int `toml:"frames_per_tick"`

	// FrameInterval paces frames. Zero runs them back to back.
	FrameInterval Duration `toml:"frame_interval"`

	// Ticks stops the loop after this many outer iterations. Zero runs
	// until quit.
	Ticks int `toml:"ticks"`

	// Scene names the scene created at startup.
	Scene string `toml:"scene"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`

	// Format is text or json.
	Format string `toml:"format"`

	// File receives the log instead of stderr when set.
	File string `toml:"file"`
}

// InvokeConfig configures plugin calls.
type InvokeConfig struct {
	// SlowCall logs a warning for any plugin call running longer. Zero
	// disables the check.
	SlowCall Duration `toml:"slow_call"`
}

// ObjectConfig describes an object spawned at startup and the plugins
// attached to it once they are loaded.
type ObjectConfig struct {
	Name    string   `toml:"name"`
	Traits  []string `toml:"traits"`
	Scripts []string `toml:"scripts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Plugins: PluginsConfig{
			Dir:      "plugins",
			MaxDepth: 5,
			Watch:    true,
			Settle:   Duration(250 * time.Millisecond),
			Backoff: BackoffConfig{
				Initial:    Duration(500 * time.Millisecond),
				Max:        Duration(30 * time.Second),
				Multiplier: 2.0,
			},
		},
		Loop: LoopConfig{
			FramesPerTick: 60,
			FrameInterval: Duration(16 * time.Millisecond),
			Scene:         "main",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Invoke: InvokeConfig{
			SlowCall: Duration(100 * time.Millisecond),
		},
	}
}

// Load reads the TOML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults without consulting the
// environment.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := cfg.decode("<reader>", data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses data into c. Unknown keys are rejected.
func (c *Config) decode(source string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}

		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			pe.Line, pe.Column = derr.Position()
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			pe.Message = strings.TrimSpace(serr.String())
		}
		return pe
	}
	return nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).SetIndentTables(true).Encode(c)
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if strings.TrimSpace(c.Plugins.Dir) == "" {
		bad("plugins.dir", "must not be empty", c.Plugins.Dir)
	}
	if c.Plugins.MaxDepth < 1 {
		bad("plugins.max_depth", "must be at least 1", c.Plugins.MaxDepth)
	}
	for _, ext := range c.Plugins.Extensions {
		if !strings.HasPrefix(ext, ".") {
			bad("plugins.extensions", "extensions start with a dot", ext)
		}
	}
	if c.Plugins.Settle < 0 {
		bad("plugins.settle", "must not be negative", c.Plugins.Settle)
	}
	if c.Plugins.Backoff.Initial < 0 || c.Plugins.Backoff.Max < 0 {
		bad("plugins.backoff", "delays must not be negative", c.Plugins.Backoff)
	}
	if c.Plugins.Backoff.Multiplier < 1 {
		bad("plugins.backoff.multiplier", "must be at least 1", c.Plugins.Backoff.Multiplier)
	}
	if c.Loop.FramesPerTick < 1 {
		bad("loop.frames_per_tick", "must be at least 1", c.Loop.FramesPerTick)
	}
	if c.Loop.FrameInterval < 0 {
		bad("loop.frame_interval", "must not be negative", c.Loop.FrameInterval)
	}
	if c.Loop.Ticks < 0 {
		bad("loop.ticks", "must not be negative", c.Loop.Ticks)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		bad("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		bad("log.format", "must be text or json", c.Log.Format)
	}
	if c.Invoke.SlowCall < 0 {
		bad("invoke.slow_call", "must not be negative", c.Invoke.SlowCall)
	}

	names := make(map[string]bool, len(c.Objects))
	for i, o := range c.Objects {
		path := fmt.Sprintf("objects[%d]", i)
		if o.Name == "" {
			bad(path+".name", "must not be empty", o.Name)
		} else if names[o.Name] {
			bad(path+".name", "duplicate object name", o.Name)
		}
		names[o.Name] = true
	}

	return errors.Join(errs...)
}
