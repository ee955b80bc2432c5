package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOTSWAP_"

// envSetter applies one environment variable to a config.
type envSetter func(c *Config, value string) error

// envMapping maps environment variables to settings.
var envMapping = map[string]envSetter{
	"HOTSWAP_PLUGIN_DIR": func(c *Config, v string) error {
		c.Plugins.Dir = v
		return nil
	},
	"HOTSWAP_WORK_DIR": func(c *Config, v string) error {
		c.Plugins.WorkDir = v
		return nil
	},
	"HOTSWAP_WATCH": func(c *Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		c.Plugins.Watch = b
		return nil
	},
	"HOTSWAP_SETTLE": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Plugins.Settle = Duration(d)
		return nil
	},
	"HOTSWAP_LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = v
		return nil
	},
	"HOTSWAP_LOG_FORMAT": func(c *Config, v string) error {
		c.Log.Format = v
		return nil
	},
	"HOTSWAP_FRAMES_PER_TICK": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Loop.FramesPerTick = n
		return nil
	},
	"HOTSWAP_SLOW_CALL": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Invoke.SlowCall = Duration(d)
		return nil
	},
}

// EnvVars returns the recognized environment variable names.
func EnvVars() []string {
	out := make([]string, 0, len(envMapping))
	for name := range envMapping {
		out = append(out, name)
	}
	return out
}

// ApplyEnv applies HOTSWAP_* overrides to c. Empty values are treated as
// set. Unknown HOTSWAP_ variables are ignored.
func ApplyEnv(c *Config) error {
	return applyEnv(c, os.LookupEnv)
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for name, set := range envMapping {
		val, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(c, val); err != nil {
			return &ParseError{Path: "env " + name, Message: err.Error(), Err: err}
		}
	}
	return nil
}

// parseBool accepts the spellings the config file users expect.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
