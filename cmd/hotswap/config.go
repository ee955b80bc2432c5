package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dshills/hotswap/internal/app"
	"github.com/dshills/hotswap/internal/config"
)

// loadConfig loads the configuration file and environment, then applies the
// global flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("plugins") {
		cfg.Plugins.Dir = c.String("plugins")
	}
	if c.IsSet("work-dir") {
		cfg.Plugins.WorkDir = c.String("work-dir")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("ticks") {
		cfg.Loop.Ticks = c.Int("ticks")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the application logger. When fallback is non-nil it
// receives the log if no file is configured.
func newLogger(cfg *config.Config, fallback io.Writer) (*app.Logger, func() error, error) {
	lc := app.DefaultLoggerConfig()
	lc.Level = app.ParseLogLevel(cfg.Log.Level)
	lc.Format = cfg.Log.Format

	closer := func() error { return nil }
	switch {
	case cfg.Log.File != "":
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		lc.Output = f
		closer = f.Close
	case fallback != nil:
		lc.Output = fallback
	}
	return app.NewLogger(lc), closer, nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration as TOML",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return cfg.Encode(c.App.Writer)
		},
	}
}
