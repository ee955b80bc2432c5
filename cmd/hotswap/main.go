// Package main is the entry point for the hotswap plugin host.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "hotswap",
		Usage:   "run native plugins and reload them when they are rebuilt",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML configuration file",
				EnvVars: []string{"HOTSWAP_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "plugins",
				Usage: "plugin directory (overrides plugins.dir)",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "directory for working copies (overrides plugins.work_dir)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides log.level)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json (overrides log.format)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write the log to this file instead of stderr",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			scanCommand(),
			configCommand(),
		},
		DefaultCommand: "run",
	}
}
