package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dshills/hotswap/internal/app"
	"github.com/dshills/hotswap/internal/engine"
	"github.com/dshills/hotswap/internal/engine/terminal"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "load every plugin in the plugin directory and run the frame loop",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "ticks",
				Usage: "stop after this many discovery ticks (0 runs until interrupted)",
			},
			&cli.BoolFlag{
				Name:  "terminal",
				Usage: "show a live plugin table instead of running headless",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	opts := app.Options{Config: cfg}

	var window *terminal.Window
	var logFallback io.Writer
	if c.Bool("terminal") {
		window, err = terminal.New()
		if err != nil {
			return fmt.Errorf("opening terminal: %w", err)
		}
		// the screen owns stdout; the log shows in the footer
		logFallback = io.Discard
		opts.Window = window
	}

	logger, closeLog, err := newLogger(cfg, logFallback)
	if err != nil {
		if window != nil {
			window.Close()
		}
		return err
	}
	defer closeLog()
	opts.Logger = logger
	profiler := engine.NewSectionProfiler()
	opts.Profiler = profiler

	application, err := app.New(opts)
	if err != nil {
		if window != nil {
			window.Close()
		}
		return err
	}

	if window != nil {
		history := application.LogHistory()
		renderer := terminal.NewStatusRenderer(window.Screen(), application.Registry(),
			terminal.WithFooter(func(n int) []string {
				entries := history.Entries()
				if len(entries) > n {
					entries = entries[len(entries)-n:]
				}
				lines := make([]string, len(entries))
				for i, e := range entries {
					lines[i] = fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05"), e.Level, e.Message)
				}
				return lines
			}))
		if err := application.SetRenderer(renderer); err != nil {
			application.Close()
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)

	snap := application.Metrics().Snapshot()
	logger.Info("ran %d frames in %d ticks (%.1f fps avg), %d reloads, %d plugin faults",
		snap.FrameCount, snap.TickCount, snap.AvgFPS(), snap.Reloads, snap.UpdateFaults)
	for _, sec := range profiler.Stats() {
		logger.Debug("section %-8s n=%d mean=%s max=%s", sec.Name, sec.Count, sec.Mean(), sec.Max)
	}
	return err
}
