package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/dshills/hotswap/internal/app"
	"github.com/dshills/hotswap/internal/config"
	"github.com/dshills/hotswap/internal/plugin"
	"github.com/dshills/hotswap/internal/plugin/dynlib"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "list the libraries the host would load and the entry points each exports",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, nil)
			if err != nil {
				return err
			}
			defer closeLog()

			reports, err := scanPlugins(cfg, dynlib.NewOpener(), logger.WithComponent("scan"))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLUGIN\tVERSION\tEXPORTS\tFILE\tMISSING")
			for _, r := range reports {
				if r.Err != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t%s\terror: %v\n", r.Name, r.Path, r.Err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
					r.Name, r.Version, r.Exports, len(plugin.EntryPointList()), r.Path, strings.Join(r.Missing, ","))
			}
			return tw.Flush()
		},
	}
}

// scanReport describes one candidate library.
type scanReport struct {
	Path    string
	Name    string
	Version string
	Exports int
	Missing []string
	Err     error
}

// scanPlugins opens every candidate library in place, binds its entry
// points and closes it again. No plugin code runs.
func scanPlugins(cfg *config.Config, opener dynlib.Opener, log *app.Logger) ([]scanReport, error) {
	scanner := plugin.NewScanner(plugin.NewRegistry(plugin.WithRegistryOpener(opener)), plugin.ScannerConfig{
		Dir:        cfg.Plugins.Dir,
		MaxDepth:   cfg.Plugins.MaxDepth,
		Extensions: cfg.Plugins.Extensions,
	})
	paths, err := scanner.Candidates()
	if err != nil {
		return nil, err
	}

	reports := make([]scanReport, 0, len(paths))
	for _, path := range paths {
		r := scanReport{Path: path}

		m, err := plugin.LoadManifest(path)
		if err != nil {
			log.Warn("%s: %v", path, err)
			m = plugin.NewManifestMinimal(path)
		}
		r.Name, r.Version = m.DisplayName, m.Version

		lib, err := opener.Open(path)
		if err != nil {
			r.Err = err
			reports = append(reports, r)
			continue
		}
		ep := plugin.BindEntryPoints(lib, m.DisplayName, log)
		for _, e := range ep.Missing() {
			r.Missing = append(r.Missing, e.Symbol())
		}
		r.Exports = len(plugin.EntryPointList()) - len(r.Missing)
		if err := lib.Close(); err != nil {
			log.Warn("%s: closing: %v", path, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
