package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convmap/internal/gmap"
	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/tunable"
)

func gmapCmd() *cli.Command {
	var (
		dumpDir string
		strict  bool
	)

	return &cli.Command{
		Name:  "gmap",
		Usage: "Simulate global-memory requests of each tunable, write dumps and check coverage",
		Flags: append(append(convFlags(), tunableFlags()...),
			&cli.StringFlag{
				Name:        "dump-dir",
				Aliases:     []string{"o"},
				Usage:       "directory for request dumps (default $" + envDumpDir + " or ./gmap)",
				Destination: &dumpDir,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "exit non-zero when any coverage warning is reported",
				Destination: &strict,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyWorkersConfig(c, cfg)
			dir := resolveDumpDir(dumpDir, cfg.DumpDir)

			p, err := resolveConv(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			split, err := splitExponent()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			tunables, err := tunable.Load(tunablesPath)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("gmap start", "conv", p.String(), "tunables", len(tunables), "dir", dir)

			var failed, warned int
			for _, t := range tunables {
				res, err := gmap.Dump(ctx, dir, p, t, split, gmap.Options{Workers: int(workers)})
				if err != nil {
					log.Error("gmap failed", "kernel", t.KernelName(), "error", err)
					failed++
					continue
				}
				warnings := res.Check(logger.WithContext(ctx, log.With("kernel", t.KernelName())))
				if len(warnings) > 0 {
					warned++
				}
				printSummary(c, t, res, len(warnings))
			}

			switch {
			case failed > 0:
				return cli.Exit(fmt.Sprintf("gmap: %d of %d tunables failed", failed, len(tunables)), 1)
			case strict && warned > 0:
				return cli.Exit(fmt.Sprintf("gmap: %d of %d tunables have coverage warnings", warned, len(tunables)), 1)
			}
			return nil
		},
	}
}

func printSummary(c *cli.Command, t tunable.Tunable, res *gmap.Result, warnings int) {
	w := c.Root().Writer
	_, _ = fmt.Fprintf(w, "%s grid:%d block:%d warnings:%d\n", t.KernelName(), res.GridSize, res.BlockSize, warnings)
	for _, op := range gmap.Operands {
		s := res.Stats(op)
		_, _ = fmt.Fprintf(w, "  %s requests:%d access:%d/%d(%.1f%%) touched:%d/%d\n",
			op.Tag(), s.Requests, s.ValidLanes, s.TotalLanes, 100*s.Efficiency(), s.Touched, s.Elements)
	}
}
