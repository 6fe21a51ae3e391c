package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convmap/internal/gmap"
	"github.com/samcharles93/convmap/internal/tunable"
	"github.com/samcharles93/convmap/internal/tuning"
)

func rankCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "rank",
		Usage: "Rank tunables for a convolution by simulated memory access efficiency",
		Flags: append(append(convFlags(), tunableFlags()...),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print scores as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyWorkersConfig(c, LoadConfig())
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

			scores, err := tuning.NewRanker(gmap.Options{Workers: int(workers)}).Rank(ctx, p, tunables, split)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			out := c.Root().Writer
			if asJSON {
				b, err := json.MarshalIndent(scores, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "RANK\tEFFICIENCY\tWARNINGS\tKERNEL")
			for i, s := range scores {
				_, _ = fmt.Fprintf(tw, "%d\t%.2f%%\t%d\t%s\n", i+1, 100*s.Efficiency, s.Warnings, s.Kernel)
			}
			return tw.Flush()
		},
	}
}
