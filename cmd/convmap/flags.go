package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/logger"
)

var (
	logLevel  string
	logFormat string
	debug     bool

	convPath     string
	tunablesPath string
	gks          int64
	workers      int64
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging builds the process logger from flags and the config file and
// attaches it to the command context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := LoadConfig()
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log, err := logger.FromFormat(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}

// convFieldNames are the named integer fields a convolution is built from.
var convFieldNames = []struct {
	name  string
	usage string
}{
	{"in_h", "input height"},
	{"in_w", "input width"},
	{"batchsize", "batch size"},
	{"out_channels", "output channels (k)"},
	{"in_channels", "input channels (c)"},
	{"conv_stride_h", "vertical stride (default 1)"},
	{"conv_stride_w", "horizontal stride (default 1)"},
	{"dilation_h", "vertical dilation (default 1)"},
	{"dilation_w", "horizontal dilation (default 1)"},
	{"pad_h", "vertical padding (default 0)"},
	{"pad_w", "horizontal padding (default 0)"},
	{"fil_h", "filter height"},
	{"fil_w", "filter width"},
	{"group_count", "group count (default 1)"},
}

func convFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conv",
			Usage:       "YAML or JSON file with convolution parameters (overrides the field flags)",
			Destination: &convPath,
		},
	}
	for _, f := range convFieldNames {
		flags = append(flags, &cli.Int64Flag{Name: f.name, Usage: f.usage})
	}
	return flags
}

func tunableFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tunables",
			Aliases:     []string{"t"},
			Usage:       "YAML or JSON file with one tunable or a list of tunables",
			Required:    true,
			Destination: &tunablesPath,
		},
		&cli.Int64Flag{
			Name:        "gks",
			Usage:       "global split-k exponent (splits = 2^gks) for tunables with gemm_k_global_split",
			Destination: &gks,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "goroutines deriving thread addresses (<= 1 runs sequentially)",
			Value:       1,
			Destination: &workers,
		},
	}
}

// flagLookup exposes the convolution field flags as a conv.Lookup. Flags the
// user did not set are reported missing so defaults apply.
type flagLookup struct {
	cmd *cli.Command
}

func (l flagLookup) Int(name string) (int64, bool) {
	if !l.cmd.IsSet(name) {
		return 0, false
	}
	return l.cmd.Int64(name), true
}

func resolveConv(cmd *cli.Command) (conv.Params, error) {
	if convPath != "" {
		return conv.Load(convPath)
	}
	p, err := conv.FromLookup(flagLookup{cmd: cmd})
	if err != nil {
		return conv.Params{}, fmt.Errorf("convolution flags: %w", err)
	}
	return p, nil
}

func splitExponent() (uint, error) {
	if gks < 0 || gks >= 32 {
		return 0, fmt.Errorf("--gks %d out of range [0, 31]", gks)
	}
	return uint(gks), nil
}
