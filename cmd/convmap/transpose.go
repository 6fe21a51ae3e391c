package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand/v2"

	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v3"
	"github.com/x448/float16"

	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/transpose"
	"github.com/samcharles93/convmap/internal/transpose/hip"
)

type transposeShape struct {
	batch, height, width int64
	elemBytes            int64
	computeUnits         int64
}

func (s *transposeShape) flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "batch", Aliases: []string{"n"}, Usage: "matrices in the batch", Value: 1, Destination: &s.batch},
		&cli.Int64Flag{Name: "height", Usage: "rows per matrix", Required: true, Destination: &s.height},
		&cli.Int64Flag{Name: "width", Usage: "columns per matrix", Required: true, Destination: &s.width},
		&cli.Int64Flag{Name: "elem-bytes", Usage: "element size in bytes (1, 2 or 4)", Value: 4, Destination: &s.elemBytes},
		&cli.Int64Flag{Name: "compute-units", Usage: "device compute units for planning", Value: 1, Destination: &s.computeUnits},
	}
}

func (s *transposeShape) dims() (batch, height, width uint32, err error) {
	for _, v := range []struct {
		name string
		v    int64
	}{{"batch", s.batch}, {"height", s.height}, {"width", s.width}} {
		if v.v <= 0 || v.v > 1<<32-1 {
			return 0, 0, 0, fmt.Errorf("--%s %d out of range", v.name, v.v)
		}
	}
	return uint32(s.batch), uint32(s.height), uint32(s.width), nil
}

func transposeCmd() *cli.Command {
	return &cli.Command{
		Name:  "transpose",
		Usage: "Plan or run the batched NCHW/NHWC transpose kernels",
		Commands: []*cli.Command{
			transposePlanCmd(),
			transposeRunCmd(),
		},
	}
}

func transposePlanCmd() *cli.Command {
	var (
		shape      transposeShape
		codeObject string
	)
	return &cli.Command{
		Name:  "plan",
		Usage: "Print launch geometry and packed kernel arguments",
		Flags: shape.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyTransposeConfig(c, LoadConfig(), &shape.computeUnits, &codeObject)
			batch, height, width, err := shape.dims()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			name, err := transpose.KernelName(int(shape.elemBytes))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			plan, err := transpose.NewPlan(batch, height, width, int(shape.computeUnits))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			args := plan.Args(0, 0)
			packed, err := args.MarshalBinary()
			if err != nil {
				return err
			}

			w := c.Root().Writer
			_, _ = fmt.Fprintf(w, "kernel:  %s\n", name)
			_, _ = fmt.Fprintf(w, "grid:    %d x %d threads\n", plan.GridSize, plan.BlockSize)
			_, _ = fmt.Fprintf(w, "tiles:   %d (%d x %d per matrix)\n", plan.DimTotal, plan.DimH, plan.DimW)
			_, _ = fmt.Fprintf(w, "magic_h: %s\n", plan.MagicH)
			_, _ = fmt.Fprintf(w, "magic_w: %s\n", plan.MagicW)
			_, _ = fmt.Fprintf(w, "args:    %s\n", args)
			_, _ = fmt.Fprintf(w, "packed:  %s\n", hex.EncodeToString(packed))
			return nil
		},
	}
}

func transposeRunCmd() *cli.Command {
	var (
		shape      transposeShape
		codeObject string
		device     int64
	)
	return &cli.Command{
		Name:  "run",
		Usage: "Transpose random data on a HIP device and verify it against the host reference",
		Flags: append(shape.flags(),
			&cli.StringFlag{
				Name:        "code-object",
				Usage:       "path to the compiled transpose kernels (.hsaco)",
				Destination: &codeObject,
			},
			&cli.Int64Flag{
				Name:        "device",
				Usage:       "HIP device index",
				Destination: &device,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyTransposeConfig(c, LoadConfig(), &shape.computeUnits, &codeObject)
			if codeObject == "" {
				return cli.Exit("--code-object is required (or code_object in the config file)", 1)
			}
			batch, height, width, err := shape.dims()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			drv, err := hip.Open(int(device))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			k := transpose.NewKernels(drv, codeObject)

			n := int(batch) * int(height) * int(width)
			switch shape.elemBytes {
			case 4:
				err = verify(ctx, k, randomSlice(n, func(r *rand.Rand) float32 { return r.Float32() }), batch, height, width)
			case 2:
				err = verify(ctx, k, randomSlice(n, func(r *rand.Rand) float16.Float16 { return float16.Fromfloat32(r.Float32()) }), batch, height, width)
			case 1:
				err = verify(ctx, k, randomSlice(n, func(r *rand.Rand) uint8 { return uint8(r.Uint32()) }), batch, height, width)
			default:
				_, err = transpose.KernelName(int(shape.elemBytes))
			}
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			_, _ = fmt.Fprintf(c.Root().Writer, "transpose %dx%dx%d (%d-byte) verified\n", batch, height, width, shape.elemBytes)
			return nil
		},
	}
}

func randomSlice[T transpose.Element](n int, gen func(*rand.Rand) T) []T {
	r := rand.New(rand.NewPCG(1, 2))
	out := make([]T, n)
	for i := range out {
		out[i] = gen(r)
	}
	return out
}

func verify[T transpose.Element](ctx context.Context, k *transpose.Kernels, src []T, batch, height, width uint32) error {
	got := make([]T, len(src))
	if err := transpose.Run(ctx, k, got, src, batch, height, width); err != nil {
		return err
	}
	want := make([]T, len(src))
	if err := transpose.Host(want, src, int(batch), int(height), int(width)); err != nil {
		return err
	}
	if diff := cmp.Diff(want, got); diff != "" {
		logger.FromContext(ctx).Debug("transpose mismatch", "diff", diff)
		return fmt.Errorf("device transpose differs from host reference")
	}
	return nil
}
