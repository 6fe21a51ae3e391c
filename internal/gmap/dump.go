package gmap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/tunable"
)

// DumpPath is the file an operand's request log is written to.
func DumpPath(dir string, t tunable.Tunable, op Operand) string {
	return filepath.Join(dir, fmt.Sprintf("gmap_%s_%s.dump", t.KernelName(), op.Tag()))
}

// Dump simulates one configuration and writes the three request logs into
// dir, which is created if missing. Banners are written before simulation so
// unsupported layouts still leave a header behind; the ErrUnsupported is
// returned afterwards.
func Dump(ctx context.Context, dir string, p conv.Params, t tunable.Tunable, gks uint, opts Options) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := makeDir(dir); err != nil {
		return nil, err
	}

	var files [numOperands]*os.File
	defer func() {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}()
	for _, op := range Operands {
		path := DumpPath(dir, t, op)
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("gmap: create dump: %w", err)
		}
		files[op] = f
		if err := WriteBanner(f, op, p, t); err != nil {
			return nil, fmt.Errorf("gmap: write %s: %w", path, err)
		}
	}

	res, err := Simulate(ctx, p, t, gks, opts)
	if err != nil {
		return nil, err
	}

	for _, op := range Operands {
		if err := WriteRequests(files[op], res.Requests[op]); err != nil {
			return nil, fmt.Errorf("gmap: write %s dump: %w", op, err)
		}
		if err := files[op].Close(); err != nil {
			return nil, fmt.Errorf("gmap: close %s dump: %w", op, err)
		}
		files[op] = nil
	}
	logger.FromContext(ctx).Info("gmap dumped", "dir", dir, "kernel", t.KernelName())
	return res, nil
}

func makeDir(dir string) error {
	err := unix.Mkdir(dir, 0o775)
	if err == nil || errors.Is(err, unix.EEXIST) {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return fmt.Errorf("gmap: create dir %s: [%d]%s: %w", dir, uintptr(errno), errno.Error(), err)
	}
	return fmt.Errorf("gmap: create dir %s: %w", dir, err)
}
