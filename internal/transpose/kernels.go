package transpose

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/samcharles93/convmap/internal/logger"
)

// Module and Function are opaque driver handles.
type (
	Module   uintptr
	Function uintptr
)

// Driver is the slice of a GPU runtime the transpose dispatch needs.
type Driver interface {
	ComputeUnits() (int, error)
	LoadModule(path string) (Module, error)
	Function(m Module, name string) (Function, error)
	// Launch starts fn on grid blocks of block threads with a packed
	// argument buffer.
	Launch(fn Function, grid, block uint32, args []byte) error

	Alloc(bytes int) (DevicePtr, error)
	Free(p DevicePtr) error
	CopyToDevice(dst DevicePtr, src []byte) error
	CopyFromDevice(dst []byte, src DevicePtr) error
	Synchronize() error
}

// kernelNames maps element size in bytes to the kernel symbol.
var kernelNames = map[int]string{
	4: "gpu_batched_transpose_16x16_dword",
	2: "gpu_batched_transpose_16x16_half",
	1: "gpu_batched_transpose_16x16_byte",
}

// KernelName returns the symbol launched for elements of elemBytes bytes.
func KernelName(elemBytes int) (string, error) {
	name, ok := kernelNames[elemBytes]
	if !ok {
		return "", fmt.Errorf("%w: %d bytes (expected 1, 2 or 4)", ErrElemSize, elemBytes)
	}
	return name, nil
}

// Kernels owns the loaded transpose module. The module is loaded on first
// use and shared by every later dispatch.
type Kernels struct {
	drv  Driver
	path string

	mu     sync.Mutex
	loaded bool
	fns    map[int]Function
	cus    int
}

func NewKernels(drv Driver, codeObject string) *Kernels {
	return &Kernels{drv: drv, path: codeObject}
}

// EnsureLoaded loads the code object and resolves all three kernels. A
// failed load is retried on the next call.
func (k *Kernels) EnsureLoaded() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.loaded {
		return nil
	}
	mod, err := k.drv.LoadModule(k.path)
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrDevice, k.path, err)
	}
	fns := make(map[int]Function, len(kernelNames))
	for size, name := range kernelNames {
		fn, err := k.drv.Function(mod, name)
		if err != nil {
			return fmt.Errorf("%w: resolve %s: %w", ErrDevice, name, err)
		}
		fns[size] = fn
	}
	cus, err := k.drv.ComputeUnits()
	if err != nil {
		return fmt.Errorf("%w: query compute units: %w", ErrDevice, err)
	}
	k.fns, k.cus, k.loaded = fns, cus, true
	return nil
}

// Batched transposes batch matrices of height x width elements from src into
// dst on the device. It returns the arguments it launched with.
func (k *Kernels) Batched(ctx context.Context, dst, src DevicePtr, elemBytes int, batch, height, width uint32) (KernelArgs, error) {
	name, err := KernelName(elemBytes)
	if err != nil {
		return KernelArgs{}, err
	}
	if err := k.EnsureLoaded(); err != nil {
		return KernelArgs{}, err
	}
	plan, err := NewPlan(batch, height, width, k.cus)
	if err != nil {
		return KernelArgs{}, err
	}
	args := plan.Args(dst, src)
	buf, err := args.MarshalBinary()
	if err != nil {
		return KernelArgs{}, err
	}

	logger.FromContext(ctx).Debug("transpose launch", "kernel", name, "args", args.String())

	k.mu.Lock()
	fn := k.fns[elemBytes]
	k.mu.Unlock()
	if err := k.drv.Launch(fn, plan.GridSize, plan.BlockSize, buf); err != nil {
		return KernelArgs{}, fmt.Errorf("%w: launch %s: %w", ErrDevice, name, err)
	}
	return args, nil
}

// NCHW2NHWC treats each image as a c x (h*w) matrix.
func (k *Kernels) NCHW2NHWC(ctx context.Context, dst, src DevicePtr, elemBytes int, n, c, h, w uint32) (KernelArgs, error) {
	return k.Batched(ctx, dst, src, elemBytes, n, c, h*w)
}

// NHWC2NCHW treats each image as a (h*w) x c matrix.
func (k *Kernels) NHWC2NCHW(ctx context.Context, dst, src DevicePtr, elemBytes int, n, c, h, w uint32) (KernelArgs, error) {
	return k.Batched(ctx, dst, src, elemBytes, n, h*w, c)
}

// Run copies src to the device, transposes it and copies the result into
// dst. Both slices hold batch*height*width elements.
func Run[T Element](ctx context.Context, k *Kernels, dst, src []T, batch, height, width uint32) error {
	n := int(batch) * int(height) * int(width)
	if len(src) != n || len(dst) != n {
		return fmt.Errorf("%w: buffers hold %d and %d elements, want %d", ErrShape, len(src), len(dst), n)
	}
	elem := int(unsafe.Sizeof(src[0]))
	bytes := n * elem

	dsrc, err := k.drv.Alloc(bytes)
	if err != nil {
		return fmt.Errorf("%w: alloc: %w", ErrDevice, err)
	}
	defer k.drv.Free(dsrc)
	ddst, err := k.drv.Alloc(bytes)
	if err != nil {
		return fmt.Errorf("%w: alloc: %w", ErrDevice, err)
	}
	defer k.drv.Free(ddst)

	if err := k.drv.CopyToDevice(dsrc, asBytes(src)); err != nil {
		return fmt.Errorf("%w: copy to device: %w", ErrDevice, err)
	}
	if _, err := k.Batched(ctx, ddst, dsrc, elem, batch, height, width); err != nil {
		return err
	}
	if err := k.drv.Synchronize(); err != nil {
		return fmt.Errorf("%w: synchronize: %w", ErrDevice, err)
	}
	if err := k.drv.CopyFromDevice(asBytes(dst), ddst); err != nil {
		return fmt.Errorf("%w: copy from device: %w", ErrDevice, err)
	}
	return nil
}

func asBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}
