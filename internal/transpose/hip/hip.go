//go:build hip

// Package hip implements transpose.Driver on the ROCm HIP runtime.
package hip

/*
#cgo CFLAGS: -D__HIP_PLATFORM_AMD__ -I/opt/rocm/include
#cgo LDFLAGS: -L/opt/rocm/lib -lamdhip64

#include <stdlib.h>
#include <hip/hip_runtime_api.h>

static int convmapSetDevice(int dev) {
	return (int)hipSetDevice(dev);
}

static int convmapComputeUnits(int dev, int* out) {
	return (int)hipDeviceGetAttribute(out, hipDeviceAttributeMultiprocessorCount, dev);
}

static int convmapModuleLoad(hipModule_t* out, const char* path) {
	return (int)hipModuleLoad(out, path);
}

static int convmapModuleGetFunction(hipFunction_t* out, hipModule_t mod, const char* name) {
	return (int)hipModuleGetFunction(out, mod, name);
}

static int convmapLaunch(hipFunction_t fn, unsigned int grid, unsigned int block, void* args, size_t size) {
	void* config[] = {
		HIP_LAUNCH_PARAM_BUFFER_POINTER, args,
		HIP_LAUNCH_PARAM_BUFFER_SIZE, &size,
		HIP_LAUNCH_PARAM_END,
	};
	return (int)hipModuleLaunchKernel(fn, grid, 1, 1, block, 1, 1, 0, 0, NULL, config);
}

static int convmapMalloc(void** ptr, size_t size) {
	return (int)hipMalloc(ptr, size);
}

static int convmapFree(void* ptr) {
	return (int)hipFree(ptr);
}

static int convmapMemcpyH2D(void* dst, const void* src, size_t size) {
	return (int)hipMemcpy(dst, src, size, hipMemcpyHostToDevice);
}

static int convmapMemcpyD2H(void* dst, const void* src, size_t size) {
	return (int)hipMemcpy(dst, src, size, hipMemcpyDeviceToHost);
}

static int convmapSynchronize(void) {
	return (int)hipDeviceSynchronize();
}

static const char* convmapErrorString(int err) {
	return hipGetErrorString((hipError_t)err);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/convmap/internal/transpose"
)

// Driver binds one HIP device.
type Driver struct {
	device int
}

// Open selects device as the current HIP device.
func Open(device int) (transpose.Driver, error) {
	if err := hipErr(C.convmapSetDevice(C.int(device))); err != nil {
		return nil, err
	}
	return &Driver{device: device}, nil
}

func (d *Driver) ComputeUnits() (int, error) {
	var n C.int
	if err := hipErr(C.convmapComputeUnits(C.int(d.device), &n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *Driver) LoadModule(path string) (transpose.Module, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var mod C.hipModule_t
	if err := hipErr(C.convmapModuleLoad(&mod, cpath)); err != nil {
		return 0, err
	}
	return transpose.Module(uintptr(unsafe.Pointer(mod))), nil
}

func (d *Driver) Function(m transpose.Module, name string) (transpose.Function, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var fn C.hipFunction_t
	if err := hipErr(C.convmapModuleGetFunction(&fn, C.hipModule_t(unsafe.Pointer(uintptr(m))), cname)); err != nil {
		return 0, err
	}
	return transpose.Function(uintptr(unsafe.Pointer(fn))), nil
}

func (d *Driver) Launch(fn transpose.Function, grid, block uint32, args []byte) error {
	if len(args) == 0 {
		return fmt.Errorf("hip: empty kernel argument buffer")
	}
	buf := C.CBytes(args)
	defer C.free(buf)
	f := C.hipFunction_t(unsafe.Pointer(uintptr(fn)))
	return hipErr(C.convmapLaunch(f, C.uint(grid), C.uint(block), buf, C.size_t(len(args))))
}

func (d *Driver) Alloc(bytes int) (transpose.DevicePtr, error) {
	if bytes <= 0 {
		return 0, fmt.Errorf("hip: device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := hipErr(C.convmapMalloc(&ptr, C.size_t(bytes))); err != nil {
		return 0, err
	}
	return transpose.DevicePtr(uintptr(ptr)), nil
}

func (d *Driver) Free(p transpose.DevicePtr) error {
	if p == 0 {
		return nil
	}
	return hipErr(C.convmapFree(unsafe.Pointer(uintptr(p))))
}

func (d *Driver) CopyToDevice(dst transpose.DevicePtr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	return hipErr(C.convmapMemcpyH2D(unsafe.Pointer(uintptr(dst)), unsafe.Pointer(&src[0]), C.size_t(len(src))))
}

func (d *Driver) CopyFromDevice(dst []byte, src transpose.DevicePtr) error {
	if len(dst) == 0 {
		return nil
	}
	return hipErr(C.convmapMemcpyD2H(unsafe.Pointer(&dst[0]), unsafe.Pointer(uintptr(src)), C.size_t(len(dst))))
}

func (d *Driver) Synchronize() error {
	return hipErr(C.convmapSynchronize())
}

func hipErr(code C.int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("hip runtime error %d: %s", int(code), C.GoString(C.convmapErrorString(code)))
}
