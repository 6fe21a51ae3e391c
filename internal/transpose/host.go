package transpose

import "fmt"

// Element is any 1, 2 or 4 byte element type, including float16.Float16.
type Element interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~float32
}

// Host transposes batch row-major height x width matrices of src into dst
// on the CPU.
func Host[T Element](dst, src []T, batch, height, width int) error {
	n := batch * height * width
	if batch < 0 || height < 0 || width < 0 || len(src) != n || len(dst) != n {
		return fmt.Errorf("%w: buffers hold %d and %d elements, want %d", ErrShape, len(src), len(dst), n)
	}
	plane := height * width
	for b := range batch {
		s, d := src[b*plane:(b+1)*plane], dst[b*plane:(b+1)*plane]
		for i := range height {
			for j := range width {
				d[j*height+i] = s[i*width+j]
			}
		}
	}
	return nil
}

// HostNCHW2NHWC converts one n x c x h x w tensor on the CPU.
func HostNCHW2NHWC[T Element](dst, src []T, n, c, h, w int) error {
	return Host(dst, src, n, c, h*w)
}

// HostNHWC2NCHW converts one n x h x w x c tensor on the CPU.
func HostNHWC2NCHW[T Element](dst, src []T, n, c, h, w int) error {
	return Host(dst, src, n, h*w, c)
}
