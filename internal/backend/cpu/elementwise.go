package cpu

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float64) float64 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float64) float64 { return x * y })
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float64) float64) *tensor.RawTensor {
	requireSameDType(op, a, b)
	requireFloat(op, a.DType())

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	result := cpu.alloc(op, outShape, a.DType())

	switch a.DType() {
	case tensor.Float32:
		binaryKernel[float32](cpu, result, a, b, needsBroadcast, f)
	case tensor.Float64:
		binaryKernel[float64](cpu, result, a, b, needsBroadcast, f)
	}
	return result
}

func binaryKernel[T float](cpu *CPUBackend, result, a, b *tensor.RawTensor, needsBroadcast bool, f func(x, y float64) float64) {
	dst, x, y := view[T](result), view[T](a), view[T](b)

	if !needsBroadcast {
		cpu.forRange(len(dst), func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = T(f(float64(x[i]), float64(y[i])))
			}
		})
		return
	}

	outShape := result.Shape()
	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	outStrides := result.Strides()

	cpu.forRange(len(dst), func(start, end int) {
		for i := start; i < end; i++ {
			ai, bi, rem := 0, 0, i
			for d, s := range outStrides {
				idx := rem / s
				rem %= s
				ai += idx * aStrides[d]
				bi += idx * bStrides[d]
			}
			dst[i] = T(f(float64(x[ai]), float64(y[bi])))
		}
	})
}

// broadcastStrides maps src's row-major strides onto out's rank, using a zero
// stride for every dimension that is broadcast.
func broadcastStrides(src, out tensor.Shape) []int {
	srcStrides := src.ComputeStrides()
	strides := make([]int, len(out))
	offset := len(out) - len(src)
	for d := range out {
		sd := d - offset
		if sd < 0 || src[sd] == 1 {
			continue
		}
		strides[d] = srcStrides[sd]
	}
	return strides
}
