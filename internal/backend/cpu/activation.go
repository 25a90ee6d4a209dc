package cpu

import "github.com/born-ml/preactresnet/internal/tensor"

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat("relu", x.DType())
	result := cpu.alloc("relu", x.Shape(), x.DType())

	switch x.DType() {
	case tensor.Float32:
		reluKernel(cpu, view[float32](result), view[float32](x))
	case tensor.Float64:
		reluKernel(cpu, view[float64](result), view[float64](x))
	}
	return result
}

func reluKernel[T float](cpu *CPUBackend, dst, src []T) {
	cpu.forRange(len(src), func(start, end int) {
		for i := start; i < end; i++ {
			if v := src[i]; v > 0 {
				dst[i] = v
			}
		}
	})
}
