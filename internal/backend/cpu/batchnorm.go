package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// BatchNorm2D normalises each channel of an [N, C, H, W] tensor with the
// given per-channel statistics and applies the affine transform:
//
//	y = (x - mean[c]) / sqrt(variance[c] + eps) * weight[c] + bias[c]
//
// mean, variance, weight and bias all have shape [C].
func (cpu *CPUBackend) BatchNorm2D(x, mean, variance, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	C := shape[1]
	for name, p := range map[string]*tensor.RawTensor{"mean": mean, "variance": variance, "weight": weight, "bias": bias} {
		if !p.Shape().Equal(tensor.Shape{C}) {
			panic(fmt.Sprintf("batchnorm2d: %s shape %v, expected [%d]", name, p.Shape(), C))
		}
	}
	requireSameDType("batchnorm2d", x, mean, variance, weight, bias)
	requireFloat("batchnorm2d", x.DType())

	result := cpu.alloc("batchnorm2d", shape, x.DType())
	switch x.DType() {
	case tensor.Float32:
		batchNormKernel(cpu, view[float32](result), view[float32](x),
			view[float32](mean), view[float32](variance), view[float32](weight), view[float32](bias),
			shape[0], C, shape[2]*shape[3], eps)
	case tensor.Float64:
		batchNormKernel(cpu, view[float64](result), view[float64](x),
			view[float64](mean), view[float64](variance), view[float64](weight), view[float64](bias),
			shape[0], C, shape[2]*shape[3], eps)
	}
	return result
}

func batchNormKernel[T float](cpu *CPUBackend, dst, src, mean, variance, weight, bias []T, N, C, HW int, eps float64) {
	cpu.forPlanes(N, C, func(n, c int) {
		nc := n*C + c
		scale := float64(weight[c]) / math.Sqrt(float64(variance[c])+eps)
		shift := float64(bias[c]) - float64(mean[c])*scale

		in := src[nc*HW : (nc+1)*HW]
		out := dst[nc*HW : (nc+1)*HW]
		for i, v := range in {
			out[i] = T(float64(v)*scale + shift)
		}
	})
}

// ChannelMoments returns the per-channel mean and biased variance of an
// [N, C, H, W] tensor, reduced over N, H and W. Both results have shape [C].
func (cpu *CPUBackend) ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("channel moments: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	requireFloat("channel moments", x.DType())

	C := shape[1]
	mean = cpu.alloc("channel moments", tensor.Shape{C}, x.DType())
	variance = cpu.alloc("channel moments", tensor.Shape{C}, x.DType())

	switch x.DType() {
	case tensor.Float32:
		momentsKernel(cpu, view[float32](mean), view[float32](variance), view[float32](x), shape[0], C, shape[2]*shape[3])
	case tensor.Float64:
		momentsKernel(cpu, view[float64](mean), view[float64](variance), view[float64](x), shape[0], C, shape[2]*shape[3])
	}
	return mean, variance
}

// momentsKernel uses a two-pass reduction in float64 for stability.
func momentsKernel[T float](cpu *CPUBackend, mean, variance, src []T, N, C, HW int) {
	count := float64(N * HW)

	cpu.forEach(C, func(c int) {
		var sum float64
		for n := 0; n < N; n++ {
			for _, v := range src[(n*C+c)*HW : (n*C+c+1)*HW] {
				sum += float64(v)
			}
		}
		mu := sum / count

		var sq float64
		for n := 0; n < N; n++ {
			for _, v := range src[(n*C+c)*HW : (n*C+c+1)*HW] {
				d := float64(v) - mu
				sq += d * d
			}
		}

		mean[c] = T(mu)
		variance[c] = T(sq / count)
	})
}
