package cpu

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// AvgPool2D performs 2D average pooling without padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// where out_height = (height - kernelSize) / stride + 1. With kernelSize equal
// to the full spatial extent this is global average pooling: an 8×8 map
// pooled with kernel 8 becomes 1×1.
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[3.5, 5.5],
//	        [5,6,7,8],             [11.5, 13.5]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) AvgPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("avgpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]

	if kernelSize <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid stride %d", stride))
	}
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("avgpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}
	requireFloat("avgpool2d", input.DType())

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1
	output := cpu.alloc("avgpool2d", tensor.Shape{N, C, HOut, WOut}, input.DType())

	switch input.DType() {
	case tensor.Float32:
		avgpool2dKernel(cpu, view[float32](output), view[float32](input), N, C, H, W, HOut, WOut, kernelSize, stride)
	case tensor.Float64:
		avgpool2dKernel(cpu, view[float64](output), view[float64](input), N, C, H, W, HOut, WOut, kernelSize, stride)
	}
	return output
}

func avgpool2dKernel[T float](cpu *CPUBackend, out, in []T, N, C, H, W, HOut, WOut, kernelSize, stride int) {
	area := float64(kernelSize * kernelSize)

	cpu.forPlanes(N, C, func(n, c int) {
		nc := n*C + c
		plane := in[nc*H*W : (nc+1)*H*W]
		dst := out[nc*HOut*WOut : (nc+1)*HOut*WOut]

		for outH := 0; outH < HOut; outH++ {
			hStart := outH * stride
			for outW := 0; outW < WOut; outW++ {
				wStart := outW * stride

				var sum float64
				for kh := 0; kh < kernelSize; kh++ {
					row := plane[(hStart+kh)*W : (hStart+kh+1)*W]
					for kw := 0; kw < kernelSize; kw++ {
						sum += float64(row[wStart+kw])
					}
				}
				dst[outH*WOut+outW] = T(sum / area)
			}
		}
	})
}
