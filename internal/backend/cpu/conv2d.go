package cpu

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// conv2dGeometry holds the dimensions of one Conv2D call.
type conv2dGeometry struct {
	N, CIn, H, W    int
	COut, KH, KW    int
	HOut, WOut      int
	stride, padding int
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// where out_h = (height + 2*padding - kernel_h) / stride + 1 (same for width).
// Out-of-range input positions read as zero.
//
// Algorithm, per batch element:
//  1. Im2col: unfold [C_in, H, W] into columns [H_out*W_out, C_in*K_h*K_w]
//  2. The kernel is already a [C_out, C_in*K_h*K_w] matrix in row-major order
//  3. Each output channel is one row of kernel @ columnsᵀ, computed in parallel
//     and written straight into NCHW layout
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", inputShape[1], kernelShape[1]))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d or padding %d", stride, padding))
	}
	requireSameDType("conv2d", input, kernel)
	requireFloat("conv2d", input.DType())

	g := conv2dGeometry{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.HOut, g.WOut))
	}

	output := cpu.alloc("conv2d", tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, input.DType())

	switch input.DType() {
	case tensor.Float32:
		conv2dKernel(cpu, view[float32](output), view[float32](input), view[float32](kernel), g)
	case tensor.Float64:
		conv2dKernel(cpu, view[float64](output), view[float64](input), view[float64](kernel), g)
	}
	return output
}

func conv2dKernel[T float](cpu *CPUBackend, out, in, kernel []T, g conv2dGeometry) {
	colWidth := g.CIn * g.KH * g.KW
	positions := g.HOut * g.WOut
	colBuf := make([]T, positions*colWidth)
	planeIn := g.CIn * g.H * g.W
	planeOut := g.COut * positions

	for n := 0; n < g.N; n++ {
		im2col(colBuf, in[n*planeIn:(n+1)*planeIn], g)
		dst := out[n*planeOut : (n+1)*planeOut]

		cpu.forEach(g.COut, func(c int) {
			weights := kernel[c*colWidth : (c+1)*colWidth]
			row := dst[c*positions : (c+1)*positions]
			for p := range row {
				col := colBuf[p*colWidth : (p+1)*colWidth]
				var sum T
				for k, w := range weights {
					sum += w * col[k]
				}
				row[p] = sum
			}
		})
	}
}

// im2col unfolds one [C, H, W] image into colBuf [H_out*W_out, C*K_h*K_w].
// Each row holds the receptive field of one output position; padded
// positions are written as zero.
func im2col[T float](colBuf, image []T, g conv2dGeometry) {
	idx := 0
	for outH := 0; outH < g.HOut; outH++ {
		for outW := 0; outW < g.WOut; outW++ {
			hStart := outH*g.stride - g.padding
			wStart := outW*g.stride - g.padding

			for c := 0; c < g.CIn; c++ {
				plane := image[c*g.H*g.W : (c+1)*g.H*g.W]
				for kh := 0; kh < g.KH; kh++ {
					h := hStart + kh
					for kw := 0; kw < g.KW; kw++ {
						w := wStart + kw
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							colBuf[idx] = plane[h*g.W+w]
						} else {
							colBuf[idx] = 0
						}
						idx++
					}
				}
			}
		}
	}
}
