package nn

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// AvgPool2D averages non-overlapping (or strided) windows of each channel.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// where out_height = (height - kernel_size) / stride + 1.
//
// Example:
//
//	// Global pooling of an 8x8 feature map
//	pool := nn.NewAvgPool2D[*cpu.CPUBackend](8, 8)
//	output := pool.Forward(features) // [N, 64, 8, 8] -> [N, 64, 1, 1]
type AvgPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
}

// NewAvgPool2D creates a new AvgPool2D layer.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	if kernelSize <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid stride %d", stride))
	}
	return &AvgPool2D[B]{kernelSize: kernelSize, stride: stride}
}

// Forward applies average pooling.
func (p *AvgPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.AvgPool2D(input.Raw(), p.kernelSize, p.stride), backend)
}

// Parameters returns nil.
func (p *AvgPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// NamedParameters returns nil.
func (p *AvgPool2D[B]) NamedParameters(string) []NamedParameter[B] {
	return nil
}

// StateDict returns an empty map.
func (p *AvgPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (p *AvgPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// KernelSize returns the pooling window size.
func (p *AvgPool2D[B]) KernelSize() int {
	return p.kernelSize
}

// Stride returns the pooling stride.
func (p *AvgPool2D[B]) Stride() int {
	return p.stride
}

// String returns a string representation of the layer.
func (p *AvgPool2D[B]) String() string {
	return fmt.Sprintf("AvgPool2D(kernel_size=%d, stride=%d)", p.kernelSize, p.stride)
}
