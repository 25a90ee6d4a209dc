package cpu

import (
	"testing"

	"github.com/born-ml/preactresnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConv2D_KnownValues(t *testing.T) {
	backend := New()

	// Input: [1, 1, 3, 3] with values 1-9, kernel [1, 1, 2, 2].
	input := raw32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	kernel := raw32(t, []float32{1, 2, 3, 4}, 1, 1, 2, 2)

	out := backend.Conv2D(input, kernel, 1, 0)

	// [0,0]: 1*1 + 2*2 + 3*4 + 4*5 = 37
	// [0,1]: 1*2 + 2*3 + 3*5 + 4*6 = 47
	// [1,0]: 1*4 + 2*5 + 3*7 + 4*8 = 67
	// [1,1]: 1*5 + 2*6 + 3*8 + 4*9 = 77
	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{37, 47, 67, 77}, out.AsFloat32())
}

func TestConv2D_PaddingKeepsSize(t *testing.T) {
	backend := New()

	input := raw32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	ones := make([]float32, 9)
	for i := range ones {
		ones[i] = 1
	}
	kernel := raw32(t, ones, 1, 1, 3, 3)

	out := backend.Conv2D(input, kernel, 1, 1)

	// Each output is the sum of the 3x3 neighbourhood with zero padding.
	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 3, 3}))
	assert.Equal(t, []float32{12, 21, 16, 27, 45, 33, 24, 39, 28}, out.AsFloat32())
}

func TestConv2D_StrideTwoHalves(t *testing.T) {
	backend := New()

	input := raw32(t, make([]float32, 2*16*32*32), 2, 16, 32, 32)
	kernel := raw32(t, make([]float32, 32*16*3*3), 32, 16, 3, 3)

	out := backend.Conv2D(input, kernel, 2, 1)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 32, 16, 16}), "got %v", out.Shape())

	// 1x1 projection with stride 2, no padding.
	proj := raw32(t, make([]float32, 32*16), 32, 16, 1, 1)
	out = backend.Conv2D(input, proj, 2, 0)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 32, 16, 16}), "got %v", out.Shape())
}

func TestConv2D_MultiChannelBatch(t *testing.T) {
	backend := New()

	// Two images, two input channels, 1x1 kernel mixing channels.
	input := raw32(t, []float32{
		1, 2, 3, 4, // n0 c0
		10, 20, 30, 40, // n0 c1
		5, 6, 7, 8, // n1 c0
		50, 60, 70, 80, // n1 c1
	}, 2, 2, 2, 2)
	kernel := raw32(t, []float32{
		1, 0, // out c0 = in c0
		1, 1, // out c1 = in c0 + in c1
	}, 2, 2, 1, 1)

	out := backend.Conv2D(input, kernel, 1, 0)

	assert.Equal(t, []float32{
		1, 2, 3, 4,
		11, 22, 33, 44,
		5, 6, 7, 8,
		55, 66, 77, 88,
	}, out.AsFloat32())
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()
	input := raw32(t, make([]float32, 3*4*4), 1, 3, 4, 4)
	kernel := raw32(t, make([]float32, 16*9), 1, 16, 3, 3)
	assert.Panics(t, func() { backend.Conv2D(input, kernel, 1, 1) })
}

func TestAvgPool2D(t *testing.T) {
	backend := New()
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i + 1)
	}
	input := raw32(t, data, 1, 1, 4, 4)

	out := backend.AvgPool2D(input, 2, 2)
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, out.AsFloat32())

	global := backend.AvgPool2D(input, 4, 4)
	require.True(t, global.Shape().Equal(tensor.Shape{1, 1, 1, 1}))
	assert.InDelta(t, 8.5, global.AsFloat32()[0], 1e-6)
}

func TestAvgPool2D_KernelTooLargePanics(t *testing.T) {
	backend := New()
	input := raw32(t, make([]float32, 16), 1, 1, 4, 4)
	assert.Panics(t, func() { backend.AvgPool2D(input, 8, 8) })
}

func BenchmarkConv2D_Stage1(b *testing.B) {
	backend := New()
	input, _ := tensor.NewRaw(tensor.Shape{8, 16, 32, 32}, tensor.Float32, tensor.CPU)
	kernel, _ := tensor.NewRaw(tensor.Shape{16, 16, 3, 3}, tensor.Float32, tensor.CPU)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.Conv2D(input, kernel, 1, 1)
	}
}
