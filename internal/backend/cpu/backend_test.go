package cpu

import (
	"testing"

	"github.com/born-ml/preactresnet/internal/parallel"
	"github.com/born-ml/preactresnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw32(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func TestCPUBackend_Metadata(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())

	seq := New(WithParallel(parallel.Config{Enabled: false}))
	assert.False(t, seq.Parallel().Enabled)
}

func TestAdd_SameShape(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4}, 2, 2)
	b := raw32(t, []float32{10, 20, 30, 40}, 2, 2)

	out := backend.Add(a, b)

	assert.Equal(t, []float32{11, 22, 33, 44}, out.AsFloat32())
	assert.Equal(t, []float32{1, 2, 3, 4}, a.AsFloat32(), "inputs must not be modified")
}

func TestAdd_ChannelBroadcast(t *testing.T) {
	backend := New()
	x := raw32(t, make([]float32, 2*2*2*2), 2, 2, 2, 2)
	bias := raw32(t, []float32{1, -1}, 1, 2, 1, 1)

	out := backend.Add(x, bias).AsFloat32()

	// Layout [n, c, h, w]: channel 0 gets +1, channel 1 gets -1.
	for n := 0; n < 2; n++ {
		for i := 0; i < 4; i++ {
			assert.Equal(t, float32(1), out[n*8+i])
			assert.Equal(t, float32(-1), out[n*8+4+i])
		}
	}
}

func TestAdd_RowBroadcast(t *testing.T) {
	backend := New()
	x := raw32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := raw32(t, []float32{10, 20, 30}, 1, 3)

	out := backend.Add(x, b)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestAdd_IncompatiblePanics(t *testing.T) {
	backend := New()
	a := raw32(t, make([]float32, 6), 2, 3)
	b := raw32(t, make([]float32, 4), 2, 2)
	assert.Panics(t, func() { backend.Add(a, b) })
}

func TestMul(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4}, 4)
	b := raw32(t, []float32{2}, 1)

	assert.Equal(t, []float32{2, 4, 6, 8}, backend.Mul(a, b).AsFloat32())
}

func TestMatMul(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := raw32(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := backend.MatMul(a, b)

	require.True(t, out.Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMul_ShapeMismatchPanics(t *testing.T) {
	backend := New()
	a := raw32(t, make([]float32, 6), 2, 3)
	assert.Panics(t, func() { backend.MatMul(a, a) })
}

func TestTranspose(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	out := backend.Transpose(a)

	require.True(t, out.Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.AsFloat32())
}

func TestTranspose_3D(t *testing.T) {
	backend := New()
	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i)
	}
	a := raw32(t, data, 2, 3, 4)

	out := backend.Transpose(a, 2, 0, 1)

	require.True(t, out.Shape().Equal(tensor.Shape{4, 2, 3}))
	x := tensor.New[float32](a, backend)
	y := tensor.New[float32](out, backend)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				assert.Equal(t, x.At(i, j, k), y.At(k, i, j))
			}
		}
	}
}

func TestTranspose_InvalidAxesPanics(t *testing.T) {
	backend := New()
	a := raw32(t, make([]float32, 6), 2, 3)
	assert.Panics(t, func() { backend.Transpose(a, 0, 0) })
	assert.Panics(t, func() { backend.Transpose(a, 0) })
}

func TestReshape(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	out := backend.Reshape(a, tensor.Shape{3, 2})
	require.True(t, out.Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, a.AsFloat32(), out.AsFloat32())

	out.AsFloat32()[0] = 100
	assert.Equal(t, float32(1), a.AsFloat32()[0], "reshape must copy")

	assert.Panics(t, func() { backend.Reshape(a, tensor.Shape{4, 2}) })
}

func TestReLU(t *testing.T) {
	backend := New()
	x := raw32(t, []float32{-2, -0.5, 0, 0.5, 3}, 5)

	assert.Equal(t, []float32{0, 0, 0, 0.5, 3}, backend.ReLU(x).AsFloat32())
	assert.Equal(t, float32(-2), x.AsFloat32()[0])
}

func TestFloat64Kernels(t *testing.T) {
	backend := New()
	r, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat64(), []float64{-1, 2, 3})

	assert.Equal(t, []float64{-2, 4, 6}, backend.Add(r, r).AsFloat64())
	assert.Equal(t, []float64{0, 2, 3}, backend.ReLU(r).AsFloat64())
}
