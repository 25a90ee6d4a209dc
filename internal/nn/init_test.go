package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/preactresnet/internal/backend/cpu"
	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// gram returns W·Wᵀ when rows <= cols and Wᵀ·W otherwise, which is the
// identity for a (semi-)orthogonal W.
func gram(data []float32, rows, cols int) *mat.Dense {
	w := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			w.Set(i, j, float64(data[i*cols+j]))
		}
	}
	var g mat.Dense
	if rows <= cols {
		g.Mul(w, w.T())
	} else {
		g.Mul(w.T(), w)
	}
	return &g
}

func assertIdentity(t *testing.T, g *mat.Dense) {
	t.Helper()
	n, _ := g.Dims()
	identity := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		identity.SetDiag(i, 1)
	}
	assert.True(t, mat.EqualApprox(g, identity, 1e-4), "expected identity, got\n%v", mat.Formatted(g))
}

func TestOrthogonal(t *testing.T) {
	backend := cpu.New()
	tests := []struct {
		name  string
		shape tensor.Shape
	}{
		{"conv wide", tensor.Shape{16, 3, 3, 3}},
		{"conv tall", tensor.Shape{64, 1, 1, 1}},
		{"classifier", tensor.Shape{10, 64}},
		{"square", tensor.Shape{32, 32}},
		{"tall matrix", tensor.Shape{64, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(1))
			w := nn.Orthogonal(tt.shape, 1, rng, backend)

			assert.Equal(t, tt.shape, w.Shape())
			rows := tt.shape[0]
			assertIdentity(t, gram(w.Data(), rows, tt.shape.NumElements()/rows))
		})
	}
}

func TestOrthogonalDeterministic(t *testing.T) {
	backend := cpu.New()
	shape := tensor.Shape{8, 4, 3, 3}

	a := nn.Orthogonal(shape, 1, rand.New(rand.NewSource(7)), backend)
	b := nn.Orthogonal(shape, 1, rand.New(rand.NewSource(7)), backend)
	c := nn.Orthogonal(shape, 1, rand.New(rand.NewSource(8)), backend)

	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, a.Data(), c.Data())
}

func TestInitOrthogonalInPlace(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewConv2D(16, 32, 3, 3, 1, 1, true, backend)
	handle := conv.Weight().Tensor()

	nn.InitOrthogonal(conv.Weight(), 1, rand.New(rand.NewSource(3)))

	assert.Same(t, handle, conv.Weight().Tensor())
	assertIdentity(t, gram(handle.Data(), 32, 16*9))
}

func TestOrthogonalGain(t *testing.T) {
	backend := cpu.New()
	w := nn.Orthogonal(tensor.Shape{4, 4}, 2, rand.New(rand.NewSource(1)), backend)

	g := gram(w.Data(), 4, 4)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 4.0, g.At(i, i), 1e-4)
	}
}

func TestOrthogonalPanicsOn1D(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() {
		nn.Orthogonal(tensor.Shape{8}, 1, rand.New(rand.NewSource(1)), backend)
	})
}

func TestFillZerosOnes(t *testing.T) {
	backend := cpu.New()
	p := nn.NewParameter("bias", nn.Ones(tensor.Shape{3}, backend))
	assert.Equal(t, []float32{1, 1, 1}, p.Tensor().Data())

	nn.Fill(p, 0)
	assert.Equal(t, []float32{0, 0, 0}, p.Tensor().Data())
	assert.Equal(t, []float32{0, 0}, nn.Zeros(tensor.Shape{2}, backend).Data())
}

func TestXavierBounds(t *testing.T) {
	backend := cpu.New()
	w := nn.Xavier(27, 144, tensor.Shape{16, 3, 3, 3}, rand.New(rand.NewSource(1)), backend)

	bound := float32(math.Sqrt(6.0 / 171))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}
}

func TestLayerInitOptions(t *testing.T) {
	backend := cpu.New()

	conv := nn.NewConv2D(3, 8, 3, 3, 1, 1, true, backend, nn.WithoutInit())
	for _, v := range conv.Weight().Tensor().Data() {
		require.Zero(t, v)
	}
	linear := nn.NewLinear(64, 10, backend, nn.WithoutInit())
	for _, v := range linear.Weight().Tensor().Data() {
		require.Zero(t, v)
	}

	a := nn.NewConv2D(3, 8, 3, 3, 1, 1, true, backend, nn.WithRand(rand.New(rand.NewSource(5))))
	b := nn.NewConv2D(3, 8, 3, 3, 1, 1, true, backend, nn.WithRand(rand.New(rand.NewSource(5))))
	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())

	want := nn.Xavier(64, 10, tensor.Shape{10, 64}, rand.New(rand.NewSource(6)), backend)
	got := nn.NewLinear(64, 10, backend, nn.WithRand(rand.New(rand.NewSource(6))))
	assert.Equal(t, want.Data(), got.Weight().Tensor().Data())
}
