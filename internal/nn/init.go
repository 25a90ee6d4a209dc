package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/preactresnet/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// InitOption configures how a layer fills its weights at construction.
type InitOption func(*initConfig)

type initConfig struct {
	rng  *rand.Rand
	skip bool
}

// WithRand draws construction-time weights from rng instead of the global
// math/rand source.
func WithRand(rng *rand.Rand) InitOption {
	return func(c *initConfig) {
		c.rng = rng
	}
}

// WithoutInit leaves weights at zero. Use it when the caller overwrites
// every weight right after construction.
func WithoutInit() InitOption {
	return func(c *initConfig) {
		c.skip = true
	}
}

// initWeight allocates a layer weight according to opts: zeros, or Xavier
// drawn from the configured generator.
func initWeight[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, opts []InitOption) *tensor.Tensor[float32, B] {
	var cfg initConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.skip {
		return Zeros(shape, backend)
	}
	return Xavier(fanIn, fanOut, shape, cfg.rng, backend)
}

// Xavier (Glorot) initialization for weights.
//
// Values are drawn from U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
// Layers use it as their construction-time default. A nil rng uses the
// global math/rand source.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	uniform := rand.Float64
	if rng != nil {
		uniform = rng.Float64
	}

	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32((uniform()*2.0 - 1.0) * bound)
	}
	return t
}

// Zeros creates a tensor filled with zeros.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}

// Fill overwrites every element of p with value.
func Fill[B tensor.Backend](p *Parameter[B], value float32) {
	data := p.Tensor().Data()
	for i := range data {
		data[i] = value
	}
}

// Orthogonal returns a tensor whose matrix view is (semi-)orthogonal.
//
// The tensor is viewed as a [shape[0], prod(shape[1:])] matrix. A Gaussian
// matrix in the tall orientation is QR-factorised and Q's columns are
// multiplied by the signs of R's diagonal so the result is uniformly
// distributed. The outcome, scaled by gain, has orthonormal rows when
// rows <= cols and orthonormal columns otherwise.
//
// Draws come from rng only, so a fixed seed reproduces the tensor.
func Orthogonal[B tensor.Backend](shape tensor.Shape, gain float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	if len(shape) < 2 {
		panic(fmt.Sprintf("orthogonal: need at least 2 dimensions, got shape %v", shape))
	}

	t := tensor.Zeros[float32](shape, backend)
	orthogonalFill(t.Data(), shape[0], shape.NumElements()/shape[0], gain, rng)
	return t
}

// InitOrthogonal re-initialises p in place with Orthogonal.
func InitOrthogonal[B tensor.Backend](p *Parameter[B], gain float64, rng *rand.Rand) {
	shape := p.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("orthogonal: parameter %q needs at least 2 dimensions, got shape %v", p.Name(), shape))
	}
	orthogonalFill(p.Tensor().Data(), shape[0], shape.NumElements()/shape[0], gain, rng)
}

// orthogonalFill writes a rows×cols (semi-)orthogonal matrix into dst in
// row-major order.
func orthogonalFill(dst []float32, rows, cols int, gain float64, rng *rand.Rand) {
	transposed := rows < cols
	m, n := rows, cols
	if transposed {
		m, n = cols, rows
	}

	a := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	for j := 0; j < n; j++ {
		sign := gain
		if r.At(j, j) < 0 {
			sign = -gain
		}
		for i := 0; i < m; i++ {
			v := float32(sign * q.At(i, j))
			if transposed {
				dst[j*cols+i] = v
			} else {
				dst[i*cols+j] = v
			}
		}
	}
}
