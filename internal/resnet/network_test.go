package resnet_test

import (
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/born-ml/preactresnet/internal/backend/cpu"
	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/resnet"
	"github.com/born-ml/preactresnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

func newNetwork(t *testing.T, opts ...resnet.Option) *resnet.Network[*cpu.CPUBackend] {
	t.Helper()
	net, err := resnet.PreActResNet20("CIFAR10", cpu.New(), opts...)
	require.NoError(t, err)
	return net
}

// assertOrthogonal checks W·Wᵀ = I when rows <= cols and Wᵀ·W = I otherwise.
func assertOrthogonal(t *testing.T, name string, p *nn.Parameter[*cpu.CPUBackend]) {
	t.Helper()
	shape := p.Shape()
	rows := shape[0]
	cols := shape.NumElements() / rows

	data := make([]float64, 0, rows*cols)
	for _, v := range p.Tensor().Data() {
		data = append(data, float64(v))
	}
	w := mat.NewDense(rows, cols, data)

	var g mat.Dense
	if rows <= cols {
		g.Mul(w, w.T())
	} else {
		g.Mul(w.T(), w)
	}
	n, _ := g.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			require.InDelta(t, want, g.At(i, j), 1e-4, "%s: gram[%d][%d]", name, i, j)
		}
	}
}

func TestPresetsBlockCounts(t *testing.T) {
	backend := cpu.New()

	net20, err := resnet.PreActResNet20("CIFAR10", backend)
	require.NoError(t, err)
	assert.Len(t, net20.Blocks(), 9)
	for _, s := range net20.Stages() {
		assert.Equal(t, 3, s.Len())
	}
	assert.Equal(t, 10, net20.Config().NumClasses)

	net68, err := resnet.PreActResNet68("CIFAR10", backend)
	require.NoError(t, err)
	assert.Len(t, net68.Blocks(), 33)
	for _, s := range net68.Stages() {
		assert.Equal(t, 11, s.Len())
	}
	assert.Equal(t, 1052586, net68.NumParameters())
}

func TestForwardZerosShape(t *testing.T) {
	net := newNetwork(t)
	backend := net.Backend()

	for _, batch := range []int{1, 3} {
		y := net.Forward(tensor.Zeros[float32](tensor.Shape{batch, 3, 32, 32}, backend))
		assert.Equal(t, tensor.Shape{batch, 10}, y.Shape())
		// Zero biases and unit BatchNorm keep a zero image at zero.
		for _, v := range y.Data() {
			assert.Zero(t, v)
		}
	}
}

func TestForwardRandomBatch(t *testing.T) {
	net := newNetwork(t, resnet.WithSeed(5))

	y := net.Forward(randn(net.Backend(), 9, 2, 3, 32, 32))

	assert.Equal(t, tensor.Shape{2, 10}, y.Shape())
	nonZero := 0
	for _, v := range y.Data() {
		if v != 0 {
			nonZero++
		}
	}
	assert.Positive(t, nonZero)
}

func TestStagesChangeResolution(t *testing.T) {
	net := newNetwork(t)
	backend := net.Backend()

	x := net.Stem().Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 32, 32}, backend))
	want := []tensor.Shape{{1, 16, 32, 32}, {1, 32, 16, 16}, {1, 64, 8, 8}}
	for i, s := range net.Stages() {
		x = s.Forward(x)
		assert.Equal(t, want[i], x.Shape(), "stage %d", i+1)
	}
}

func TestInitialization(t *testing.T) {
	net := newNetwork(t, resnet.WithSeed(11))

	for _, conv := range net.Convs() {
		assertOrthogonal(t, conv.String(), conv.Weight())
		for _, v := range conv.Bias().Tensor().Data() {
			require.Zero(t, v)
		}
	}

	assertOrthogonal(t, "linear.weight", net.Classifier().Weight())
	for _, v := range net.Classifier().Bias().Tensor().Data() {
		require.Zero(t, v)
	}

	bns := net.BatchNorms()
	assert.Len(t, bns, 19)
	for _, bn := range bns {
		for _, v := range bn.Weight().Tensor().Data() {
			require.Equal(t, float32(1), v)
		}
		for _, v := range bn.Bias().Tensor().Data() {
			require.Zero(t, v)
		}
	}
}

func TestInitializationCoversEveryParameter(t *testing.T) {
	net := newNetwork(t)

	orthogonal := 0
	for _, np := range net.NamedParameters("") {
		switch {
		case strings.HasSuffix(np.Name, ".bias"):
			for _, v := range np.Param.Tensor().Data() {
				require.Zero(t, v, np.Name)
			}
		case strings.Contains(np.Name, "bn") || strings.HasPrefix(np.Name, "last_act."):
			for _, v := range np.Param.Tensor().Data() {
				require.Equal(t, float32(1), v, np.Name)
			}
		default:
			assertOrthogonal(t, np.Name, np.Param)
			orthogonal++
		}
	}
	// stem + 2 per block + 2 projections + classifier
	assert.Equal(t, 1+18+2+1, orthogonal)
}

func TestSeedDeterminism(t *testing.T) {
	a := newNetwork(t, resnet.WithSeed(3))
	b := newNetwork(t, resnet.WithSeed(3))
	c := newNetwork(t, resnet.WithSeed(4))
	d := newNetwork(t, resnet.WithRand(rand.New(rand.NewSource(3))))

	pa, pb, pc, pd := a.Parameters(), b.Parameters(), c.Parameters(), d.Parameters()
	require.Len(t, pb, len(pa))
	for i := range pa {
		assert.Equal(t, pa[i].Tensor().Data(), pb[i].Tensor().Data())
		assert.Equal(t, pa[i].Tensor().Data(), pd[i].Tensor().Data())
	}
	assert.NotEqual(t, pa[0].Tensor().Data(), pc[0].Tensor().Data())
}

func TestConfigSeedUsedWithoutOption(t *testing.T) {
	cfg, err := resnet.Preset("preactresnet20")
	require.NoError(t, err)
	cfg.Seed = 3

	fromConfig, err := resnet.New(cfg, cpu.New())
	require.NoError(t, err)
	fromOption := newNetwork(t, resnet.WithSeed(3))

	assert.Equal(t, fromOption.Stem().Weight().Tensor().Data(), fromConfig.Stem().Weight().Tensor().Data())
}

func TestNamedParameters(t *testing.T) {
	net := newNetwork(t)
	got := names(net.NamedParameters(""))

	assert.Equal(t, "conv1.weight", got[0])
	assert.Equal(t, "linear.bias", got[len(got)-1])
	for _, name := range []string{
		"layer1.0.bn1.weight",
		"layer1.2.conv2.bias",
		"layer2.0.shortcut.0.weight",
		"layer3.0.shortcut.0.bias",
		"last_act.0.weight",
		"linear.weight",
	} {
		assert.Contains(t, got, name)
	}
	assert.NotContains(t, got, "layer1.0.shortcut.0.weight")
	assert.NotContains(t, got, "layer2.1.shortcut.0.weight")
	assert.Len(t, got, len(net.Parameters()))
	assert.Len(t, got, 82)
}

func TestStateDictIncludesBuffers(t *testing.T) {
	net := newNetwork(t)
	sd := net.StateDict()

	assert.Len(t, sd, 82+2*19)
	assert.Contains(t, sd, "last_act.0.running_mean")
	assert.Contains(t, sd, "layer3.2.bn2.running_var")
}

func TestNumParameters(t *testing.T) {
	net := newNetwork(t)
	assert.Equal(t, 273066, net.NumParameters())
}

func TestUnsupportedDataset(t *testing.T) {
	backend := cpu.New()

	_, err := resnet.PreActResNet20("ImageNet", backend)
	assert.ErrorIs(t, err, resnet.ErrUnsupportedDataset)

	_, err = resnet.PreActResNet68("", backend)
	assert.ErrorIs(t, err, resnet.ErrUnsupportedDataset)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := resnet.New(resnet.Config{Blocks: []int{3, 3}}, cpu.New())
	assert.ErrorIs(t, err, resnet.ErrInvalidConfig)
}

func TestNewCustomClasses(t *testing.T) {
	net, err := resnet.New(resnet.Config{Dataset: "", Blocks: []int{1, 1, 1}, NumClasses: 4}, cpu.New())
	require.NoError(t, err)

	y := net.Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 32, 32}, net.Backend()))
	assert.Equal(t, tensor.Shape{1, 4}, y.Shape())
	assert.Equal(t, "preactresnet8", net.Config().DisplayName())
}

func TestForwardPanicsOnWrongSpatialSize(t *testing.T) {
	net := newNetwork(t)

	assert.PanicsWithValue(t, "linear: expected input with 64 features, got 256", func() {
		net.Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 64, 64}, net.Backend()))
	})
}

func TestForwardPanicsOnWrongChannels(t *testing.T) {
	net := newNetwork(t)

	assert.Panics(t, func() {
		net.Forward(tensor.Zeros[float32](tensor.Shape{1, 1, 32, 32}, net.Backend()))
	})
}

func TestConcurrentForward(t *testing.T) {
	net := newNetwork(t, resnet.WithSeed(1))
	x := randn(net.Backend(), 2, 1, 3, 32, 32)
	want := net.Forward(x).Data()

	var g errgroup.Group
	results := make([][]float32, 4)
	for i := range results {
		g.Go(func() error {
			results[i] = net.Forward(x).Data()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestSetTraining(t *testing.T) {
	net := newNetwork(t)

	net.SetTraining(true)
	for _, bn := range net.BatchNorms() {
		assert.True(t, bn.Training())
	}

	y := net.Forward(randn(net.Backend(), 3, 2, 3, 32, 32))
	assert.Equal(t, tensor.Shape{2, 10}, y.Shape())
	assert.NotEqual(t, []float32{0}, net.BatchNorms()[0].RunningMean().Data()[:1])

	nn.SetTraining[*cpu.CPUBackend](net, false)
	for _, bn := range net.BatchNorms() {
		assert.False(t, bn.Training())
	}
}

func TestLoadStateDict(t *testing.T) {
	src := newNetwork(t, resnet.WithSeed(1))
	dst := newNetwork(t, resnet.WithSeed(2))

	sd := src.StateDict()
	sd["layer1.0.bn1.num_batches_tracked"] = sd["linear.bias"]
	require.NoError(t, dst.LoadStateDict(sd))

	x := randn(src.Backend(), 4, 1, 3, 32, 32)
	assert.Equal(t, src.Forward(x).Data(), dst.Forward(x).Data())
}

func TestLoadStateDictRejectsUnknownKeys(t *testing.T) {
	net := newNetwork(t)
	sd := net.StateDict()
	sd["layer4.0.conv1.weight"] = sd["conv1.weight"]

	err := net.LoadStateDict(sd)
	assert.ErrorContains(t, err, `unexpected key "layer4.0.conv1.weight"`)
}

func TestLoadStateDictMissingParameter(t *testing.T) {
	net := newNetwork(t)
	sd := net.StateDict()
	delete(sd, "layer2.0.shortcut.0.weight")

	err := net.LoadStateDict(sd)
	assert.ErrorContains(t, err, "missing layer2.0.shortcut.0.weight in state dict")
}

func TestFailedLoadStateDictLeavesNetworkUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(sd map[string]*tensor.RawTensor, backend *cpu.CPUBackend)
		want   string
	}{
		{
			name: "missing classifier weight",
			mutate: func(sd map[string]*tensor.RawTensor, _ *cpu.CPUBackend) {
				delete(sd, "linear.weight")
			},
			want: "missing linear.weight in state dict",
		},
		{
			name: "wrong classifier shape",
			mutate: func(sd map[string]*tensor.RawTensor, backend *cpu.CPUBackend) {
				sd["linear.bias"] = tensor.Zeros[float32](tensor.Shape{100}, backend).Raw()
			},
			want: "linear.bias shape mismatch",
		},
		{
			name: "wrong buffer shape",
			mutate: func(sd map[string]*tensor.RawTensor, backend *cpu.CPUBackend) {
				sd["last_act.0.running_var"] = tensor.Ones[float32](tensor.Shape{32}, backend).Raw()
			},
			want: "last_act.0.running_var shape mismatch",
		},
		{
			name: "wrong dtype",
			mutate: func(sd map[string]*tensor.RawTensor, backend *cpu.CPUBackend) {
				sd["layer3.2.conv2.bias"] = tensor.Zeros[float64](tensor.Shape{64}, backend).Raw()
			},
			want: "layer3.2.conv2.bias dtype mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newNetwork(t, resnet.WithSeed(1))
			dst := newNetwork(t, resnet.WithSeed(2))

			before := make(map[string][]byte)
			for key, raw := range dst.StateDict() {
				before[key] = slices.Clone(raw.Data())
			}

			sd := src.StateDict()
			tt.mutate(sd, src.Backend())
			err := dst.LoadStateDict(sd)
			require.ErrorContains(t, err, tt.want)

			for key, raw := range dst.StateDict() {
				assert.Equal(t, before[key], raw.Data(), "%s changed by a failed load", key)
			}
		})
	}
}

func TestString(t *testing.T) {
	net := newNetwork(t)
	s := net.String()

	assert.True(t, strings.HasPrefix(s, "preactresnet20(\n"))
	assert.Contains(t, s, "(layer2): Stage(3 blocks, 16 -> 32, stride=2)")
	assert.Contains(t, s, "(0): PreActBlock(16 -> 32, stride=2, shortcut=projection)")
	assert.Contains(t, s, "(pool): AvgPool2D(kernel_size=8, stride=8)")
	assert.Contains(t, s, "(linear): Linear(in_features=64, out_features=10, bias=true)")
}
