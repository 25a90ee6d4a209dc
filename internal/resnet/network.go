package resnet

import (
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"strings"

	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Fixed geometry of the CIFAR variant.
const (
	InputChannels = 3
	InputSize     = 32
	stemChannels  = 16
	poolSize      = 8
)

// Network is a pre-activation ResNet for 32×32 RGB images.
//
// Forward in evaluation mode (the default) only reads parameters, so one
// Network may serve concurrent Forward calls.
type Network[B tensor.Backend] struct {
	config Config

	conv1   *nn.Conv2D[B]
	stages  [NumStages]*Stage[B]
	lastBN  *nn.BatchNorm2D[B]
	lastAct *nn.Sequential[B]
	pool    *nn.AvgPool2D[B]
	flatten *nn.Flatten[B]
	linear  *nn.Linear[B]

	backend B
}

// New builds and initialises a network described by cfg.
//
// Unset config fields take their defaults; an unknown dataset returns
// ErrUnsupportedDataset and an inconsistent config ErrInvalidConfig.
func New[B tensor.Backend](cfg Config, backend B, opts ...Option) (*Network[B], error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// initialize overwrites every weight, so layers start from zeros.
	eps, momentum, deferred := cfg.BNEpsilon, cfg.BNMomentum, nn.WithoutInit()
	n := &Network[B]{
		config:  cfg,
		conv1:   nn.NewConv2D(InputChannels, stemChannels, 3, 3, 1, 1, true, backend, deferred),
		lastBN:  nn.NewBatchNorm2D(stageChannels[NumStages-1], eps, momentum, backend),
		pool:    nn.NewAvgPool2D[B](poolSize, poolSize),
		flatten: nn.NewFlatten[B](),
		linear:  nn.NewLinear(stageChannels[NumStages-1], cfg.NumClasses, backend, deferred),
		backend: backend,
	}

	in := stemChannels
	for i := range n.stages {
		n.stages[i] = NewStage(in, stageChannels[i], cfg.Blocks[i], stageStrides[i], eps, momentum, backend, deferred)
		in = stageChannels[i]
	}
	n.lastAct = nn.NewSequential[B](n.lastBN, nn.NewReLU[B]())

	n.initialize(o.generator(cfg))
	return n, nil
}

// PreActResNet20 builds the 20-layer network (3 blocks per stage).
func PreActResNet20[B tensor.Backend](dataset string, backend B, opts ...Option) (*Network[B], error) {
	return newPreset("preactresnet20", dataset, backend, opts...)
}

// PreActResNet68 builds the 68-layer network (11 blocks per stage).
func PreActResNet68[B tensor.Backend](dataset string, backend B, opts ...Option) (*Network[B], error) {
	return newPreset("preactresnet68", dataset, backend, opts...)
}

func newPreset[B tensor.Backend](name, dataset string, backend B, opts ...Option) (*Network[B], error) {
	numClasses, err := NumClassesFor(dataset)
	if err != nil {
		return nil, err
	}
	cfg, err := Preset(name)
	if err != nil {
		return nil, err
	}
	cfg.Dataset, cfg.NumClasses = dataset, numClasses
	return New(cfg, backend, opts...)
}

// initialize overwrites every parameter by structural role: orthogonal
// classifier and convolution weights, unit BatchNorm scales and zero biases.
func (n *Network[B]) initialize(rng *rand.Rand) {
	nn.InitOrthogonal(n.linear.Weight(), 1, rng)
	nn.Fill(n.linear.Bias(), 0)

	for _, conv := range n.Convs() {
		nn.InitOrthogonal(conv.Weight(), 1, rng)
		if bias := conv.Bias(); bias != nil {
			nn.Fill(bias, 0)
		}
	}

	for _, bn := range n.BatchNorms() {
		nn.Fill(bn.Weight(), 1)
		nn.Fill(bn.Bias(), 0)
	}
}

// Forward maps images [N, 3, 32, 32] to logits [N, NumClasses].
//
// Other spatial sizes leave more than one pooled position and panic at the
// classifier.
func (n *Network[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := n.conv1.Forward(x)
	for _, s := range n.stages {
		out = s.Forward(out)
	}
	out = n.lastAct.Forward(out)
	out = n.pool.Forward(out)
	out = n.flatten.Forward(out)
	return n.linear.Forward(out)
}

// Config returns the resolved configuration.
func (n *Network[B]) Config() Config {
	return n.config
}

// Backend returns the compute backend.
func (n *Network[B]) Backend() B {
	return n.backend
}

// Stem returns the first convolution.
func (n *Network[B]) Stem() *nn.Conv2D[B] {
	return n.conv1
}

// Stages returns the three residual stages.
func (n *Network[B]) Stages() []*Stage[B] {
	return n.stages[:]
}

// Blocks returns every block in forward order.
func (n *Network[B]) Blocks() []*Block[B] {
	var blocks []*Block[B]
	for _, s := range n.stages {
		blocks = append(blocks, s.blocks...)
	}
	return blocks
}

// Classifier returns the final linear layer.
func (n *Network[B]) Classifier() *nn.Linear[B] {
	return n.linear
}

// Convs returns every convolution: the stem, then each block's conv1,
// conv2 and projection.
func (n *Network[B]) Convs() []*nn.Conv2D[B] {
	convs := []*nn.Conv2D[B]{n.conv1}
	for _, b := range n.Blocks() {
		convs = append(convs, b.Convs()...)
	}
	return convs
}

// BatchNorms returns every BatchNorm layer, the closing one last.
func (n *Network[B]) BatchNorms() []*nn.BatchNorm2D[B] {
	var bns []*nn.BatchNorm2D[B]
	for _, b := range n.Blocks() {
		bns = append(bns, b.BatchNorms()...)
	}
	return append(bns, n.lastBN)
}

func (n *Network[B]) children() []namedModule[B] {
	return []namedModule[B]{
		{"conv1", n.conv1},
		{"layer1", n.stages[0]},
		{"layer2", n.stages[1]},
		{"layer3", n.stages[2]},
		{"last_act", n.lastAct},
		{"linear", n.linear},
	}
}

// Parameters returns every trainable parameter in registration order.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(n.children())
}

// NamedParameters returns every parameter with its qualified name, e.g.
// "layer2.0.shortcut.0.weight". Pass "" for top-level names.
func (n *Network[B]) NamedParameters(prefix string) []nn.NamedParameter[B] {
	return namedParametersOf(prefix, n.children())
}

// NumParameters returns the total number of trainable scalars.
func (n *Network[B]) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Shape().NumElements()
	}
	return total
}

// StateDict returns parameters and BatchNorm running statistics keyed by
// qualified name. The tensors are shared with the network.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(n.children())
}

// LoadStateDict copies a state dict into the network. Every parameter must
// be present; BatchNorm buffers are optional. Keys the network does not
// know are rejected, except PyTorch's num_batches_tracked counters.
//
// The whole state dict is checked before anything is copied, so a failed
// load leaves the network unchanged.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := n.checkStateDict(stateDict); err != nil {
		return err
	}
	return loadStateDictOf(stateDict, n.children())
}

// checkStateDict validates keys, shapes and dtypes of stateDict against the
// network's own state.
func (n *Network[B]) checkStateDict(stateDict map[string]*tensor.RawTensor) error {
	known := n.StateDict()
	for _, key := range slices.Sorted(maps.Keys(stateDict)) {
		if _, ok := known[key]; ok || strings.HasSuffix(key, ".num_batches_tracked") {
			continue
		}
		return fmt.Errorf("unexpected key %q in state dict", key)
	}

	required := make(map[string]bool)
	for _, np := range n.NamedParameters("") {
		required[np.Name] = true
	}
	for _, key := range slices.Sorted(maps.Keys(known)) {
		want := known[key]
		got, ok := stateDict[key]
		if !ok {
			if required[key] {
				return fmt.Errorf("missing %s in state dict", key)
			}
			continue
		}
		if !got.Shape().Equal(want.Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v", key, want.Shape(), got.Shape())
		}
		if got.DType() != want.DType() {
			return fmt.Errorf("%s dtype mismatch: expected %v, got %v", key, want.DType(), got.DType())
		}
	}
	return nil
}

// SetTraining switches every BatchNorm layer between batch statistics
// (true) and running statistics (false).
func (n *Network[B]) SetTraining(training bool) {
	for _, s := range n.stages {
		s.SetTraining(training)
	}
	n.lastAct.SetTraining(training)
}

// String renders the layer tree.
func (n *Network[B]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(\n", n.config.DisplayName())
	for _, c := range n.children() {
		if s, ok := c.module.(*Stage[B]); ok {
			fmt.Fprintf(&b, "  (%s): %v\n", c.name, s)
			for i, block := range s.blocks {
				fmt.Fprintf(&b, "    (%d): %v\n", i, block)
			}
			continue
		}
		if c.name == "last_act" {
			fmt.Fprintf(&b, "  (%s): Sequential(%v, ReLU())\n", c.name, n.lastBN)
			fmt.Fprintf(&b, "  (pool): %v\n", n.pool)
			continue
		}
		fmt.Fprintf(&b, "  (%s): %v\n", c.name, c.module)
	}
	b.WriteString(")")
	return b.String()
}
