package resnet

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// ShortcutKind tells how a block's input reaches its output addition.
type ShortcutKind int

// Shortcut kinds.
const (
	// ShortcutIdentity passes the input through unchanged.
	ShortcutIdentity ShortcutKind = iota
	// ShortcutProjection applies a strided 1×1 convolution.
	ShortcutProjection
)

// String returns "identity" or "projection".
func (k ShortcutKind) String() string {
	switch k {
	case ShortcutIdentity:
		return "identity"
	case ShortcutProjection:
		return "projection"
	default:
		return fmt.Sprintf("ShortcutKind(%d)", int(k))
	}
}

// Shortcut is the bypass path of a Block. Conv is nil for ShortcutIdentity.
type Shortcut[B tensor.Backend] struct {
	Kind ShortcutKind
	Conv *nn.Conv2D[B]
}

// newShortcut decides the shortcut kind from the block geometry.
func newShortcut[B tensor.Backend](in, out, stride int, backend B, opts []nn.InitOption) Shortcut[B] {
	if in == out && stride == 1 {
		return Shortcut[B]{Kind: ShortcutIdentity}
	}
	return Shortcut[B]{
		Kind: ShortcutProjection,
		Conv: nn.NewConv2D(in, out, 1, 1, stride, 0, true, backend, opts...),
	}
}

// Apply maps the block input onto the output's shape.
func (s Shortcut[B]) Apply(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if s.Kind == ShortcutProjection {
		return s.Conv.Forward(x)
	}
	return x
}

// Block is a pre-activation basic block:
//
//	h   = conv1(relu(bn1(x)))   3×3, stride s
//	h   = conv2(relu(bn2(h)))   3×3, stride 1
//	out = h + shortcut(x)
type Block[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	stride      int

	bn1      *nn.BatchNorm2D[B]
	conv1    *nn.Conv2D[B]
	bn2      *nn.BatchNorm2D[B]
	conv2    *nn.Conv2D[B]
	relu     *nn.ReLU[B]
	shortcut Shortcut[B]
}

// NewBlock creates a block mapping in channels to out channels. The
// shortcut is a projection when in != out or stride != 1. opts control how
// the convolution weights are filled.
func NewBlock[B tensor.Backend](in, out, stride int, bnEpsilon, bnMomentum float64, backend B, opts ...nn.InitOption) *Block[B] {
	if stride != 1 && stride != 2 {
		panic(fmt.Sprintf("block: unsupported stride %d", stride))
	}
	return &Block[B]{
		inChannels:  in,
		outChannels: out,
		stride:      stride,
		bn1:         nn.NewBatchNorm2D(in, bnEpsilon, bnMomentum, backend),
		conv1:       nn.NewConv2D(in, out, 3, 3, stride, 1, true, backend, opts...),
		bn2:         nn.NewBatchNorm2D(out, bnEpsilon, bnMomentum, backend),
		conv2:       nn.NewConv2D(out, out, 3, 3, 1, 1, true, backend, opts...),
		relu:        nn.NewReLU[B](),
		shortcut:    newShortcut(in, out, stride, backend, opts),
	}
}

// Forward maps [N, in, H, W] to [N, out, H', W'] where H' = H for stride 1
// and (H-1)/2+1 for stride 2.
func (b *Block[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shortcut := b.shortcut.Apply(x)

	out := b.conv1.Forward(b.relu.Forward(b.bn1.Forward(x)))
	out = b.conv2.Forward(b.relu.Forward(b.bn2.Forward(out)))

	if !out.Shape().Equal(shortcut.Shape()) {
		panic(fmt.Sprintf("block: residual shape %v != shortcut shape %v", out.Shape(), shortcut.Shape()))
	}
	return out.Add(shortcut)
}

// Shortcut returns the block's shortcut path.
func (b *Block[B]) Shortcut() Shortcut[B] {
	return b.shortcut
}

// InChannels returns the number of input channels.
func (b *Block[B]) InChannels() int {
	return b.inChannels
}

// OutChannels returns the number of output channels.
func (b *Block[B]) OutChannels() int {
	return b.outChannels
}

// Stride returns the stride of the first convolution.
func (b *Block[B]) Stride() int {
	return b.stride
}

// Convs returns conv1, conv2 and, for a projection, the shortcut conv.
func (b *Block[B]) Convs() []*nn.Conv2D[B] {
	convs := []*nn.Conv2D[B]{b.conv1, b.conv2}
	if b.shortcut.Kind == ShortcutProjection {
		convs = append(convs, b.shortcut.Conv)
	}
	return convs
}

// BatchNorms returns bn1 and bn2.
func (b *Block[B]) BatchNorms() []*nn.BatchNorm2D[B] {
	return []*nn.BatchNorm2D[B]{b.bn1, b.bn2}
}

// children lists the block's layers with their state dict names.
func (b *Block[B]) children() []namedModule[B] {
	children := []namedModule[B]{
		{"bn1", b.bn1},
		{"conv1", b.conv1},
		{"bn2", b.bn2},
		{"conv2", b.conv2},
	}
	if b.shortcut.Kind == ShortcutProjection {
		children = append(children, namedModule[B]{"shortcut.0", b.shortcut.Conv})
	}
	return children
}

// Parameters returns the block's parameters in registration order.
func (b *Block[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(b.children())
}

// NamedParameters returns the parameters qualified by prefix.
func (b *Block[B]) NamedParameters(prefix string) []nn.NamedParameter[B] {
	return namedParametersOf(prefix, b.children())
}

// StateDict returns parameters and BatchNorm buffers.
func (b *Block[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(b.children())
}

// LoadStateDict loads every layer of the block.
func (b *Block[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictOf(stateDict, b.children())
}

// SetTraining switches both BatchNorm layers.
func (b *Block[B]) SetTraining(training bool) {
	b.bn1.SetTraining(training)
	b.bn2.SetTraining(training)
}

// String returns a one-line description of the block.
func (b *Block[B]) String() string {
	return fmt.Sprintf("PreActBlock(%d -> %d, stride=%d, shortcut=%s)", b.inChannels, b.outChannels, b.stride, b.shortcut.Kind)
}
