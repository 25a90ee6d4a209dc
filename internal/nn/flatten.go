package nn

import (
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Flatten collapses every dimension after the batch dimension:
// [N, C, H, W] -> [N, C*H*W].
type Flatten[B tensor.Backend] struct{}

// NewFlatten creates a new Flatten layer.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return &Flatten[B]{}
}

// Forward flattens input.
func (f *Flatten[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.Flatten()
}

// Parameters returns nil.
func (f *Flatten[B]) Parameters() []*Parameter[B] {
	return nil
}

// NamedParameters returns nil.
func (f *Flatten[B]) NamedParameters(string) []NamedParameter[B] {
	return nil
}

// StateDict returns an empty map.
func (f *Flatten[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (f *Flatten[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// String returns "Flatten()".
func (f *Flatten[B]) String() string {
	return "Flatten()"
}
