// Package nn implements neural network modules on top of package tensor.
//
// This package provides the building blocks for convolutional classifiers:
//   - Module interface: base interface for all NN components
//   - Parameter: trainable tensor with a local name
//   - Conv2D, Linear: learnable layers
//   - BatchNorm2D: per-channel normalisation with running statistics
//   - ReLU, AvgPool2D, Flatten: parameter-free layers
//   - Sequential: container for stacking layers
//   - Orthogonal, Xavier, Zeros, Ones: initialisers
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
// Parameter names follow PyTorch's state_dict convention ("0.weight",
// "shortcut.0.bias") so exported weights line up with torch checkpoints.
package nn

import (
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	// Shape violations are programmer errors and panic.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters in a stable order.
	// Modules without parameters return nil.
	Parameters() []*Parameter[B]

	// NamedParameters returns the parameters with their qualified names,
	// each prefixed with prefix (empty for a top-level call).
	NamedParameters(prefix string) []NamedParameter[B]

	// StateDict exports parameters and buffers keyed by local name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into the module.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// TrainingModule is implemented by modules whose forward pass differs
// between training and evaluation.
type TrainingModule interface {
	SetTraining(training bool)
}

// SetTraining switches m and, for containers, every child module into
// training (true) or evaluation (false) mode. Modules without a mode are
// left untouched.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	if tm, ok := m.(TrainingModule); ok {
		tm.SetTraining(training)
	}
}
