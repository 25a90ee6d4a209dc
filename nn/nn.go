// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network layers the residual networks are
// built from.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, Linear, BatchNorm2D
//   - Parameter-free layers: ReLU, AvgPool2D, Flatten
//   - Containers: Sequential, Module interface, Parameter
//   - Initialization: Orthogonal, Xavier, Fill, Zeros, Ones
//
// # Basic Usage
//
//	backend := cpu.New()
//	block := nn.NewSequential[*cpu.Backend](
//	    nn.NewBatchNorm2D(16, nn.DefaultBatchNormEpsilon, nn.DefaultBatchNormMomentum, backend),
//	    nn.NewReLU[*cpu.Backend](),
//	    nn.NewConv2D(16, 32, 3, 3, 2, 1, true, backend),
//	)
//	output := block.Forward(input)
//
// # State Dicts
//
// StateDict and LoadStateDict use PyTorch key names ("0.weight",
// "0.running_mean"), so weights exchanged through SafeTensors line up with
// torch checkpoints.
package nn

import (
	"math/rand"

	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// TrainingModule is implemented by modules with a training mode.
type TrainingModule = nn.TrainingModule

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NamedParameter pairs a parameter with its qualified name.
type NamedParameter[B tensor.Backend] = nn.NamedParameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// SetTraining switches m into training (true) or evaluation (false) mode.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	nn.SetTraining(m, training)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	layer := nn.NewLinear(64, 10, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B, opts ...InitOption) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend, opts...)
}

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a new 2D convolutional layer.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewConv2D(3, 16, 3, 3, 1, 1, true, backend) // kernel=3x3, stride=1, padding=1, bias
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
	opts ...InitOption,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend, opts...)
}

// BatchNorm2D represents per-channel batch normalization.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// BatchNormBackend is implemented by backends that support BatchNorm2D.
type BatchNormBackend = nn.BatchNormBackend

// Default BatchNorm2D hyperparameters.
const (
	DefaultBatchNormEpsilon  = nn.DefaultBatchNormEpsilon
	DefaultBatchNormMomentum = nn.DefaultBatchNormMomentum
)

// NewBatchNorm2D creates a BatchNorm2D in evaluation mode.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, epsilon, momentum float64, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, epsilon, momentum, backend)
}

// AvgPool2D represents a 2D average pooling layer.
type AvgPool2D[B tensor.Backend] = nn.AvgPool2D[B]

// NewAvgPool2D creates a new 2D average pooling layer.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	return nn.NewAvgPool2D[B](kernelSize, stride)
}

// Flatten collapses all but the batch dimension.
type Flatten[B tensor.Backend] = nn.Flatten[B]

// NewFlatten creates a new Flatten layer.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return nn.NewFlatten[B]()
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// ReLUBackend is implemented by backends that support ReLU.
type ReLUBackend = nn.ReLUBackend

// NewReLU creates a new ReLU activation layer.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Containers

// Sequential chains modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a new sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// Initialization

// Orthogonal returns a tensor with orthonormal rows (rows <= cols) or
// columns, scaled by gain and drawn from rng.
func Orthogonal[B tensor.Backend](shape tensor.Shape, gain float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.Orthogonal(shape, gain, rng, backend)
}

// InitOrthogonal re-initialises p in place with Orthogonal.
func InitOrthogonal[B tensor.Backend](p *Parameter[B], gain float64, rng *rand.Rand) {
	nn.InitOrthogonal(p, gain, rng)
}

// Xavier returns a Glorot-uniform tensor drawn from rng (nil for the global
// source).
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, rng, backend)
}

// InitOption configures construction-time weight initialisation.
type InitOption = nn.InitOption

// WithRand draws construction-time weights from rng.
func WithRand(rng *rand.Rand) InitOption {
	return nn.WithRand(rng)
}

// WithoutInit leaves construction-time weights at zero.
func WithoutInit() InitOption {
	return nn.WithoutInit()
}

// Fill overwrites every element of p with value.
func Fill[B tensor.Backend](p *Parameter[B], value float32) {
	nn.Fill(p, value)
}

// Zeros creates a tensor filled with zeros.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Ones(shape, backend)
}
