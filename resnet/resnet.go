// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package resnet provides pre-activation residual networks for CIFAR-style
// 32×32 RGB images.
//
// # Basic Usage
//
//	backend := cpu.New()
//	net, err := resnet.PreActResNet20("CIFAR10", backend, resnet.WithSeed(42))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := net.Forward(images) // [N, 3, 32, 32] -> [N, 10]
//
// # Parameters
//
// Parameters() returns every trainable tensor for an external optimizer;
// NamedParameters("") and StateDict() use PyTorch names such as
// "layer2.0.shortcut.0.weight". Save and Load persist a network in
// SafeTensors format.
package resnet

import (
	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/resnet"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Network is a pre-activation ResNet.
type Network[B tensor.Backend] = resnet.Network[B]

// Stage is a run of residual blocks at one width.
type Stage[B tensor.Backend] = resnet.Stage[B]

// Block is a pre-activation basic block.
type Block[B tensor.Backend] = resnet.Block[B]

// Shortcut is a block's bypass path.
type Shortcut[B tensor.Backend] = resnet.Shortcut[B]

// ShortcutKind tells identity and projection shortcuts apart.
type ShortcutKind = resnet.ShortcutKind

// Shortcut kinds.
const (
	ShortcutIdentity   = resnet.ShortcutIdentity
	ShortcutProjection = resnet.ShortcutProjection
)

// Input geometry and defaults.
const (
	InputChannels  = resnet.InputChannels
	InputSize      = resnet.InputSize
	DefaultDataset = resnet.DefaultDataset
)

// Config describes a network.
type Config = resnet.Config

// Option configures network construction.
type Option = resnet.Option

// Errors.
var (
	ErrUnsupportedDataset = resnet.ErrUnsupportedDataset
	ErrInvalidConfig      = resnet.ErrInvalidConfig
)

// New builds and initialises a network described by cfg.
func New[B tensor.Backend](cfg Config, backend B, opts ...Option) (*Network[B], error) {
	return resnet.New(cfg, backend, opts...)
}

// PreActResNet20 builds the 20-layer network (3 blocks per stage).
func PreActResNet20[B tensor.Backend](dataset string, backend B, opts ...Option) (*Network[B], error) {
	return resnet.PreActResNet20(dataset, backend, opts...)
}

// PreActResNet68 builds the 68-layer network (11 blocks per stage).
func PreActResNet68[B tensor.Backend](dataset string, backend B, opts ...Option) (*Network[B], error) {
	return resnet.PreActResNet68(dataset, backend, opts...)
}

// NewBlock creates a single pre-activation block. opts (nn.WithRand,
// nn.WithoutInit) control how its convolution weights are filled.
func NewBlock[B tensor.Backend](in, out, stride int, bnEpsilon, bnMomentum float64, backend B, opts ...nn.InitOption) *Block[B] {
	return resnet.NewBlock(in, out, stride, bnEpsilon, bnMomentum, backend, opts...)
}

// NumClassesFor returns the class count of a known dataset.
func NumClassesFor(dataset string) (int, error) {
	return resnet.NumClassesFor(dataset)
}

// Preset returns a built-in configuration by name.
func Preset(name string) (Config, error) {
	return resnet.Preset(name)
}

// PresetNames lists the built-in configurations.
func PresetNames() []string {
	return resnet.PresetNames()
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	return resnet.LoadConfig(path)
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(data []byte) (Config, error) {
	return resnet.ParseConfig(data)
}

// WithSeed seeds weight initialisation.
func WithSeed(seed int64) Option {
	return resnet.WithSeed(seed)
}

// Save writes a network to path in SafeTensors format.
func Save[B tensor.Backend](path string, n *Network[B]) error {
	return resnet.Save(path, n)
}

// Load builds a network from a checkpoint written by Save.
func Load[B tensor.Backend](path string, backend B, opts ...Option) (*Network[B], error) {
	return resnet.Load(path, backend, opts...)
}

// LoadInto copies a checkpoint into an existing network.
func LoadInto[B tensor.Backend](path string, n *Network[B]) error {
	return resnet.LoadInto(path, n)
}
