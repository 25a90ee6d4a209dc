// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Im2col algorithm for convolutions
//   - Average pooling, ReLU and per-channel BatchNorm kernels
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
//
// Work is split across goroutines per output row, channel or element chunk.
// The parallel configuration is set with WithParallel.
//
// # Basic Usage
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{1, 3, 32, 32}, backend)
//	net, err := resnet.PreActResNet20("CIFAR10", backend)
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Operations never modify
// their inputs and always allocate their outputs.
package cpu

import (
	internalcpu "github.com/born-ml/preactresnet/internal/backend/cpu"
	"github.com/born-ml/preactresnet/internal/parallel"
	"github.com/born-ml/preactresnet/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Option configures a Backend.
type Option = internalcpu.Option

// ParallelConfig controls how kernels split work across goroutines.
type ParallelConfig = parallel.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithParallel sets the parallel execution configuration.
//
// Example:
//
//	cfg := cpu.DefaultParallelConfig()
//	cfg.NumWorkers = 4
//	backend := cpu.New(cpu.WithParallel(cfg))
func WithParallel(cfg ParallelConfig) Option {
	return internalcpu.WithParallel(cfg)
}

// DefaultParallelConfig returns a configuration using every CPU.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}
