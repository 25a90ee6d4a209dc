// Package cpu implements the pure-Go CPU compute backend.
package cpu

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/parallel"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// float is the set of element types the CPU kernels are written for.
type float interface {
	~float32 | ~float64
}

// CPUBackend implements tensor operations on the CPU.
//
// Every operation allocates a fresh result and leaves its inputs untouched,
// so one backend and one set of parameter tensors can serve concurrent
// forward passes.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the goroutine fan-out used by the kernels.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.parallel = cfg
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device:   tensor.CPU,
		parallel: parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the goroutine fan-out configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.parallel
}

// forRange splits cheap per-element work across goroutines.
func (cpu *CPUBackend) forRange(n int, f func(start, end int)) {
	parallel.ForRange(n, f, cpu.parallel)
}

// forEach runs coarse units (whole channels or matrix rows) in parallel.
func (cpu *CPUBackend) forEach(n int, f func(i int)) {
	parallel.For(n, f, cpu.parallel.WithMinChunk(1))
}

// forPlanes runs f once per (batch, channel) plane of an NCHW tensor.
func (cpu *CPUBackend) forPlanes(batch, channels int, f func(n, c int)) {
	parallel.ForBatch(batch, channels, f, cpu.parallel.WithMinChunk(1))
}

// alloc creates a zeroed result tensor or panics with the op name.
func (cpu *CPUBackend) alloc(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// view returns the typed elements of r.
func view[T float](r *tensor.RawTensor) []T {
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return any(r.AsFloat32()).([]T)
	default:
		return any(r.AsFloat64()).([]T)
	}
}

// requireFloat panics unless dt is a floating point type.
func requireFloat(op string, dt tensor.DataType) {
	if dt != tensor.Float32 && dt != tensor.Float64 {
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, dt))
	}
}

// requireSameDType panics when the operands' dtypes differ.
func requireSameDType(op string, tensors ...*tensor.RawTensor) {
	for _, t := range tensors[1:] {
		if t.DType() != tensors[0].DType() {
			panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, tensors[0].DType(), t.DType()))
		}
	}
}
