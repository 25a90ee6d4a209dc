// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math/rand"
	"testing"

	"github.com/born-ml/preactresnet/backend/cpu"
	"github.com/born-ml/preactresnet/nn"
	"github.com/born-ml/preactresnet/tensor"
	"github.com/stretchr/testify/assert"
)

// TestModuleInterface verifies that concrete types implement Module interface.
func TestModuleInterface(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name   string
		module nn.Module[*cpu.Backend]
		input  tensor.Shape
	}{
		{
			name:   "Linear",
			module: nn.NewLinear(10, 5, backend),
			input:  tensor.Shape{2, 10},
		},
		{
			name:   "Conv2D",
			module: nn.NewConv2D(3, 4, 3, 3, 1, 1, true, backend),
			input:  tensor.Shape{2, 3, 8, 8},
		},
		{
			name: "Sequential",
			module: nn.NewSequential[*cpu.Backend](
				nn.NewBatchNorm2D(3, nn.DefaultBatchNormEpsilon, nn.DefaultBatchNormMomentum, backend),
				nn.NewReLU[*cpu.Backend](),
				nn.NewAvgPool2D[*cpu.Backend](8, 8),
				nn.NewFlatten[*cpu.Backend](),
			),
			input: tensor.Shape{2, 3, 8, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tensor.Randn[float32](tt.input, rand.New(rand.NewSource(1)), backend)
			_ = tt.module.Forward(input)

			assert.NotEmpty(t, tt.module.Parameters())
			assert.NotEmpty(t, tt.module.StateDict())
			assert.Len(t, tt.module.NamedParameters(""), len(tt.module.Parameters()))
		})
	}
}

func TestPublicOrthogonal(t *testing.T) {
	backend := cpu.New()
	p := nn.NewParameter("weight", nn.Zeros(tensor.Shape{4, 4}, backend))

	nn.InitOrthogonal(p, 1, rand.New(rand.NewSource(1)))

	// Each row of an orthogonal matrix has unit norm.
	data := p.Tensor().Data()
	for r := 0; r < 4; r++ {
		var sum float64
		for c := 0; c < 4; c++ {
			v := float64(data[r*4+c])
			sum += v * v
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}
