// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package resnet

import (
	"math/rand"

	"github.com/born-ml/preactresnet/internal/resnet"
)

// WithRand draws initial weights from rng.
//
// Example:
//
//	rng := rand.New(rand.NewSource(7))
//	net, err := resnet.PreActResNet68("CIFAR10", backend, resnet.WithRand(rng))
func WithRand(rng *rand.Rand) Option {
	return resnet.WithRand(rng)
}
