package resnet

import "math/rand"

// Option configures network construction.
type Option func(*options)

type options struct {
	rng  *rand.Rand
	seed *int64
}

// WithSeed seeds the initialisation generator, overriding Config.Seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithRand draws initial weights from rng. It takes precedence over
// WithSeed and Config.Seed.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// generator resolves the options into the generator used for initialisation.
func (o options) generator(cfg Config) *rand.Rand {
	if o.rng != nil {
		return o.rng
	}
	seed := cfg.Seed
	if o.seed != nil {
		seed = *o.seed
	}
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	return rand.New(rand.NewSource(seed))
}
