package resnet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/born-ml/preactresnet/internal/nn"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultDataset = "CIFAR10"
	DefaultSeed    = 0
)

// NumStages is the number of residual stages in every network.
const NumStages = 3

// Stage widths and first-block strides.
var (
	stageChannels = [NumStages]int{16, 32, 64}
	stageStrides  = [NumStages]int{1, 2, 2}
)

var datasetClasses = map[string]int{
	"CIFAR10": 10,
}

// NumClassesFor returns the class count of a known dataset.
func NumClassesFor(dataset string) (int, error) {
	n, ok := datasetClasses[dataset]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDataset, dataset)
	}
	return n, nil
}

// Config describes a pre-activation ResNet.
type Config struct {
	Name       string  `yaml:"name"`
	Dataset    string  `yaml:"dataset"`
	Blocks     []int   `yaml:"blocks"`
	NumClasses int     `yaml:"num_classes"`
	Seed       int64   `yaml:"seed"`
	BNEpsilon  float64 `yaml:"bn_epsilon"`
	BNMomentum float64 `yaml:"bn_momentum"`
}

var presets = map[string][]int{
	"preactresnet20": {3, 3, 3},
	"preactresnet68": {11, 11, 11},
}

// PresetNames returns the names accepted by Preset, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Preset returns the built-in configuration for name ("preactresnet20" or
// "preactresnet68", case-insensitive) on the default dataset.
func Preset(name string) (Config, error) {
	key := strings.ToLower(name)
	blocks, ok := presets[key]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown preset %q (want one of %v)", ErrInvalidConfig, name, PresetNames())
	}
	return Config{
		Name:       key,
		Dataset:    DefaultDataset,
		Blocks:     slices.Clone(blocks),
		NumClasses: datasetClasses[DefaultDataset],
		Seed:       DefaultSeed,
		BNEpsilon:  nn.DefaultBatchNormEpsilon,
		BNMomentum: nn.DefaultBatchNormMomentum,
	}, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: config path is supplied by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML, fills defaults and validates the result.
// Unknown fields are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg, err := cfg.withDefaults()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withDefaults fills unset fields. A named preset supplies missing blocks,
// and the dataset supplies a missing class count. A class count that
// contradicts the dataset is an error.
func (c Config) withDefaults() (Config, error) {
	c.Blocks = slices.Clone(c.Blocks)
	if len(c.Blocks) == 0 {
		if blocks, ok := presets[strings.ToLower(c.Name)]; ok {
			c.Blocks = slices.Clone(blocks)
		}
	}
	if c.Dataset == "" && c.NumClasses == 0 {
		c.Dataset = DefaultDataset
	}
	if c.Dataset != "" {
		n, err := NumClassesFor(c.Dataset)
		if err != nil {
			return Config{}, err
		}
		switch {
		case c.NumClasses == 0:
			c.NumClasses = n
		case c.NumClasses != n:
			return Config{}, fmt.Errorf("%w: num_classes %d does not match %s (%d classes)",
				ErrInvalidConfig, c.NumClasses, c.Dataset, n)
		}
	}
	if c.BNEpsilon == 0 {
		c.BNEpsilon = nn.DefaultBatchNormEpsilon
	}
	if c.BNMomentum == 0 {
		c.BNMomentum = nn.DefaultBatchNormMomentum
	}
	return c, nil
}

// Validate checks that the configuration describes a buildable network.
func (c Config) Validate() error {
	if len(c.Blocks) != NumStages {
		return fmt.Errorf("%w: need %d stage block counts, got %d", ErrInvalidConfig, NumStages, len(c.Blocks))
	}
	for i, n := range c.Blocks {
		if n < 1 {
			return fmt.Errorf("%w: stage %d has %d blocks (need at least 1)", ErrInvalidConfig, i+1, n)
		}
	}
	if c.NumClasses < 1 {
		return fmt.Errorf("%w: num_classes %d (need at least 1)", ErrInvalidConfig, c.NumClasses)
	}
	if c.BNEpsilon <= 0 {
		return fmt.Errorf("%w: bn_epsilon %g must be positive", ErrInvalidConfig, c.BNEpsilon)
	}
	if c.BNMomentum <= 0 || c.BNMomentum > 1 {
		return fmt.Errorf("%w: bn_momentum %g must be in (0, 1]", ErrInvalidConfig, c.BNMomentum)
	}
	return nil
}

// Depth returns the number of weighted layers on the main path:
// the stem, two convolutions per block and the classifier.
func (c Config) Depth() int {
	depth := 2
	for _, n := range c.Blocks {
		depth += 2 * n
	}
	return depth
}

// DisplayName returns Name, or a name derived from the depth.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("preactresnet%d", c.Depth())
}
