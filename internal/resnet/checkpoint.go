package resnet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/preactresnet/internal/serialization"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Metadata keys written by Save.
const (
	MetaArchitecture = "architecture"
	MetaDataset      = "dataset"
	MetaBlocks       = "blocks"
	MetaNumClasses   = "num_classes"
	MetaBNEpsilon    = "bn_epsilon"
	MetaBNMomentum   = "bn_momentum"
	MetaFormat       = "format"
)

// Metadata describes the network for a checkpoint header.
func (n *Network[B]) Metadata() map[string]string {
	blocks := make([]string, len(n.config.Blocks))
	for i, b := range n.config.Blocks {
		blocks[i] = strconv.Itoa(b)
	}
	return map[string]string{
		MetaArchitecture: n.config.DisplayName(),
		MetaDataset:      n.config.Dataset,
		MetaBlocks:       strings.Join(blocks, ","),
		MetaNumClasses:   strconv.Itoa(n.config.NumClasses),
		MetaBNEpsilon:    strconv.FormatFloat(n.config.BNEpsilon, 'g', -1, 64),
		MetaBNMomentum:   strconv.FormatFloat(n.config.BNMomentum, 'g', -1, 64),
		MetaFormat:       "pt",
	}
}

// Save writes the network's state dict to path in SafeTensors format.
func Save[B tensor.Backend](path string, n *Network[B]) error {
	if err := serialization.WriteSafeTensors(path, n.StateDict(), n.Metadata()); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Load builds a network from a checkpoint written by Save.
func Load[B tensor.Backend](path string, backend B, opts ...Option) (*Network[B], error) {
	file, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, err
	}

	cfg, err := ConfigFromMetadata(file.Metadata())
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}

	n, err := New(cfg, backend, opts...)
	if err != nil {
		return nil, err
	}
	if err := loadFile(n, file); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return n, nil
}

// LoadInto copies a checkpoint's tensors into an existing network.
func LoadInto[B tensor.Backend](path string, n *Network[B]) error {
	file, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return err
	}
	if err := loadFile(n, file); err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return nil
}

func loadFile[B tensor.Backend](n *Network[B], file *serialization.File) error {
	stateDict, err := file.StateDict(n.backend.Device())
	if err != nil {
		return err
	}
	return n.LoadStateDict(stateDict)
}

// ConfigFromMetadata rebuilds a Config from checkpoint metadata.
func ConfigFromMetadata(meta map[string]string) (Config, error) {
	var cfg Config
	cfg.Name = meta[MetaArchitecture]
	cfg.Dataset = meta[MetaDataset]

	if s := meta[MetaBlocks]; s != "" {
		for _, field := range strings.Split(s, ",") {
			b, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return Config{}, fmt.Errorf("%w: blocks %q: %w", ErrInvalidConfig, s, err)
			}
			cfg.Blocks = append(cfg.Blocks, b)
		}
	}
	if s := meta[MetaNumClasses]; s != "" {
		c, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: num_classes %q: %w", ErrInvalidConfig, s, err)
		}
		cfg.NumClasses = c
	}
	for key, dst := range map[string]*float64{MetaBNEpsilon: &cfg.BNEpsilon, MetaBNMomentum: &cfg.BNMomentum} {
		if s := meta[key]; s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s %q: %w", ErrInvalidConfig, key, s, err)
			}
			*dst = v
		}
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
