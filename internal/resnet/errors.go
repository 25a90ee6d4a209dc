package resnet

import "errors"

// Common errors.
var (
	// ErrUnsupportedDataset is returned for dataset names without a known
	// class count.
	ErrUnsupportedDataset = errors.New("unsupported dataset")

	// ErrInvalidConfig is returned when a Config cannot describe a network.
	ErrInvalidConfig = errors.New("invalid config")
)
