package serialization

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// SafeTensors dtype names understood by this package.
const (
	DTypeF32 = "F32"
	DTypeF64 = "F64"
)

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return DTypeF32, nil
	case tensor.Float64:
		return DTypeF64, nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDType, dt)
	}
}

func safeTensorsToDType(name string) (tensor.DataType, error) {
	switch name {
	case DTypeF32:
		return tensor.Float32, nil
	case DTypeF64:
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, name)
	}
}
