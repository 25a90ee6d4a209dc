package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// MergeStateDict copies every entry of src into dst under prefix.
func MergeStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[Qualify(prefix, name)] = raw
	}
}

// SubStateDict returns the entries of stateDict that live under prefix,
// with the prefix stripped.
func SubStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for key, raw := range stateDict {
		if rest, ok := strings.CutPrefix(key, p); ok {
			sub[rest] = raw
		}
	}
	return sub
}

// loadRaw copies stateDict[key] into dst after checking shape and dtype.
func loadRaw(dst *tensor.RawTensor, stateDict map[string]*tensor.RawTensor, key string) error {
	src, ok := stateDict[key]
	if !ok {
		return fmt.Errorf("missing %s in state dict", key)
	}
	if !src.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", key, dst.Shape(), src.Shape())
	}
	if src.DType() != dst.DType() {
		return fmt.Errorf("%s dtype mismatch: expected %v, got %v", key, dst.DType(), src.DType())
	}
	copy(dst.Data(), src.Data())
	return nil
}

// loadParameters loads every parameter of a leaf layer by local name.
func loadParameters[B tensor.Backend](stateDict map[string]*tensor.RawTensor, params ...*Parameter[B]) error {
	for _, p := range params {
		if err := loadRaw(p.Tensor().Raw(), stateDict, p.Name()); err != nil {
			return err
		}
	}
	return nil
}

// parameterStateDict exports a leaf layer's parameters by local name.
func parameterStateDict[B tensor.Backend](params ...*Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		stateDict[p.Name()] = p.Tensor().Raw()
	}
	return stateDict
}
