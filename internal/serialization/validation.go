package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// validateTensorName rejects names that could not come from a state dict.
func validateTensorName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTensorName)
	}
	if len(name) > MaxTensorNameLen {
		return fmt.Errorf("%w: length %d > max %d", ErrInvalidTensorName, len(name), MaxTensorNameLen)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTensorName, name)
	}
	return nil
}

// validateEntries checks every tensor's byte range against its dtype and
// shape, against the data section and against the other tensors.
func validateEntries(entries []TensorInfo, dataSize int64) error {
	if len(entries) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(entries), MaxTensorCount),
		}
	}

	sorted := make([]TensorInfo, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DataOffsets[0] < sorted[j].DataOffsets[0]
	})

	for i, t := range sorted {
		start, end := t.DataOffsets[0], t.DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("data_offsets [%d, %d]", start, end),
			}
		}
		if end > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("end %d > data_size %d", end, dataSize),
			}
		}
		if want := t.byteSize(); end-start != want {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  t.Name,
				Details: fmt.Sprintf("%s%v needs %d bytes, got %d", t.DType, t.Shape, want, end-start),
			}
		}
		if i < len(sorted)-1 && end > sorted[i+1].DataOffsets[0] {
			next := sorted[i+1]
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  t.Name,
				Tensor2: next.Name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					start, end, next.DataOffsets[0], next.DataOffsets[1]),
			}
		}
	}
	return nil
}
