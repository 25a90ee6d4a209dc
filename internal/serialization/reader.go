package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// File is a fully read SafeTensors file.
type File struct {
	metadata map[string]string
	tensors  map[string]TensorInfo
	data     []byte // data section
}

// ReadSafeTensors reads and validates the SafeTensors file at path.
func ReadSafeTensors(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Decode reads a SafeTensors stream to the end and parses it.
func Decode(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read safetensors: %w", err)
	}
	return Parse(data)
}

// Parse validates and indexes an in-memory SafeTensors file. The returned
// File references data without copying it.
func Parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: file is %d bytes, need at least 8", ErrInvalidHeader, len(data))
	}

	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: header size %d exceeds file size %d", ErrInvalidHeader, headerSize, len(data))
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &rawMap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	f := &File{
		tensors: make(map[string]TensorInfo, len(rawMap)),
		data:    data[8+headerSize:],
	}

	entries := make([]TensorInfo, 0, len(rawMap))
	for name, value := range rawMap {
		if name == "__metadata__" {
			if err := json.Unmarshal(value, &f.metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %w", ErrInvalidHeader, err)
			}
			continue
		}
		if err := validateTensorName(name); err != nil {
			return nil, err
		}

		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %w", ErrInvalidHeader, name, err)
		}
		info.Name = name
		if _, err := safeTensorsToDType(info.DType); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		if err := tensor.Shape(info.Shape).Validate(); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %w", ErrInvalidHeader, name, err)
		}

		f.tensors[name] = info
		entries = append(entries, info)
	}

	if err := validateEntries(entries, int64(len(f.data))); err != nil {
		return nil, err
	}

	if stored, ok := f.metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(f.data, stored); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Metadata returns the "__metadata__" entries, or nil.
func (f *File) Metadata() map[string]string {
	return f.metadata
}

// Names returns the tensor names in alphabetical order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.tensors))
	for name := range f.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the header entry for name.
func (f *File) Info(name string) (TensorInfo, error) {
	info, ok := f.tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// Tensor copies the named tensor into a new RawTensor on device.
func (f *File) Tensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, err := f.Info(name)
	if err != nil {
		return nil, err
	}

	dtype, err := safeTensorsToDType(info.DType)
	if err != nil {
		return nil, err
	}

	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), dtype, device)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor %s: %w", name, err)
	}
	copy(raw.Data(), f.data[info.DataOffsets[0]:info.DataOffsets[1]])
	return raw, nil
}

// StateDict loads every tensor in the file.
func (f *File) StateDict(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(f.tensors))
	for name := range f.tensors {
		raw, err := f.Tensor(name, device)
		if err != nil {
			return nil, err
		}
		stateDict[name] = raw
	}
	return stateDict, nil
}
