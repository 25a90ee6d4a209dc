package serialization

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// TensorInfo describes a tensor in the SafeTensors header.
type TensorInfo struct {
	Name        string   `json:"-"`
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) within the data section
}

// byteSize returns the number of bytes the dtype and shape require, or -1
// for an unknown dtype.
func (ti TensorInfo) byteSize() int64 {
	dt, err := safeTensorsToDType(ti.DType)
	if err != nil {
		return -1
	}
	return int64(tensor.Shape(ti.Shape).NumElements() * dt.Size())
}

// WriteSafeTensors writes a state dictionary to path.
//
// Tensors are written in alphabetical order by name. metadata may be nil;
// the data checksum is added to it under ChecksumKey.
func WriteSafeTensors(path string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := Encode(w, stateDict, metadata); err != nil {
		_ = file.Close() // Best effort close on error
		return err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close() // Best effort close on error
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Close()
}

// Encode writes a state dictionary in SafeTensors format to w.
func Encode(w io.Writer, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := validateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	digest := sha256.New()

	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		dtype, err := dtypeToSafeTensors(raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}

		size := int64(raw.ByteSize())
		header[name] = TensorInfo{
			DType:       dtype,
			Shape:       []int(raw.Shape().Clone()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
		digest.Write(raw.Data())
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = hex.EncodeToString(digest.Sum(nil))
	header["__metadata__"] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Write header size (8 bytes, little-endian uint64)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, name := range names {
		if _, err := w.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}
