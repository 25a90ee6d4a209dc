package serialization_test

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/born-ml/preactresnet/internal/serialization"
	"github.com/born-ml/preactresnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRaw(t *testing.T, dtype tensor.DataType, shape ...int) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(tensor.Shape(shape), dtype, tensor.CPU)
	require.NoError(t, err)
	return raw
}

func testStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	weight := newRaw(t, tensor.Float32, 2, 3)
	copy(weight.AsFloat32(), []float32{1, 2, 3, 4, 5, 6})

	bias := newRaw(t, tensor.Float32, 3)
	copy(bias.AsFloat32(), []float32{0.1, 0.2, 0.3})

	scale := newRaw(t, tensor.Float64, 2)
	copy(scale.AsFloat64(), []float64{0.5, -0.25})

	return map[string]*tensor.RawTensor{
		"layer1.0.conv1.weight": weight,
		"linear.bias":           bias,
		"last_act.0.weight":     scale,
	}
}

// buildFile assembles a SafeTensors file from a raw header.
func buildFile(header string, data []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestSafeTensorsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	stateDict := testStateDict(t)

	err := serialization.WriteSafeTensors(path, stateDict, map[string]string{"architecture": "preactresnet20"})
	require.NoError(t, err)

	file, err := serialization.ReadSafeTensors(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"last_act.0.weight", "layer1.0.conv1.weight", "linear.bias"}, file.Names())
	assert.Equal(t, "preactresnet20", file.Metadata()["architecture"])
	assert.Len(t, file.Metadata()[serialization.ChecksumKey], 64)

	loaded, err := file.StateDict(tensor.CPU)
	require.NoError(t, err)
	require.Len(t, loaded, len(stateDict))

	for name, want := range stateDict {
		got := loaded[name]
		assert.Equal(t, want.Shape(), got.Shape(), name)
		assert.Equal(t, want.DType(), got.DType(), name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}
}

func TestEncodeDoesNotMutateMetadata(t *testing.T) {
	metadata := map[string]string{"k": "v"}

	var buf bytes.Buffer
	require.NoError(t, serialization.Encode(&buf, testStateDict(t), metadata))

	assert.Equal(t, map[string]string{"k": "v"}, metadata)
}

func TestEncodeOffsetsAreContiguous(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serialization.Encode(&buf, testStateDict(t), nil))

	file, err := serialization.Decode(&buf)
	require.NoError(t, err)

	var offset int64
	for _, name := range file.Names() {
		info, err := file.Info(name)
		require.NoError(t, err)
		assert.Equal(t, offset, info.DataOffsets[0], name)
		offset = info.DataOffsets[1]
	}
	assert.Equal(t, int64(6*4+3*4+2*8), offset)
}

func TestTensorNotFound(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serialization.Encode(&buf, testStateDict(t), nil))
	file, err := serialization.Decode(&buf)
	require.NoError(t, err)

	_, err = file.Tensor("missing.weight", tensor.CPU)
	assert.ErrorIs(t, err, serialization.ErrTensorNotFound)
}

func TestParseRejectsMalformedFiles(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "too short",
			data:    []byte{1, 2, 3},
			wantErr: serialization.ErrInvalidHeader,
		},
		{
			name:    "header beyond file",
			data:    append(binary.LittleEndian.AppendUint64(nil, 100), '{', '}'),
			wantErr: serialization.ErrInvalidHeader,
		},
		{
			name:    "header too large",
			data:    binary.LittleEndian.AppendUint64(nil, serialization.MaxHeaderSize+1),
			wantErr: serialization.ErrHeaderTooLarge,
		},
		{
			name:    "bad json",
			data:    buildFile(`{"a":`, nil),
			wantErr: serialization.ErrInvalidHeader,
		},
		{
			name:    "unsupported dtype",
			data:    buildFile(`{"w":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]}}`, make([]byte, 4)),
			wantErr: serialization.ErrUnsupportedDType,
		},
		{
			name:    "out of bounds",
			data:    buildFile(`{"w":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`, make([]byte, 8)),
			wantErr: serialization.ErrInvalidHeader,
		},
		{
			name:    "size mismatch",
			data:    buildFile(`{"w":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`, make([]byte, 8)),
			wantErr: serialization.ErrInvalidHeader,
		},
		{
			name: "overlap",
			data: buildFile(`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},`+
				`"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`, make([]byte, 12)),
			wantErr: serialization.ErrInvalidHeader,
		},
		{
			name:    "path traversal name",
			data:    buildFile(`{"../w":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`, make([]byte, 4)),
			wantErr: serialization.ErrInvalidTensorName,
		},
		{
			name:    "checksum mismatch",
			data:    buildFile(`{"__metadata__":{"sha256":"00"},"w":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`, make([]byte, 4)),
			wantErr: serialization.ErrChecksumMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serialization.Parse(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseWithoutChecksum(t *testing.T) {
	data := buildFile(`{"w":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`, []byte{0, 0, 0x80, 0x3f})

	file, err := serialization.Parse(data)
	require.NoError(t, err)

	raw, err := file.Tensor("w", tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, raw.AsFloat32())
}

func TestEncodeRejectsInvalidNames(t *testing.T) {
	stateDict := map[string]*tensor.RawTensor{"a/b": newRaw(t, tensor.Float32, 1)}

	var buf bytes.Buffer
	err := serialization.Encode(&buf, stateDict, nil)
	assert.ErrorIs(t, err, serialization.ErrInvalidTensorName)
}
