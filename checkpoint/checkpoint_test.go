package checkpoint

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/neural"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/storage"
)

// smallCheckpoint builds a valid checkpoint with input 4, hidden [3, 2], output 2.
func smallCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	weights := make(map[string]Tensor)
	for i, ls := range neural.LayerShapes(4, []int{3, 2}, 2) {
		n := 1
		for _, d := range ls.Shape {
			n *= d
		}
		data := make([]float64, n)
		for j := range data {
			data[j] = float64(i) + float64(j)*0.125 - 1.0/3.0
		}
		weights[ls.Name] = Tensor{Shape: ls.Shape, Data: data}
	}
	ck, err := New(backbone.ResNet50, map[string]int{"1": 0, "2": 1}, 4, []int{3, 2}, 2, weights)
	require.NoError(t, err)
	return ck
}

func encodeRecord(t *testing.T, rec record) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(formatVersion)
	require.NoError(t, model.EncodeGob(&buf, &rec))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	ck := smallCheckpoint(t)
	ck.SetMeta(MetaRunID, "6f1c")
	ck.SetMeta(MetaEpochs, 2)
	ck.SetMeta(MetaLearningRate, 0.003)

	// 極端な値もビット単位で保持されること
	w := ck.Weights["fc1.bias"]
	w.Data[0] = math.SmallestNonzeroFloat64
	w.Data[1] = -math.MaxFloat64

	b, err := Serialize(ck)
	require.NoError(t, err)
	assert.Equal(t, []byte("PNCK"), b[:4])

	got, err := Deserialize(b)
	require.NoError(t, err)
	assert.Equal(t, ck, got)
	assert.Equal(t, "0.003", got.Metadata[MetaLearningRate])
}

func TestDeserialize_SchemaErrors(t *testing.T) {
	valid, err := Serialize(smallCheckpoint(t))
	require.NoError(t, err)

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 9

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), valid[4:]...)},
		{"bad version", badVersion},
		{"truncated payload", valid[:len(valid)/2]},
		{"garbage payload", append([]byte("PNCK\x01"), 0xde, 0xad, 0xbe, 0xef)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.input)
			var schemaErr *errors.SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Equal(t, errors.ExitSchema, errors.ExitCode(err))
		})
	}
}

func TestDeserialize_MissingFields(t *testing.T) {
	ck := smallCheckpoint(t)
	rec := record{
		Architecture: string(ck.Architecture),
		ClassToIndex: ck.ClassToIndex,
		HiddenSizes:  ck.HiddenSizes,
		Weights:      ck.Weights,
	}

	_, err := Deserialize(encodeRecord(t, rec))
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"input_size", "output_size"}, schemaErr.Missing)
}

func TestDeserialize_UnknownArchitecture(t *testing.T) {
	ck := smallCheckpoint(t)
	rec := record{
		Architecture: "densenet",
		ClassToIndex: ck.ClassToIndex,
		InputSize:    ck.InputSize,
		HiddenSizes:  ck.HiddenSizes,
		OutputSize:   ck.OutputSize,
		Weights:      ck.Weights,
	}
	_, err := Deserialize(encodeRecord(t, rec))
	var schemaErr *errors.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestValidate_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ck *Checkpoint)
		layer  string
	}{
		{
			name:   "transposed weight",
			mutate: func(ck *Checkpoint) { ck.Weights["fc2.weight"] = Tensor{Shape: []int{3, 2}, Data: make([]float64, 6)} },
			layer:  "fc2.weight",
		},
		{
			name:   "missing tensor",
			mutate: func(ck *Checkpoint) { delete(ck.Weights, "fc3.bias") },
			layer:  "fc3.bias",
		},
		{
			name:   "extra tensor",
			mutate: func(ck *Checkpoint) { ck.Weights["fc4.weight"] = Tensor{Shape: []int{1}, Data: []float64{0}} },
			layer:  "fc4.weight",
		},
		{
			name:   "data length",
			mutate: func(ck *Checkpoint) { ck.Weights["fc1.bias"] = Tensor{Shape: []int{3}, Data: []float64{1}} },
			layer:  "fc1.bias",
		},
		{
			name:   "hidden sizes disagree with weights",
			mutate: func(ck *Checkpoint) { ck.HiddenSizes = []int{5, 2} },
			layer:  "fc1.weight",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ck := smallCheckpoint(t)
			tt.mutate(ck)

			_, err := Serialize(ck)
			var shapeErr *errors.ShapeMismatchError
			require.True(t, errors.As(err, &shapeErr), "got %v", err)
			assert.Equal(t, tt.layer, shapeErr.Layer)
		})
	}
}

func TestValidate_ClassIndex(t *testing.T) {
	ck := smallCheckpoint(t)
	ck.ClassToIndex = map[string]int{"1": 0, "2": 2}
	var schemaErr *errors.SchemaError
	assert.True(t, errors.As(ck.Validate(), &schemaErr))

	ck.ClassToIndex = map[string]int{"1": 1, "2": 1}
	assert.True(t, errors.As(ck.Validate(), &schemaErr))
}

func TestIndexToClass(t *testing.T) {
	ck := smallCheckpoint(t)
	assert.Equal(t, map[int]string{0: "1", 1: "2"}, ck.IndexToClass())
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)

	ck := smallCheckpoint(t)
	require.NoError(t, Save(ctx, s, DefaultFileName, ck))

	got, err := Load(ctx, s, DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, ck, got)

	_, err = Load(ctx, s, "missing.ckpt")
	var ioErr *errors.IOError
	assert.True(t, errors.As(err, &ioErr))
}
