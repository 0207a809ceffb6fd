package errors

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("arch", "unknown architecture", "densenet")

	want := "petalnet: invalid configuration for 'arch': unknown architecture (got: densenet)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	// スタックトレースの存在確認
	formatted := fmt.Sprintf("%+v", err)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected stack trace to contain test file name")
	}

	var cfgErr *ConfigError
	require.True(t, As(err, &cfgErr))
	assert.Equal(t, "arch", cfgErr.ParamName)
	assert.Equal(t, "densenet", cfgErr.Value)
}

func TestSchemaError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "reason only",
			err:     NewSchemaError("checkpoint", "bad magic"),
			wantMsg: "petalnet: checkpoint: bad magic",
		},
		{
			name:    "missing fields",
			err:     NewMissingFieldsError("checkpoint", []string{"input_size", "weights"}),
			wantMsg: "petalnet: checkpoint: missing required fields: input_size, weights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", tt.err.Error(), tt.wantMsg)
			}
			var schemaErr *SchemaError
			if !As(tt.err, &schemaErr) {
				t.Error("Error should be castable to *SchemaError")
			}
		})
	}
}

func TestShapeMismatchError(t *testing.T) {
	tests := []struct {
		name     string
		expected []int
		got      []int
		contains string
	}{
		{"wrong shape", []int{3, 4}, []int{4, 3}, "expected [3 4], got [4 3]"},
		{"missing tensor", []int{3}, nil, "tensor is missing"},
		{"unexpected tensor", nil, []int{7}, "unexpected tensor with shape [7]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewShapeMismatchError("fc1.weight", tt.expected, tt.got)
			assert.Contains(t, err.Error(), "fc1.weight")
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestIOError_Unwrap(t *testing.T) {
	err := NewIOError("open", "missing.jpg", fs.ErrNotExist)

	assert.True(t, Is(err, fs.ErrNotExist), "IOError should unwrap to the underlying cause")
	assert.Equal(t, "petalnet: open missing.jpg: file does not exist", err.Error())
}

func TestIOError_PathNotRepeated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint_final.ckpt")
	_, openErr := os.Open(path)
	require.Error(t, openErr)

	err := NewIOError("open", path, openErr)
	assert.True(t, strings.HasPrefix(err.Error(), "petalnet: open "+path+": "))
	assert.Equal(t, 1, strings.Count(err.Error(), path))
	assert.True(t, Is(err, fs.ErrNotExist))

	other := NewIOError("read", "cat_to_name.json", &fs.PathError{Op: "open", Path: "elsewhere.json", Err: fs.ErrPermission})
	assert.Contains(t, other.Error(), "elsewhere.json")
}

func TestLookupError(t *testing.T) {
	err := NewLookupError("category_names", "42")
	assert.Equal(t, `petalnet: no entry for "42" in category_names`, err.Error())
}

func TestNumericalInstabilityError(t *testing.T) {
	err := NewNumericalInstabilityError("nll_loss", []float64{1, 2, 3, 4, 5, 6, 7}, 12)

	msg := err.Error()
	assert.Contains(t, msg, "nll_loss")
	assert.Contains(t, msg, "iteration 12")
	assert.Contains(t, msg, "...")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("top_k", "must be positive", 0), ExitConfig},
		{"io", NewIOError("read", "x", nil), ExitIO},
		{"schema", NewSchemaError("checkpoint", "corrupt"), ExitSchema},
		{"shape", NewShapeMismatchError("fc2.bias", []int{2}, []int{3}), ExitSchema},
		{"lookup", NewLookupError("class_to_index", "7"), ExitLookup},
		{"wrapped config", Wrap(NewConfigError("arch", "unknown", "x"), "loading config"), ExitConfig},
		{"plain", New("boom"), ExitUnexpected},
		{"numerical", NewNumericalInstabilityError("adam_step", []float64{0}, 1), ExitUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWarn(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) {
		got = append(got, w)
	})
	defer SetWarningHandler(func(w error) {})

	Warn(NewDatasetWarning("train", "daisy", "no images"))

	require.Len(t, got, 1)
	var dw *DatasetWarning
	require.True(t, As(got[0], &dw))
	assert.Equal(t, `dataset train: class "daisy": no images`, dw.Error())
}

func TestWarn_ZerologFuncTakesPrecedence(t *testing.T) {
	var handled, logged int
	SetWarningHandler(func(w error) { handled++ })
	SetZerologWarnFunc(func(w error) { logged++ })
	defer SetZerologWarnFunc(nil)

	Warn(NewDatasetWarning("valid", "", "split is empty"))

	assert.Equal(t, 0, handled)
	assert.Equal(t, 1, logged)
}

func TestCheckValues(t *testing.T) {
	assert.NoError(t, CheckValues("forward", []float64{0, 1, -2}, 0))
	assert.NoError(t, CheckScalar("loss", 0.5, 3))

	err := CheckScalar("loss", divZero(), 3)
	var numErr *NumericalInstabilityError
	require.True(t, As(err, &numErr))
	assert.Equal(t, 3, numErr.Iteration)
}

func divZero() float64 {
	zero := 0.0
	return 1 / zero
}

func TestClipGradient(t *testing.T) {
	g := []float64{3, 4}
	ClipGradient(g, 1)
	assert.InDelta(t, 0.6, g[0], 1e-12)
	assert.InDelta(t, 0.8, g[1], 1e-12)

	g = []float64{0.3, 0.4}
	ClipGradient(g, 1)
	assert.Equal(t, []float64{0.3, 0.4}, g)
}
