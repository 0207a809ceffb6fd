package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationTrain)
	testLogger.Warn("warning message", SplitKey, "valid")
	testLogger.Error("error message", fmt.Errorf("test error"), PathKey, "ckpt")

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, testLogger.ContainsMessage(msg), "message %q not found", msg)
	}

	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0)) // JSON unmarshaling converts numbers to float64
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "test error"))
	assert.True(t, testLogger.ContainsField(PathKey, "ckpt"))
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(ArchKey, "resnet50", RunIDKey, "run-1")
	contextLogger.Info("epoch finished", EpochKey, 1)

	assert.True(t, testLogger.ContainsField(ArchKey, "resnet50"))
	assert.True(t, testLogger.ContainsField(RunIDKey, "run-1"))
	assert.True(t, testLogger.ContainsField(EpochKey, 1.0))
}

func TestTestLogger_LevelFiltering(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelWarn)

	testLogger.Info("hidden")
	testLogger.Warn("shown")

	assert.False(t, testLogger.ContainsMessage("hidden"))
	assert.True(t, testLogger.ContainsMessage("shown"))
	assert.False(t, testLogger.Enabled(context.Background(), LevelInfo))
	assert.True(t, testLogger.Enabled(context.Background(), LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				var cfgErr *errors.ConfigError
				require.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZerologLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, false)

	logger.Debug("dropped")
	logger.With(ArchKey, "vgg16").Info("backbone opened", SamplesKey, 3, HiddenSizesKey, []int{1024, 512})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "backbone opened", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "vgg16", entry[ArchKey])
	assert.Equal(t, 3.0, entry[SamplesKey])
	assert.Equal(t, []interface{}{1024.0, 512.0}, entry[HiddenSizesKey])
}

func TestZerologLogger_ErrorWithStack(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug, false)

	err := errors.NewShapeMismatchError("fc1.weight", []int{4, 2}, []int{2, 4})
	logger.Error("checkpoint rejected", err, PathKey, "model.ckpt")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["error"], "fc1.weight")
	assert.Equal(t, "model.ckpt", entry[PathKey])

	detail, ok := entry["detail"].(map[string]interface{})
	require.True(t, ok, "structured error detail expected")
	assert.Equal(t, "ShapeMismatchError", detail["type"])
	assert.NotEmpty(t, entry[StacktraceAttrKey])
}

func TestSetupCloudLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(SetupCloudLogger(&buf, LevelInfo))

	logger.Error("load failed", errors.NewIOError("open", "x.ckpt", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["severity"])
	assert.Equal(t, "load failed", entry["message"])
	assert.Contains(t, entry, "logging.googleapis.com/sourceLocation")
	assert.Equal(t, "*errors.IOError", entry[ErrorTypeKey])
	assert.NotEmpty(t, entry[StacktraceAttrKey])
}

func TestSetup(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)
	defer errors.SetZerologWarnFunc(nil)

	var buf bytes.Buffer
	_, err := Setup("info", FormatJSON, &buf)
	require.NoError(t, err)

	errors.Warn(errors.NewDatasetWarning("train", "rose", "empty class folder"))
	assert.Contains(t, buf.String(), "empty class folder")
	assert.Contains(t, buf.String(), `"split":"train"`)

	_, err = Setup("info", "xml", &buf)
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestGetLoggerWithName(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	testLogger, _ := NewTestLogger(LevelDebug)
	SetLogger(testLogger)

	GetLoggerWithName("dataset").Info("scanned")
	assert.True(t, testLogger.ContainsField(ComponentKey, "dataset"))
}
