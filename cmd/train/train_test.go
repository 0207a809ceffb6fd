package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown architecture", args: []string{"train", "--arch", "densenet"}},
		{name: "zero epochs", args: []string{"train", "--epochs", "0"}},
		{name: "negative learning rate", args: []string{"train", "--learn_rate", "-1"}},
		{name: "negative seed", args: []string{"train", "--seed", "-3"}},
		{name: "bad log format", args: []string{"train", "--log_format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			assert.Equal(t, errors.ExitConfig, run(tt.args, &stderr))
		})
	}
}

func TestRun_MissingDataDir(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"train", "--data_dir", filepath.Join(t.TempDir(), "none"), "--log_format", "json"}, &stderr)
	assert.Equal(t, errors.ExitIO, code)
	assert.Contains(t, stderr.String(), "Training failed")
}
