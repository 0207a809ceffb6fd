package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

func TestGiven(t *testing.T) {
	args := []string{"train", "--epochs", "3", "--learn_rate=0.1", "--gpu", "--", "--arch"}

	assert.True(t, Given(args, "epochs"))
	assert.True(t, Given(args, "learn_rate"))
	assert.True(t, Given(args, "gpu"))
	assert.False(t, Given(args, "arch"))
	assert.False(t, Given(args, "epoch"))
	assert.False(t, Given(args, "hidden"))
}

func TestFail(t *testing.T) {
	logger, buf := log.NewTestLogger(log.LevelInfo)

	code := Fail(logger, "Prediction failed", errors.NewLookupError("category_names", "7"))
	assert.Equal(t, errors.ExitLookup, code)
	assert.True(t, logger.ContainsMessage("Prediction failed"))
	assert.Contains(t, buf.String(), `"error.exit_code":5`)
}

func TestLoggerFallback(t *testing.T) {
	var buf bytes.Buffer
	l := Logger("loud", "xml", &buf)
	assert.NotNil(t, l)
	assert.Contains(t, buf.String(), "Falling back to the console logger")
}

func TestUsageError(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, errors.ExitConfig, UsageError(&buf, "usage: train"))
	assert.Equal(t, "usage: train", buf.String())
}
