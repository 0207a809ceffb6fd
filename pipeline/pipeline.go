// Package pipeline wires configuration, data, backbone, head and storage into
// the two end-to-end operations behind the train and predict commands.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/metrics"
	"github.com/YuminosukeSato/petalnet/pkg/log"
	"github.com/YuminosukeSato/petalnet/storage"
)

// Deps are the collaborators of Train and Predict. Zero fields get production defaults.
type Deps struct {
	// Backbones opens the feature extractor. Defaults to backbone.OpenONNX.
	Backbones backbone.Factory
	// OpenStorage opens the checkpoint store. Defaults to storage.Open.
	OpenStorage func(ctx context.Context, root string) (storage.Storage, error)
	Logger      log.Logger
	// Metrics receives run metrics. When nil, Train creates one if a metrics file is configured.
	Metrics  *metrics.Manager
	Now      func() time.Time
	NewRunID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Backbones == nil {
		d.Backbones = backbone.OpenONNX
	}
	if d.OpenStorage == nil {
		d.OpenStorage = storage.Open
	}
	if d.Logger == nil {
		d.Logger = log.GetLoggerWithName("pipeline")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	return d
}
