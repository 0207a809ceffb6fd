package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/YuminosukeSato/petalnet/checkpoint"
	"github.com/YuminosukeSato/petalnet/classifier"
	"github.com/YuminosukeSato/petalnet/config"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
	"github.com/YuminosukeSato/petalnet/prediction"
	"github.com/YuminosukeSato/petalnet/preprocessing"
)

// PredictResult describes one decoded image.
type PredictResult struct {
	Predictions []prediction.Prediction
	// PlotPath is empty when plotting was disabled.
	PlotPath string
}

// Predict restores the checkpoint, classifies cfg.ImagePath, prints the top-k
// lines to out and writes the prediction plot unless cfg.NoPlot is set.
func Predict(ctx context.Context, cfg *config.PredictConfig, deps Deps, out io.Writer) (*PredictResult, error) {
	deps = deps.withDefaults()
	logger := deps.Logger.With(log.OperationKey, log.OperationPredict, log.PathKey, cfg.ImagePath)

	store, err := deps.OpenStorage(ctx, cfg.CheckpointRoot)
	if err != nil {
		return nil, err
	}
	ck, err := checkpoint.Load(ctx, store, cfg.Checkpoint)
	if err != nil {
		return nil, err
	}
	if cfg.TopK > ck.OutputSize {
		return nil, errors.NewConfigError("top_k", fmt.Sprintf("must be in [1, %d]", ck.OutputSize), cfg.TopK)
	}
	categories, err := prediction.LoadCategoryNames(cfg.CategoryNames)
	if err != nil {
		return nil, err
	}

	img, err := preprocessing.LoadImage(cfg.ImagePath)
	if err != nil {
		return nil, err
	}
	pipe := preprocessing.NewPipeline(false)
	x, err := pipe.Apply(img, nil)
	if err != nil {
		return nil, err
	}

	opts := cfg.BackboneOptions()
	bb, err := deps.Backbones(ck.Architecture, opts)
	if err != nil {
		return nil, err
	}
	m, err := classifier.FromCheckpoint(ck, bb)
	if err != nil {
		bb.Close()
		return nil, err
	}
	defer m.Close()

	dec := prediction.NewDecoder(ck.ClassToIndex, categories, ck.OutputSize)
	preds, err := dec.Predict(x, m, cfg.TopK)
	if err != nil {
		return nil, err
	}
	deps.Metrics.RecordPrediction(preds[0].Probability)
	logger.Info("Prediction decoded",
		log.ArchKey, ck.Architecture.String(),
		log.DeviceKey, opts.Device(),
		log.TopKKey, cfg.TopK,
		log.ClassKey, preds[0].Name,
		log.ConfidenceKey, preds[0].Probability,
	)

	if _, err := io.WriteString(out, prediction.Format(preds)); err != nil {
		return nil, errors.NewIOError("write", "stdout", err)
	}

	res := &PredictResult{Predictions: preds}
	if cfg.NoPlot {
		return res, nil
	}
	rendered, err := pipe.ToImage(x)
	if err != nil {
		return nil, err
	}
	res.PlotPath = cfg.PlotPath
	if res.PlotPath == "" {
		res.PlotPath = prediction.DefaultPlotPath(cfg.ImagePath)
	}
	if err := prediction.PlotPrediction(rendered, preds, res.PlotPath); err != nil {
		return nil, err
	}
	logger.Debug("Prediction plot written", "plot", res.PlotPath)
	return res, nil
}
