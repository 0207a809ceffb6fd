package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/petalnet/checkpoint"
	"github.com/YuminosukeSato/petalnet/classifier"
	"github.com/YuminosukeSato/petalnet/config"
	"github.com/YuminosukeSato/petalnet/dataset"
	"github.com/YuminosukeSato/petalnet/metrics"
	"github.com/YuminosukeSato/petalnet/neural"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
	"github.com/YuminosukeSato/petalnet/preprocessing"
	"github.com/YuminosukeSato/petalnet/training"
)

// TrainResult describes a finished training run.
type TrainResult struct {
	RunID      string
	History    *training.History
	Checkpoint *checkpoint.Checkpoint
	// Location is where the checkpoint was written.
	Location string
}

// Train indexes the data directory, trains a head on the configured backbone
// and writes the checkpoint to cfg.SaveDir.
func Train(ctx context.Context, cfg *config.TrainConfig, deps Deps) (res *TrainResult, err error) {
	deps = deps.withDefaults()
	runID := deps.NewRunID()
	arch := cfg.Architecture()
	logger := deps.Logger.With(log.RunIDKey, runID, log.ArchKey, arch.String())

	mgr := deps.Metrics
	if mgr == nil && cfg.MetricsFile != "" {
		mgr = metrics.NewManager(metrics.WithConstLabels(map[string]string{"run_id": runID}))
	}
	if cfg.MetricsFile != "" {
		defer func() {
			mgr.RecordError(err)
			if werr := mgr.WriteTextfile(cfg.MetricsFile); werr != nil && err == nil {
				err = werr
			}
		}()
	}

	// The store is opened before any epoch runs so a bad save_dir fails fast.
	store, err := deps.OpenStorage(ctx, cfg.SaveDir)
	if err != nil {
		return nil, err
	}

	splits, err := dataset.OpenSplits(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset indexed",
		log.PathKey, cfg.DataDir,
		log.ClassesKey, splits.NumClasses(),
		log.SamplesKey, splits.Train.Len(),
	)

	loaders, err := newLoaders(splits, cfg)
	if err != nil {
		return nil, err
	}

	opts := cfg.BackboneOptions()
	bb, err := deps.Backbones(arch, opts)
	if err != nil {
		return nil, err
	}
	m, err := classifier.Assemble(bb, classifier.HeadSpec{
		InputSize:   arch.FeatureSize(),
		HiddenSizes: cfg.Hidden,
		OutputSize:  splits.NumClasses(),
	}, neural.WithDropout(cfg.Dropout), neural.WithSeed(cfg.Seed))
	if err != nil {
		bb.Close()
		return nil, err
	}
	defer m.Close()
	logger.Info("Model assembled",
		log.DeviceKey, opts.Device(),
		log.HiddenSizesKey, cfg.Hidden,
		log.RandomSeedKey, cfg.Seed,
	)

	trainer, err := training.NewTrainer(m, cfg.Epochs, cfg.LearnRate,
		training.WithLogger(logger),
		training.WithMetrics(mgr),
	)
	if err != nil {
		return nil, err
	}
	hist, err := trainer.Fit(ctx, loaders)
	if err != nil {
		return nil, err
	}

	final := hist.Final()
	ck, err := m.Checkpoint(splits.ClassToIndex(), map[string]string{
		checkpoint.MetaRunID:     runID,
		checkpoint.MetaCreatedAt: deps.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	ck.SetMeta(checkpoint.MetaEpochs, cfg.Epochs)
	ck.SetMeta(checkpoint.MetaLearningRate, cfg.LearnRate)
	ck.SetMeta(checkpoint.MetaValidAccuracy, final.ValidAccuracy)
	ck.SetMeta(checkpoint.MetaTestAccuracy, hist.TestAccuracy)
	ck.SetMeta(checkpoint.MetaTestTopKAccuracy, hist.TestTopKAccuracy)

	if err := checkpoint.Save(ctx, store, checkpoint.DefaultFileName, ck); err != nil {
		return nil, errors.Wrap(err, "saving checkpoint")
	}

	return &TrainResult{
		RunID:      runID,
		History:    hist,
		Checkpoint: ck,
		Location:   store.Location(checkpoint.DefaultFileName),
	}, nil
}

func newLoaders(splits *dataset.Splits, cfg *config.TrainConfig) (training.Loaders, error) {
	var ld training.Loaders
	mk := func(f *dataset.Folder, train bool) (*dataset.Loader, error) {
		return dataset.NewLoader(f, preprocessing.NewPipeline(train),
			dataset.WithBatchSize(cfg.BatchSize),
			dataset.WithShuffle(train),
			dataset.WithSeed(cfg.Seed),
		)
	}
	var err error
	if ld.Train, err = mk(splits.Train, true); err != nil {
		return ld, err
	}
	if ld.Valid, err = mk(splits.Valid, false); err != nil {
		return ld, err
	}
	if ld.Test, err = mk(splits.Test, false); err != nil {
		return ld, err
	}
	return ld, nil
}
