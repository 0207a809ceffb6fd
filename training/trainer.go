// Package training fits the classifier head on batches of backbone features.
package training

import (
	"context"
	"time"

	"github.com/YuminosukeSato/petalnet/classifier"
	"github.com/YuminosukeSato/petalnet/dataset"
	"github.com/YuminosukeSato/petalnet/metrics"
	"github.com/YuminosukeSato/petalnet/neural"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

// Defaults used by the train command.
const (
	DefaultEpochs       = 2
	DefaultLearningRate = 0.003
)

// EpochResult summarizes one epoch.
type EpochResult struct {
	Epoch         int
	TrainLoss     float64
	TrainAccuracy float64
	ValidLoss     float64
	ValidAccuracy float64
	Duration      time.Duration
}

// History is the outcome of Fit.
type History struct {
	Epochs           []EpochResult
	TestLoss         float64
	TestAccuracy     float64
	TestTopKAccuracy float64
	Steps            int
}

// Final returns the last epoch's result.
func (h *History) Final() EpochResult {
	if len(h.Epochs) == 0 {
		return EpochResult{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// CallbackEnv is passed to callbacks after every epoch.
type CallbackEnv struct {
	Model  *classifier.Model
	Result EpochResult
}

// Callback is called after every epoch. A returned error aborts training.
type Callback func(env *CallbackEnv) error

// Loaders groups the three splits.
type Loaders struct {
	Train *dataset.Loader
	Valid *dataset.Loader
	Test  *dataset.Loader
}

// Trainer runs synchronous epochs of Adam on the head's NLL loss.
type Trainer struct {
	model     *classifier.Model
	epochs    int
	lr        float64
	clipNorm  float64
	metrics   *metrics.Manager
	logger    log.Logger
	callbacks []Callback
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithMetrics records progress on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(t *Trainer) { t.metrics = m }
}

// WithLogger replaces the package logger.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithCallbacks appends epoch callbacks.
func WithCallbacks(cbs ...Callback) Option {
	return func(t *Trainer) { t.callbacks = append(t.callbacks, cbs...) }
}

// WithGradientClip bounds the L2 norm of each parameter's gradient. Zero disables it.
func WithGradientClip(maxNorm float64) Option {
	return func(t *Trainer) { t.clipNorm = maxNorm }
}

// NewTrainer validates the schedule.
func NewTrainer(m *classifier.Model, epochs int, lr float64, opts ...Option) (*Trainer, error) {
	if epochs <= 0 {
		return nil, errors.NewConfigError("epochs", "must be positive", epochs)
	}
	t := &Trainer{
		model:  m,
		epochs: epochs,
		lr:     lr,
		logger: log.GetLoggerWithName("training"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Fit trains the head and evaluates it on valid after every epoch and on test
// at the end. ctx is checked between batches. On success the head is marked
// trained and left in eval mode.
func (t *Trainer) Fit(ctx context.Context, loaders Loaders) (*History, error) {
	opt, err := neural.NewAdam(t.model.Parameters(), t.lr)
	if err != nil {
		return nil, err
	}
	t.metrics.SetLearningRate(t.lr)

	logger := t.logger.With(log.OperationKey, log.OperationTrain)
	logger.Info("Training started",
		log.EpochsKey, t.epochs,
		log.LearningRateKey, t.lr,
		log.SamplesKey, loaders.Train.NumSamples(),
	)

	h := &History{}
	for epoch := 1; epoch <= t.epochs; epoch++ {
		start := time.Now()
		train, err := t.trainEpoch(ctx, epoch, loaders.Train, opt)
		if err != nil {
			return nil, err
		}
		valid, err := t.Evaluate(ctx, loaders.Valid, metrics.SplitValid)
		if err != nil {
			return nil, err
		}

		res := EpochResult{
			Epoch:         epoch,
			TrainLoss:     train.Loss(),
			TrainAccuracy: train.Accuracy(),
			ValidLoss:     valid.Loss(),
			ValidAccuracy: valid.Accuracy(),
			Duration:      time.Since(start),
		}
		h.Epochs = append(h.Epochs, res)
		t.metrics.SetEvaluation(metrics.SplitTrain, res.TrainLoss, res.TrainAccuracy)
		t.metrics.SetEvaluation(metrics.SplitValid, res.ValidLoss, res.ValidAccuracy)
		t.metrics.RecordEpoch(res.Duration)

		logger.Info("Epoch finished",
			log.EpochKey, epoch,
			log.EpochsKey, t.epochs,
			log.LossKey, res.TrainLoss,
			"metrics.valid_loss", res.ValidLoss,
			log.AccuracyKey, res.ValidAccuracy,
			log.DurationMsKey, res.Duration.Milliseconds(),
		)

		for _, cb := range t.callbacks {
			if err := cb(&CallbackEnv{Model: t.model, Result: res}); err != nil {
				return nil, errors.Wrapf(err, "callback after epoch %d", epoch)
			}
		}
	}
	h.Steps = opt.Steps()

	test, err := t.Evaluate(ctx, loaders.Test, metrics.SplitTest)
	if err != nil {
		return nil, err
	}
	h.TestLoss, h.TestAccuracy, h.TestTopKAccuracy = test.Loss(), test.Accuracy(), test.TopKAccuracy()
	t.metrics.SetEvaluation(metrics.SplitTest, h.TestLoss, h.TestAccuracy)
	t.metrics.SetTopKAccuracy(metrics.SplitTest, test.K, h.TestTopKAccuracy)
	logger.Info("Training completed",
		log.SplitKey, metrics.SplitTest,
		log.LossKey, h.TestLoss,
		log.AccuracyKey, h.TestAccuracy,
		log.TopKAccuracyKey, h.TestTopKAccuracy,
	)

	t.model.Head.State().SetTrained(t.epochs, loaders.Train.NumSamples())
	t.model.Eval()
	return h, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int, loader *dataset.Loader, opt *neural.Adam) (*metrics.Tally, error) {
	tally := &metrics.Tally{}
	batch := 0
	err := loader.Each(ctx, epoch, func(b *dataset.Batch) error {
		start := time.Now()
		features, err := t.model.Extract(b.Images)
		if err != nil {
			return err
		}

		t.model.Train()
		logProbs, err := t.model.ForwardFeatures(features)
		if err != nil {
			return err
		}
		loss, grad, err := neural.NLLLoss(logProbs, b.Labels)
		if err != nil {
			return err
		}
		if err := errors.CheckScalar("NLLLoss", loss, opt.Steps()); err != nil {
			return err
		}

		opt.ZeroGrad()
		if err := t.model.Head.Backward(grad); err != nil {
			return err
		}
		for _, p := range t.model.Head.Parameters() {
			if err := errors.CheckValues(p.Name+".grad", p.Grad, opt.Steps()); err != nil {
				return err
			}
			errors.ClipGradient(p.Grad, t.clipNorm)
		}
		opt.Step()

		if err := tally.Add(logProbs, b.Labels, loss); err != nil {
			return err
		}
		t.metrics.RecordBatch(metrics.SplitTrain, b.Size(), time.Since(start))
		t.logger.Debug("Batch finished",
			log.EpochKey, epoch,
			log.BatchKey, batch,
			log.LossKey, loss,
		)
		batch++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tally, nil
}

// Evaluate computes mean loss, accuracy and top-k accuracy over loader in eval
// mode. k is metrics.DefaultTopK, capped at the number of classes.
func (t *Trainer) Evaluate(ctx context.Context, loader *dataset.Loader, split string) (*metrics.Tally, error) {
	t.model.Eval()
	tally := &metrics.Tally{K: min(metrics.DefaultTopK, t.model.Head.OutputSize())}
	err := loader.Each(ctx, 0, func(b *dataset.Batch) error {
		start := time.Now()
		logProbs, err := t.model.Forward(b.Images)
		if err != nil {
			return err
		}
		loss, err := metrics.MeanNLL(logProbs, b.Labels)
		if err != nil {
			return err
		}
		if err := tally.Add(logProbs, b.Labels, loss); err != nil {
			return err
		}
		t.metrics.RecordBatch(split, b.Size(), time.Since(start))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tally, nil
}
