package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Split label values.
const (
	SplitTrain = "train"
	SplitValid = "valid"
	SplitTest  = "test"
)

// Manager owns the prometheus metrics of one training or prediction run.
// A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         *prometheus.Registry

	epochsCompleted  prometheus.Counter
	batchesProcessed *prometheus.CounterVec
	samplesProcessed *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	epochDuration    prometheus.Histogram
	loss             *prometheus.GaugeVec
	accuracy         *prometheus.GaugeVec
	topKAccuracy     *prometheus.GaugeVec
	learningRate     prometheus.Gauge
	predictions      prometheus.Counter
	topConfidence    prometheus.Gauge
	errorsByType     *prometheus.CounterVec
}

// NewManager creates a Manager on a fresh registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "petalnet",
		subsystem:        "classifier",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.epochsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "epochs_completed_total",
		Help: "Number of completed training epochs",
	})
	m.batchesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "batches_processed_total",
		Help: "Number of mini-batches processed per split",
	}, []string{"split"})
	m.samplesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "samples_processed_total",
		Help: "Number of images processed per split",
	}, []string{"split"})
	m.batchDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "batch_duration_seconds",
		Help:    "Wall time per mini-batch including decoding and the forward pass",
		Buckets: m.histogramBuckets,
	}, []string{"split"})
	m.epochDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "epoch_duration_seconds",
		Help:    "Wall time per training epoch including validation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
	m.loss = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "loss",
		Help: "Mean negative log-likelihood of the last evaluated epoch",
	}, []string{"split"})
	m.accuracy = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "accuracy",
		Help: "Top-1 accuracy of the last evaluated epoch",
	}, []string{"split"})
	m.topKAccuracy = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "top_k_accuracy",
		Help: "Top-k accuracy of the last evaluated epoch",
	}, []string{"split", "k"})
	m.learningRate = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "learning_rate",
		Help: "Optimizer learning rate",
	})
	m.predictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "predictions_total",
		Help: "Number of decoded predictions",
	})
	m.topConfidence = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "top_confidence",
		Help: "Probability of the best class of the last prediction",
	})
	m.errorsByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_total",
		Help: "Errors that aborted a run, by exit code class",
	}, []string{"type"})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordBatch records one processed mini-batch.
func (m *Manager) RecordBatch(split string, samples int, d time.Duration) {
	if m == nil {
		return
	}
	m.batchesProcessed.WithLabelValues(split).Inc()
	m.samplesProcessed.WithLabelValues(split).Add(float64(samples))
	m.batchDuration.WithLabelValues(split).Observe(d.Seconds())
}

// RecordEpoch records the end of a training epoch.
func (m *Manager) RecordEpoch(d time.Duration) {
	if m == nil {
		return
	}
	m.epochsCompleted.Inc()
	m.epochDuration.Observe(d.Seconds())
}

// SetEvaluation records loss and accuracy for a split.
func (m *Manager) SetEvaluation(split string, loss, accuracy float64) {
	if m == nil {
		return
	}
	m.loss.WithLabelValues(split).Set(loss)
	m.accuracy.WithLabelValues(split).Set(accuracy)
}

// SetTopKAccuracy records top-k accuracy for a split.
func (m *Manager) SetTopKAccuracy(split string, k int, accuracy float64) {
	if m == nil {
		return
	}
	m.topKAccuracy.WithLabelValues(split, strconv.Itoa(k)).Set(accuracy)
}

// SetLearningRate records the optimizer learning rate.
func (m *Manager) SetLearningRate(lr float64) {
	if m == nil {
		return
	}
	m.learningRate.Set(lr)
}

// RecordPrediction records a decoded prediction and its best probability.
func (m *Manager) RecordPrediction(topProbability float64) {
	if m == nil {
		return
	}
	m.predictions.Inc()
	m.topConfidence.Set(topProbability)
}

// RecordError counts err under its exit-code class.
func (m *Manager) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	m.errorsByType.WithLabelValues(ErrorClass(err)).Inc()
}

// ErrorClass names the error family used by the errors_total label.
func ErrorClass(err error) string {
	switch errors.ExitCode(err) {
	case errors.ExitOK:
		return "none"
	case errors.ExitConfig:
		return "config"
	case errors.ExitIO:
		return "io"
	case errors.ExitSchema:
		return "schema"
	case errors.ExitLookup:
		return "lookup"
	default:
		return "unexpected"
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Manager) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.NewIOError("write metrics", path, err)
	}
	return nil
}
