// Package log defines standard attribute keys for petalnet log records.
//
// Using the same keys in the train and predict pipelines keeps the JSON output
// queryable with a single set of filters. Keys follow a hierarchical naming
// convention (e.g. "model.arch", "data.samples").

package log

// Model and run context
const (
	// ArchKey identifies the backbone architecture ("resnet50", "vgg16").
	ArchKey = "model.arch"

	// RunIDKey is the uuid assigned to a training run.
	RunIDKey = "run.id"

	// OperationKey specifies the operation being performed.
	OperationKey = "op"

	// ComponentKey identifies which package is logging.
	// Examples: "dataset", "training", "prediction"
	ComponentKey = "component"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "phase"

	// DeviceKey records the execution provider chosen for the backbone.
	DeviceKey = "model.device"

	// HiddenSizesKey records the hidden layer widths of the head.
	HiddenSizesKey = "model.hidden_sizes"
)

// Data shape and input context
const (
	// SamplesKey indicates the number of samples in a split or batch.
	SamplesKey = "data.samples"

	// ClassesKey indicates the number of classes discovered in a dataset.
	ClassesKey = "data.classes"

	// SplitKey names the dataset split ("train", "valid", "test").
	SplitKey = "data.split"

	// BatchSizeKey indicates the mini-batch size.
	BatchSizeKey = "data.batch_size"

	// BatchKey is the index of the current batch within an epoch.
	BatchKey = "data.batch"

	// PathKey records a file or object path.
	PathKey = "path"
)

// Training metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// TopKAccuracyKey records top-k accuracy in [0, 1].
	TopKAccuracyKey = "metrics.top_k_accuracy"

	// LossKey records the mean negative log-likelihood.
	LossKey = "metrics.loss"

	// EpochKey records the current epoch number.
	EpochKey = "training.epoch"

	// EpochsKey records the total number of epochs.
	EpochsKey = "training.epochs"

	// LearningRateKey records the optimizer learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the seed used for shuffling and augmentation.
	RandomSeedKey = "config.random_seed"
)

// Prediction context
const (
	// TopKKey records the number of requested predictions.
	TopKKey = "preds.top_k"

	// ClassKey records a predicted class label.
	ClassKey = "preds.class"

	// ConfidenceKey records a predicted probability.
	ConfidenceKey = "preds.confidence"
)

// Error context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// ExitCodeKey records the process exit code chosen for an error.
	ExitCodeKey = "error.exit_code"
)

// Standard attribute values.
const (
	OperationTrain   = "train"
	OperationPredict = "predict"
	OperationSave    = "save"
	OperationLoad    = "load"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
