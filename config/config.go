// Package config defines the train and predict configurations and loads them
// from defaults, an optional YAML file, PETALNET_* environment variables and
// command-line overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/checkpoint"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

// EnvPrefix prefixes every environment variable read by Load*.
const EnvPrefix = "PETALNET_"

// EnvConfigFile names the YAML file used when no --config is given.
const EnvConfigFile = EnvPrefix + "CONFIG"

// DefaultHidden is used when no hidden sizes are configured.
var DefaultHidden = []int{1024, 512}

// Runtime holds settings shared by both commands.
type Runtime struct {
	// GPU appends the CUDA execution provider to the backbone session.
	GPU bool `koanf:"gpu"`
	// BackboneDir contains <arch>.onnx files.
	BackboneDir string `koanf:"backbone_dir"`
	// ONNXLib is the onnxruntime shared library; empty uses the platform default.
	ONNXLib string `koanf:"onnx_lib"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// TrainConfig configures one training run.
type TrainConfig struct {
	Arch      string  `koanf:"arch"`
	Epochs    int     `koanf:"epochs"`
	DataDir   string  `koanf:"data_dir"`
	Hidden    []int   `koanf:"hidden"`
	SaveDir   string  `koanf:"save_dir"`
	LearnRate float64 `koanf:"learn_rate"`
	BatchSize int     `koanf:"batch_size"`
	Dropout   float64 `koanf:"dropout"`
	Seed      uint64  `koanf:"seed"`
	// MetricsFile is a prometheus textfile written at the end of the run. Empty disables it.
	MetricsFile string `koanf:"metrics_file"`

	Runtime `koanf:",squash"`
}

// PredictConfig configures one prediction.
type PredictConfig struct {
	ImagePath      string `koanf:"path_image"`
	CheckpointRoot string `koanf:"checkpoint_root"`
	Checkpoint     string `koanf:"checkpoint"`
	TopK           int    `koanf:"top_k"`
	CategoryNames  string `koanf:"category_names"`
	NoPlot         bool   `koanf:"no_plot"`
	// PlotPath overrides <image>_prediction.png.
	PlotPath string `koanf:"plot_path"`

	Runtime `koanf:",squash"`
}

func defaultRuntime() Runtime {
	return Runtime{
		BackboneDir: "models",
		LogLevel:    "info",
		LogFormat:   log.FormatConsole,
	}
}

// NewTrain returns the training defaults. Hidden stays empty so that a
// configured list replaces DefaultHidden instead of merging with it.
func NewTrain() *TrainConfig {
	return &TrainConfig{
		Arch:      backbone.ResNet50.String(),
		Epochs:    2,
		DataDir:   "flowers",
		SaveDir:   ".",
		LearnRate: 0.003,
		BatchSize: 64,
		Dropout:   0.2,
		Seed:      1,
		Runtime:   defaultRuntime(),
	}
}

// NewPredict returns the prediction defaults.
func NewPredict() *PredictConfig {
	return &PredictConfig{
		CheckpointRoot: "./",
		Checkpoint:     checkpoint.DefaultFileName,
		TopK:           5,
		CategoryNames:  "cat_to_name.json",
		Runtime:        defaultRuntime(),
	}
}

// LoadTrain layers path (or $PETALNET_CONFIG), the environment and overrides
// on top of NewTrain and validates the result.
func LoadTrain(path string, overrides map[string]any) (*TrainConfig, error) {
	cfg := NewTrain()
	if err := load(cfg, path, overrides); err != nil {
		return nil, err
	}
	if len(cfg.Hidden) == 0 {
		cfg.Hidden = slices.Clone(DefaultHidden)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPredict is LoadTrain for PredictConfig.
func LoadPredict(path string, overrides map[string]any) (*PredictConfig, error) {
	cfg := NewPredict()
	if err := load(cfg, path, overrides); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(dst any, path string, overrides map[string]any) error {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return errors.NewIOError("read config", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return errors.NewConfigError("config", "cannot parse YAML: "+err.Error(), path)
		}
	}

	// PETALNET_LEARN_RATE -> learn_rate, PETALNET_HIDDEN=1024,512 -> [1024 512]
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if strings.Contains(value, ",") {
			return key, strings.Split(value, ",")
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return errors.Wrap(err, "loading environment")
	}

	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return errors.Wrapf(err, "setting %s", key)
		}
	}

	if err := k.UnmarshalWithConf("", dst, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return errors.NewConfigError("config", err.Error(), nil)
	}
	return nil
}

// Validate checks every field and returns the first ConfigError.
func (c *TrainConfig) Validate() error {
	if _, err := backbone.ParseArchitecture(c.Arch); err != nil {
		return err
	}
	if c.Epochs <= 0 {
		return errors.NewConfigError("epochs", "must be positive", c.Epochs)
	}
	if c.DataDir == "" {
		return errors.NewConfigError("data_dir", "must not be empty", c.DataDir)
	}
	if len(c.Hidden) == 0 {
		return errors.NewConfigError("hidden", "at least one hidden layer is required", c.Hidden)
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return errors.NewConfigError("hidden", "sizes must be positive", c.Hidden)
		}
	}
	if c.SaveDir == "" {
		return errors.NewConfigError("save_dir", "must not be empty", c.SaveDir)
	}
	if !(c.LearnRate > 0) {
		return errors.NewConfigError("learn_rate", "must be positive", c.LearnRate)
	}
	if c.BatchSize <= 0 {
		return errors.NewConfigError("batch_size", "must be positive", c.BatchSize)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.NewConfigError("dropout", "must be in [0, 1)", c.Dropout)
	}
	return c.Runtime.validate()
}

// Architecture returns the parsed Arch. Call Validate first.
func (c *TrainConfig) Architecture() backbone.Architecture {
	a, _ := backbone.ParseArchitecture(c.Arch)
	return a
}

// Validate checks every field and returns the first ConfigError. The upper
// bound of TopK depends on the checkpoint and is checked by the decoder.
func (c *PredictConfig) Validate() error {
	if c.ImagePath == "" {
		return errors.NewConfigError("path_image", "an image path is required", c.ImagePath)
	}
	if c.Checkpoint == "" {
		return errors.NewConfigError("checkpoint", "must not be empty", c.Checkpoint)
	}
	if c.TopK < 1 {
		return errors.NewConfigError("top_k", "must be at least 1", c.TopK)
	}
	if c.CategoryNames == "" {
		return errors.NewConfigError("category_names", "must not be empty", c.CategoryNames)
	}
	return c.Runtime.validate()
}

func (r *Runtime) validate() error {
	if _, err := log.ParseLevel(r.LogLevel); err != nil {
		return err
	}
	switch r.LogFormat {
	case log.FormatConsole, log.FormatJSON, log.FormatCloud:
	default:
		return errors.NewConfigError("log_format",
			fmt.Sprintf("must be one of %s, %s, %s", log.FormatConsole, log.FormatJSON, log.FormatCloud), r.LogFormat)
	}
	if r.BackboneDir == "" {
		return errors.NewConfigError("backbone_dir", "must not be empty", r.BackboneDir)
	}
	return nil
}

// BackboneOptions converts the runtime settings for backbone.Factory.
func (r *Runtime) BackboneOptions() backbone.Options {
	return backbone.Options{ModelDir: r.BackboneDir, SharedLibraryPath: r.ONNXLib, UseGPU: r.GPU}
}
