// Command train fits a flower classifier head on a frozen pretrained backbone
// and writes checkpoint_final.ckpt to --save_dir.
package main

import (
	"io"
	"os"

	"github.com/akamensky/argparse"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/config"
	"github.com/YuminosukeSato/petalnet/internal/cli"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
	"github.com/YuminosukeSato/petalnet/pipeline"
)

func main() {
	os.Exit(run(os.Args, os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	parser := argparse.NewParser("train", "Train a flower image classifier on a frozen pretrained backbone")
	arch := parser.Selector("", "arch", []string{backbone.ResNet50.String(), backbone.VGG16.String()},
		&argparse.Options{Help: "Backbone architecture", Default: backbone.ResNet50.String()})
	epochs := parser.Int("", "epochs", &argparse.Options{Help: "Number of training epochs", Default: 2})
	dataDir := parser.String("", "data_dir", &argparse.Options{Help: "Directory with train/, valid/ and test/", Default: "flowers"})
	hidden := parser.IntList("", "hidden", &argparse.Options{Help: "Hidden layer width, repeat for more layers (default 1024 512)"})
	saveDir := parser.String("", "save_dir", &argparse.Options{Help: "Checkpoint directory or gs://bucket/prefix", Default: "."})
	gpu := parser.Flag("", "gpu", &argparse.Options{Help: "Run the backbone on the CUDA execution provider"})
	learnRate := parser.Float("", "learn_rate", &argparse.Options{Help: "Adam learning rate", Default: 0.003})
	batchSize := parser.Int("", "batch_size", &argparse.Options{Help: "Mini-batch size", Default: 64})
	dropout := parser.Float("", "dropout", &argparse.Options{Help: "Dropout after each hidden layer", Default: 0.2})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Seed for initialization, shuffling and augmentation", Default: 1})
	backboneDir := parser.String("", "backbone_dir", &argparse.Options{Help: "Directory containing <arch>.onnx", Default: "models"})
	onnxLib := parser.String("", "onnx_lib", &argparse.Options{Help: "Path to the onnxruntime shared library"})
	metricsFile := parser.String("", "metrics_file", &argparse.Options{Help: "Write prometheus metrics to this textfile"})
	configFile := parser.String("", "config", &argparse.Options{Help: "YAML config file (default $PETALNET_CONFIG)"})
	logLevel := parser.String("", "log_level", &argparse.Options{Help: "debug, info, warn or error", Default: "info"})
	logFormat := parser.String("", "log_format", &argparse.Options{Help: "console, json or cloud", Default: log.FormatConsole})

	if err := parser.Parse(args); err != nil {
		return cli.UsageError(stderr, parser.Usage(err))
	}

	overrides := map[string]any{}
	set := func(name string, v any) {
		if cli.Given(args, name) {
			overrides[name] = v
		}
	}
	set("arch", *arch)
	set("epochs", *epochs)
	set("data_dir", *dataDir)
	set("hidden", *hidden)
	set("save_dir", *saveDir)
	set("gpu", *gpu)
	set("learn_rate", *learnRate)
	set("batch_size", *batchSize)
	set("dropout", *dropout)
	set("backbone_dir", *backboneDir)
	set("onnx_lib", *onnxLib)
	set("metrics_file", *metricsFile)
	set("log_level", *logLevel)
	set("log_format", *logFormat)
	if cli.Given(args, "seed") {
		if *seed < 0 {
			return cli.Fail(cli.Logger("info", log.FormatConsole, stderr), "Invalid arguments",
				errors.NewConfigError("seed", "must not be negative", *seed))
		}
		overrides["seed"] = uint64(*seed)
	}

	cfg, err := config.LoadTrain(*configFile, overrides)
	if err != nil {
		return cli.Fail(cli.Logger("info", log.FormatConsole, stderr), "Invalid configuration", err)
	}
	logger := cli.Logger(cfg.LogLevel, cfg.LogFormat, stderr).With(log.OperationKey, log.OperationTrain)

	ctx, stop := cli.SignalContext()
	defer stop()

	res, err := pipeline.Train(ctx, cfg, pipeline.Deps{Logger: logger})
	if err != nil {
		return cli.Fail(logger, "Training failed", err)
	}
	logger.Info("Checkpoint written",
		log.RunIDKey, res.RunID,
		log.PathKey, res.Location,
		log.AccuracyKey, res.History.TestAccuracy,
	)
	return errors.ExitOK
}
