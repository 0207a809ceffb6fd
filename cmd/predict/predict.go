// Command predict classifies one flower image with a trained checkpoint and
// prints the top-k species with their probabilities.
package main

import (
	"io"
	"os"

	"github.com/akamensky/argparse"

	"github.com/YuminosukeSato/petalnet/checkpoint"
	"github.com/YuminosukeSato/petalnet/config"
	"github.com/YuminosukeSato/petalnet/internal/cli"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
	"github.com/YuminosukeSato/petalnet/pipeline"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	configFile, overrides, usage, err := parseArgs(args)
	if err != nil {
		return cli.UsageError(stderr, usage)
	}

	cfg, err := config.LoadPredict(configFile, overrides)
	if err != nil {
		return cli.Fail(cli.Logger("info", log.FormatConsole, stderr), "Invalid configuration", err)
	}
	logger := cli.Logger(cfg.LogLevel, cfg.LogFormat, stderr)

	ctx, stop := cli.SignalContext()
	defer stop()

	if _, err := pipeline.Predict(ctx, cfg, pipeline.Deps{Logger: logger}, stdout); err != nil {
		return cli.Fail(logger, "Prediction failed", err)
	}
	return errors.ExitOK
}

// parseArgs returns the config file and the settings given on the command line.
func parseArgs(args []string) (string, map[string]any, string, error) {
	parser := argparse.NewParser("predict", "Predict the species of a flower image")
	image := parser.StringPositional(&argparse.Options{Help: "Image to classify", Required: false})
	pathImage := parser.String("", "path_image", &argparse.Options{Help: "Image to classify, overrides the positional argument"})
	checkpointRoot := parser.String("", "checkpoint_root", &argparse.Options{Help: "Checkpoint directory or gs://bucket/prefix", Default: "./"})
	ckptName := parser.String("", "checkpoint", &argparse.Options{Help: "Checkpoint file name", Default: checkpoint.DefaultFileName})
	topK := parser.Int("", "top_k", &argparse.Options{Help: "Number of classes to print", Default: 5})
	categoryNames := parser.String("", "category_names", &argparse.Options{Help: "JSON map from class label to species name", Default: "cat_to_name.json"})
	gpu := parser.Flag("", "gpu", &argparse.Options{Help: "Run the backbone on the CUDA execution provider"})
	noPlot := parser.Flag("", "no_plot", &argparse.Options{Help: "Do not write <image>_prediction.png"})
	plotPath := parser.String("", "plot_path", &argparse.Options{Help: "Where to write the prediction plot (default <image>_prediction.png)"})
	backboneDir := parser.String("", "backbone_dir", &argparse.Options{Help: "Directory containing <arch>.onnx", Default: "models"})
	onnxLib := parser.String("", "onnx_lib", &argparse.Options{Help: "Path to the onnxruntime shared library"})
	configFile := parser.String("", "config", &argparse.Options{Help: "YAML config file (default $PETALNET_CONFIG)"})
	logLevel := parser.String("", "log_level", &argparse.Options{Help: "debug, info, warn or error", Default: "info"})
	logFormat := parser.String("", "log_format", &argparse.Options{Help: "console, json or cloud", Default: log.FormatConsole})

	if err := parser.Parse(args); err != nil {
		return "", nil, parser.Usage(err), err
	}

	overrides := map[string]any{}
	set := func(name string, v any) {
		if cli.Given(args, name) {
			overrides[name] = v
		}
	}
	if *image != "" {
		overrides["path_image"] = *image
	}
	set("path_image", *pathImage)
	set("checkpoint_root", *checkpointRoot)
	set("checkpoint", *ckptName)
	set("top_k", *topK)
	set("category_names", *categoryNames)
	set("gpu", *gpu)
	set("no_plot", *noPlot)
	set("plot_path", *plotPath)
	set("backbone_dir", *backboneDir)
	set("onnx_lib", *onnxLib)
	set("log_level", *logLevel)
	set("log_format", *logFormat)
	return *configFile, overrides, "", nil
}
