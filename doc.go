// Package petalnet trains and runs a flower image classifier: a small
// fully-connected head stacked on a frozen, pretrained convolutional backbone.
//
// The backbone (resnet50 or vgg16) is an ONNX export of a torchvision model
// executed through ONNX Runtime. Everything around it is implemented here:
// image preprocessing and augmentation, the head and its Adam optimizer, the
// training loop, the checkpoint format and the top-k prediction decoder.
//
// # Commands
//
// Train a head on a class-per-folder dataset with train/, valid/ and test/:
//
//	train --data_dir flowers --arch resnet50 --hidden 1024 --hidden 512 --epochs 2 --save_dir .
//
// Classify an image with the resulting checkpoint_final.ckpt:
//
//	predict flowers/test/1/image_06743.jpg --top_k 5 --category_names cat_to_name.json
//
// predict prints one line per class and writes <image>_prediction.png next to
// the image unless --no_plot is given.
//
// # Library use
//
//	bb, err := backbone.OpenONNX(backbone.ResNet50, backbone.Options{ModelDir: "models"})
//	if err != nil {
//	    return err
//	}
//	ck, err := checkpoint.Load(ctx, store, checkpoint.DefaultFileName)
//	if err != nil {
//	    return err
//	}
//	m, err := classifier.FromCheckpoint(ck, bb)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	x, err := preprocessing.NewPipeline(false).Apply(img, nil)
//	if err != nil {
//	    return err
//	}
//	preds, err := prediction.NewDecoder(ck.ClassToIndex, names, ck.OutputSize).Predict(x, m, 5)
//
// # Packages
//
//   - backbone: Frozen ONNX feature extractors and their architectures
//   - neural: Head layers, NLL loss and Adam
//   - classifier: Backbone + head assembly and checkpoint conversion
//   - checkpoint: The persisted model and its binary codec
//   - preprocessing: Image decoding, resize/crop/augment and normalization
//   - prediction: Top-k decoding, category names and the prediction plot
//   - dataset: ImageFolder splits and parallel batch loading
//   - training: The epoch loop
//   - metrics: Classification metrics and prometheus run metrics
//   - storage: Filesystem and Google Cloud Storage backends
//   - config: Layered configuration for both commands
//   - pipeline: End-to-end train and predict
//   - core/model, core/tensor, core/parallel: Shared module, tensor and fan-out types
//   - pkg/errors, pkg/log: Error taxonomy and structured logging
//
// # Exit codes
//
// Both commands exit 0 on success, 2 on invalid configuration, 3 on I/O
// failures, 4 on checkpoint schema or shape mismatches, 5 on missing labels
// and 1 otherwise.
package petalnet
