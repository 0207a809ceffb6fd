package backbone

import (
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Architecture names a pretrained backbone.
type Architecture string

const (
	ResNet50 Architecture = "resnet50"
	VGG16    Architecture = "vgg16"
)

// Architectures lists the supported backbones in a stable order.
func Architectures() []Architecture {
	return []Architecture{ResNet50, VGG16}
}

// ParseArchitecture resolves a backbone name. Unknown names are a ConfigError.
func ParseArchitecture(s string) (Architecture, error) {
	switch a := Architecture(strings.ToLower(strings.TrimSpace(s))); a {
	case ResNet50, VGG16:
		return a, nil
	default:
		return "", errors.NewConfigError("arch", "unsupported architecture, expected resnet50 or vgg16", s)
	}
}

// FeatureSize is the width of the feature vector the backbone feeds to the head.
// resnet50 exposes its pooled 2048 features; vgg16 its flattened 512x7x7 map.
func (a Architecture) FeatureSize() int {
	switch a {
	case ResNet50:
		return 2048
	case VGG16:
		return 25088
	default:
		return 0
	}
}

// Valid reports whether a is a supported architecture.
func (a Architecture) Valid() bool {
	return a.FeatureSize() > 0
}

func (a Architecture) String() string {
	return string(a)
}

// ModelPath returns the ONNX export location for a inside dir.
func (a Architecture) ModelPath(dir string) string {
	return filepath.Join(dir, string(a)+".onnx")
}
