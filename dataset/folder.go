// Package dataset reads class-per-folder image datasets and batches them
// through the preprocessing pipeline.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Split names under the data directory.
const (
	SplitTrain = "train"
	SplitValid = "valid"
	SplitTest  = "test"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}

// Sample is one image file and its class index.
type Sample struct {
	Path  string
	Label int
}

// Folder is a <root>/<class>/<image> tree.
type Folder struct {
	Root         string
	Split        string
	Classes      []string
	ClassToIndex map[string]int
	Samples      []Sample
}

// Len returns the number of samples.
func (f *Folder) Len() int { return len(f.Samples) }

// ImageFolder indexes root. Classes are sorted lexically and their index is
// their sorted position. Samples are sorted by path.
func ImageFolder(root string) (*Folder, error) {
	return imageFolder(root, filepath.Base(root), nil)
}

// imageFolder labels samples with classToIndex when it is non-nil, otherwise
// with the folder's own sorted class order.
func imageFolder(root, split string, classToIndex map[string]int) (*Folder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.NewIOError("read split", root, err)
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			classes = append(classes, e.Name())
		}
	}
	slices.Sort(classes)
	if len(classes) == 0 {
		return nil, errors.NewSchemaError(split, fmt.Sprintf("no class folders under %s", root))
	}

	if classToIndex == nil {
		classToIndex = make(map[string]int, len(classes))
		for i, c := range classes {
			classToIndex[c] = i
		}
	} else {
		for _, c := range classes {
			if _, ok := classToIndex[c]; !ok {
				return nil, errors.NewSchemaError(split, fmt.Sprintf("class %q is not present in the training split", c))
			}
		}
	}

	f := &Folder{Root: root, Split: split, Classes: classes, ClassToIndex: classToIndex}
	for _, c := range classes {
		files, err := os.ReadDir(filepath.Join(root, c))
		if err != nil {
			return nil, errors.NewIOError("read class", filepath.Join(root, c), err)
		}
		n := 0
		for _, file := range files {
			if file.IsDir() || !isImage(file.Name()) {
				continue
			}
			f.Samples = append(f.Samples, Sample{Path: filepath.Join(root, c, file.Name()), Label: classToIndex[c]})
			n++
		}
		if n == 0 {
			errors.Warn(errors.NewDatasetWarning(split, c, "class folder contains no images"))
		}
	}
	slices.SortFunc(f.Samples, func(a, b Sample) int { return strings.Compare(a.Path, b.Path) })
	return f, nil
}

func isImage(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// Splits holds the three splits of a data directory. Valid and Test are
// labelled with Train's class indices.
type Splits struct {
	Train *Folder
	Valid *Folder
	Test  *Folder
}

// ClassToIndex returns the training split's mapping.
func (s *Splits) ClassToIndex() map[string]int { return s.Train.ClassToIndex }

// NumClasses returns the number of training classes.
func (s *Splits) NumClasses() int { return len(s.Train.Classes) }

// OpenSplits indexes dataDir/train, dataDir/valid and dataDir/test.
func OpenSplits(dataDir string) (*Splits, error) {
	for _, split := range []string{SplitTrain, SplitValid, SplitTest} {
		dir := filepath.Join(dataDir, split)
		info, err := os.Stat(dir)
		if err != nil {
			return nil, errors.NewIOError("open split", dir, err)
		}
		if !info.IsDir() {
			return nil, errors.NewIOError("open split", dir, fmt.Errorf("not a directory"))
		}
	}

	train, err := imageFolder(filepath.Join(dataDir, SplitTrain), SplitTrain, nil)
	if err != nil {
		return nil, err
	}
	if train.Len() == 0 {
		return nil, errors.NewSchemaError(SplitTrain, "no images found")
	}
	valid, err := imageFolder(filepath.Join(dataDir, SplitValid), SplitValid, train.ClassToIndex)
	if err != nil {
		return nil, err
	}
	test, err := imageFolder(filepath.Join(dataDir, SplitTest), SplitTest, train.ClassToIndex)
	if err != nil {
		return nil, err
	}
	return &Splits{Train: train, Valid: valid, Test: test}, nil
}
