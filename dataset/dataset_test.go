package dataset

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/petalnet/dataset/datasettest"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/preprocessing"
)

// makeDataset lays out classes "1", "10", "2" in every split.
func makeDataset(t *testing.T) string {
	return datasettest.WriteSplits(t, []string{"1", "10", "2"}, 3)
}

func writePNG(t *testing.T, path string, shade uint8) {
	datasettest.WriteImage(t, path, shade)
}

func captureWarnings(t *testing.T) *[]error {
	t.Helper()
	var (
		mu       sync.Mutex
		warnings []error
	)
	errors.SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, w)
	})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return &warnings
}

func smallPipeline(training bool) *preprocessing.Pipeline {
	p := preprocessing.NewPipeline(training)
	p.ResizeTo = 8
	p.CropSize = 6
	return p
}

func TestImageFolder_LexicalClassOrder(t *testing.T) {
	dir := makeDataset(t)
	f, err := ImageFolder(filepath.Join(dir, SplitTrain))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "10", "2"}, f.Classes)
	assert.Equal(t, map[string]int{"1": 0, "10": 1, "2": 2}, f.ClassToIndex)
	assert.Equal(t, 9, f.Len())
	assert.Equal(t, SplitTrain, f.Split)
	for i := 1; i < f.Len(); i++ {
		assert.Less(t, f.Samples[i-1].Path, f.Samples[i].Path)
	}
	assert.Equal(t, 1, f.Samples[3].Label)
}

func TestImageFolder_SkipsNonImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a", "x.PNG"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "notes.txt"), []byte("x"), 0o644))

	f, err := ImageFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
}

func TestOpenSplits(t *testing.T) {
	dir := makeDataset(t)
	s, err := OpenSplits(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, s.NumClasses())
	assert.Equal(t, s.Train.ClassToIndex, s.Valid.ClassToIndex)
	assert.Equal(t, 9, s.Test.Len())
}

func TestOpenSplits_MissingSplit(t *testing.T) {
	dir := makeDataset(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, SplitValid)))

	_, err := OpenSplits(dir)
	var ioErr *errors.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, errors.ExitIO, errors.ExitCode(err))
}

func TestOpenSplits_UnknownClass(t *testing.T) {
	dir := makeDataset(t)
	writePNG(t, filepath.Join(dir, SplitTest, "99", "x.png"), 7)

	_, err := OpenSplits(dir)
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Contains(t, err.Error(), "99")
}

func TestOpenSplits_EmptyClassWarns(t *testing.T) {
	warnings := captureWarnings(t)
	dir := makeDataset(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, SplitValid, "5"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, SplitTrain, "5"), 0o755))
	writePNG(t, filepath.Join(dir, SplitTrain, "5", "x.png"), 3)

	_, err := OpenSplits(dir)
	require.NoError(t, err)
	require.Len(t, *warnings, 1)
	var w *errors.DatasetWarning
	require.True(t, errors.As((*warnings)[0], &w))
	assert.Equal(t, SplitValid, w.Split)
	assert.Equal(t, "5", w.Class)
}

func TestLoader_Batches(t *testing.T) {
	dir := makeDataset(t)
	f, err := ImageFolder(filepath.Join(dir, SplitTrain))
	require.NoError(t, err)

	l, err := NewLoader(f, smallPipeline(false), WithBatchSize(4))
	require.NoError(t, err)
	assert.Equal(t, 3, l.NumBatches())

	var sizes []int
	var labels []int
	err = l.Each(context.Background(), 0, func(b *Batch) error {
		sizes = append(sizes, b.Size())
		labels = append(labels, b.Labels...)
		assert.Equal(t, []int{b.Size(), 3, 6, 6}, b.Images.Shape)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 1}, sizes)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 2, 2, 2}, labels)
}

func TestLoader_DeterministicAugmentation(t *testing.T) {
	dir := makeDataset(t)
	f, err := ImageFolder(filepath.Join(dir, SplitTrain))
	require.NoError(t, err)

	collect := func() [][]float32 {
		l, err := NewLoader(f, smallPipeline(true), WithBatchSize(5), WithShuffle(true), WithSeed(42))
		require.NoError(t, err)
		var out [][]float32
		require.NoError(t, l.Each(context.Background(), 1, func(b *Batch) error {
			out = append(out, b.Images.Data)
			return nil
		}))
		return out
	}
	assert.Equal(t, collect(), collect())
}

func TestLoader_ShuffleIsPermutation(t *testing.T) {
	f := &Folder{Samples: make([]Sample, 20)}
	l, err := NewLoader(f, smallPipeline(false), WithShuffle(true), WithSeed(7))
	require.NoError(t, err)

	order := l.Order(3)
	assert.ElementsMatch(t, l.Order(0), order)
	assert.Equal(t, order, l.Order(3))
	assert.NotEqual(t, order, l.Order(4))
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoader(&Folder{}, smallPipeline(false), WithBatchSize(0))
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	f := &Folder{Samples: []Sample{{Path: "missing.png"}}}
	l, err := NewLoader(f, smallPipeline(false))
	require.NoError(t, err)
	err = l.Each(context.Background(), 0, func(*Batch) error { return nil })
	var ioErr *errors.IOError
	assert.True(t, errors.As(err, &ioErr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Each(ctx, 0, func(*Batch) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_DecoderPanic(t *testing.T) {
	f := &Folder{Samples: []Sample{{Path: "a.png"}, {Path: "corrupt.png"}}}
	l, err := NewLoader(f, smallPipeline(false), WithImageOpener(func(path string) (image.Image, error) {
		if path == "corrupt.png" {
			panic("truncated huffman table")
		}
		return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
	}))
	require.NoError(t, err)

	err = l.Each(context.Background(), 0, func(*Batch) error { return nil })
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "dataset.load corrupt.png", panicErr.Operation)
	assert.Equal(t, "truncated huffman table", panicErr.PanicValue)
}
