package preprocessing

import (
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func TestPipeline_InferenceShapeAndDeterminism(t *testing.T) {
	p := NewPipeline(false)
	img := gradientImage(400, 300)

	a, err := p.Apply(img, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 224, 224}, a.Shape)

	b, err := p.Apply(img, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.True(t, a.Equal(b), "inference preprocessing must not depend on the random source")
}

func TestPipeline_TrainingShapeAndSeed(t *testing.T) {
	p := NewPipeline(true)
	img := gradientImage(320, 500)

	a, err := p.Apply(img, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 224, 224}, a.Shape)

	b, err := p.Apply(img, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.True(t, a.Equal(b), "same seed must give the same augmentation")

	_, err = p.Apply(img, nil)
	assert.Error(t, err)
}

func TestResizeShorter(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{400, 300, 340, 255},
		{300, 400, 255, 340},
		{255, 600, 255, 600},
	}
	for _, tt := range tests {
		out := ResizeShorter(gradientImage(tt.w, tt.h), 255)
		assert.Equal(t, tt.wantW, out.Bounds().Dx())
		assert.Equal(t, tt.wantH, out.Bounds().Dy())
	}
}

func TestCenterCropRect(t *testing.T) {
	r := CenterCropRect(image.Rect(0, 0, 340, 255), 224)
	assert.Equal(t, image.Rect(58, 16, 282, 240), r)

	// 54.5 and 0.5 round down to the even neighbour
	r = CenterCropRect(image.Rect(0, 0, 333, 225), 224)
	assert.Equal(t, image.Rect(54, 0, 278, 224), r)

	r = CenterCropRect(image.Rect(10, 20, 365, 275), 224)
	assert.Equal(t, image.Rect(10+66, 20+16, 10+66+224, 20+16+224), r)
}

func TestRandomResizedCropRect_InBounds(t *testing.T) {
	p := NewPipeline(true)
	rng := rand.New(rand.NewPCG(3, 4))
	bounds := image.Rect(0, 0, 255, 340)
	for i := 0; i < 200; i++ {
		r := p.randomResizedCropRect(bounds, rng)
		assert.True(t, r.In(bounds), "crop %v outside %v", r, bounds)
		assert.False(t, r.Empty())
	}
}

func TestToTensor_Flip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	plain := ToTensor(img, false)
	assert.Equal(t, float32(1), plain.At(0, 0, 0))
	assert.Equal(t, float32(1), plain.At(2, 0, 1))

	flipped := ToTensor(img, true)
	assert.Equal(t, float32(1), flipped.At(0, 0, 1))
	assert.Equal(t, float32(1), flipped.At(2, 0, 0))
}

func TestNormalizer_RoundTrip(t *testing.T) {
	n := NewImageNetNormalizer()
	x := tensor.New(3, 2, 2)
	for i := range x.Data {
		x.Data[i] = float32(i) / 12
	}

	y, err := n.Transform(x)
	require.NoError(t, err)
	assert.InDelta(t, (0-0.485)/0.229, y.At(0, 0, 0), 1e-6)

	back, err := n.InverseTransform(y)
	require.NoError(t, err)
	for i := range x.Data {
		assert.InDelta(t, x.Data[i], back.Data[i], 1e-6)
	}

	_, err = n.Transform(tensor.New(1, 2, 2))
	var shapeErr *errors.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestNewNormalizer_Invalid(t *testing.T) {
	_, err := NewNormalizer([]float64{0.5}, []float64{0})
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestPipeline_ToImage(t *testing.T) {
	p := NewPipeline(false)
	// 255x255 はリサイズされず、中央 224 の切り出しは (16, 16) から始まる
	x, err := p.Apply(gradientImage(255, 255), nil)
	require.NoError(t, err)

	img, err := p.ToImage(x)
	require.NoError(t, err)
	r, g, _, _ := img.At(10, 20).RGBA()
	assert.Equal(t, uint32(26), r>>8)
	assert.Equal(t, uint32(36), g>>8)
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flower.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, gradientImage(30, 20)))
	require.NoError(t, f.Close())

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())

	var ioErr *errors.IOError
	_, err = LoadImage(filepath.Join(dir, "missing.jpg"))
	assert.True(t, errors.As(err, &ioErr))

	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = LoadImage(bad)
	assert.True(t, errors.As(err, &ioErr))
}
