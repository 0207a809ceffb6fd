// Package datasettest writes small on-disk image datasets for tests.
package datasettest

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteImage writes a 12x10 PNG whose red channel is shade.
func WriteImage(t testing.TB, path string, shade uint8) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 12, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 20), B: uint8(y * 20), A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// WriteSplits creates train/, valid/ and test/ under a temp dir with
// perClass images for every class and returns the dir. Images of class i are
// tinted with a distinct red level so a classifier can separate them.
func WriteSplits(t testing.TB, classes []string, perClass int) string {
	t.Helper()
	dir := t.TempDir()
	step := 255 / len(classes)
	for _, split := range []string{"train", "valid", "test"} {
		for i, class := range classes {
			for j := 0; j < perClass; j++ {
				name := fmt.Sprintf("image_%03d.png", j)
				WriteImage(t, filepath.Join(dir, split, class, name), uint8(i*step+j))
			}
		}
	}
	return dir
}
