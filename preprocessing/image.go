package preprocessing

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// LoadImage decodes a JPEG, PNG, GIF, WebP, BMP or TIFF file.
// A missing or undecodable file is an IOError.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open image", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.NewIOError("decode image", path, err)
	}
	return img, nil
}
