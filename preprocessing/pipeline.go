// Package preprocessing turns decoded images into normalized CHW tensors for
// the backbone. The training pipeline adds random crop, rotation and flip
// augmentation; the inference pipeline is deterministic.
package preprocessing

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Pipeline defaults.
const (
	DefaultResize      = 255
	DefaultCrop        = 224
	DefaultMaxRotation = 30
	DefaultFlipProb    = 0.5
)

// Pipeline is resize -> crop -> [rotate -> flip] -> tensor -> normalize.
// The bracketed steps and the random crop only run when Training is set.
type Pipeline struct {
	Training bool

	// ResizeTo is the target length of the shorter image side.
	ResizeTo int
	// CropSize is the side of the square output.
	CropSize int
	// Scale and Ratio bound the random resized crop (area fraction and aspect).
	Scale [2]float32
	Ratio [2]float32
	// MaxRotation is in degrees; the angle is drawn from [-MaxRotation, MaxRotation].
	MaxRotation float64
	FlipProb    float64

	Normalizer *Normalizer
}

// NewPipeline returns the standard flower pipeline.
func NewPipeline(training bool) *Pipeline {
	return &Pipeline{
		Training:    training,
		ResizeTo:    DefaultResize,
		CropSize:    DefaultCrop,
		Scale:       [2]float32{0.08, 1},
		Ratio:       [2]float32{3.0 / 4.0, 4.0 / 3.0},
		MaxRotation: DefaultMaxRotation,
		FlipProb:    DefaultFlipProb,
		Normalizer:  NewImageNetNormalizer(),
	}
}

// Apply preprocesses img. rng drives augmentation and may be nil in inference mode.
func (p *Pipeline) Apply(img image.Image, rng *rand.Rand) (*tensor.Tensor, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.NewShapeMismatchError("image", []int{p.CropSize, p.CropSize}, []int{b.Dx(), b.Dy()})
	}
	if p.Training && rng == nil {
		return nil, errors.New("training pipeline requires a random source")
	}

	img = ResizeShorter(img, p.ResizeTo)

	flip := false
	if p.Training {
		crop := p.randomResizedCropRect(img.Bounds(), rng)
		img = resize.Resize(uint(p.CropSize), uint(p.CropSize), cropImage(img, crop), resize.Bilinear)
		angle := (rng.Float64()*2 - 1) * p.MaxRotation
		img = rotate(img, angle)
		flip = rng.Float64() < p.FlipProb
	} else {
		img = cropImage(img, CenterCropRect(img.Bounds(), p.CropSize))
	}

	t := ToTensor(img, flip)
	if p.Normalizer != nil {
		if err := p.Normalizer.TransformInPlace(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ToImage undoes normalization and renders a CHW tensor as an image.
func (p *Pipeline) ToImage(t *tensor.Tensor) (image.Image, error) {
	if p.Normalizer != nil {
		var err error
		if t, err = p.Normalizer.InverseTransform(t); err != nil {
			return nil, err
		}
	}
	return FromTensor(t)
}

// ResizeShorter scales img so that its shorter side equals size, keeping the aspect ratio.
func ResizeShorter(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= h {
		if w == size {
			return img
		}
		return resize.Resize(uint(size), uint(size*h/w), img, resize.Bilinear)
	}
	if h == size {
		return img
	}
	return resize.Resize(uint(size*w/h), uint(size), img, resize.Bilinear)
}

// CenterCropRect returns the centered size x size window of bounds. Half-pixel
// offsets round to even, matching the crop the backbone was trained with.
func CenterCropRect(bounds image.Rectangle, size int) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	left := int(math.RoundToEven(float64(w-size) / 2))
	top := int(math.RoundToEven(float64(h-size) / 2))
	origin := bounds.Min.Add(image.Pt(left, top))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(size, size))}
}

// randomResizedCropRect samples a crop covering Scale of the area with an
// aspect ratio drawn log-uniformly from Ratio, falling back to a center crop
// after ten rejected draws.
func (p *Pipeline) randomResizedCropRect(bounds image.Rectangle, rng *rand.Rand) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	area := float32(w * h)
	logLo, logHi := math32.Log(p.Ratio[0]), math32.Log(p.Ratio[1])

	for attempt := 0; attempt < 10; attempt++ {
		target := area * (p.Scale[0] + rng.Float32()*(p.Scale[1]-p.Scale[0]))
		aspect := math32.Exp(logLo + rng.Float32()*(logHi-logLo))

		cw := int(math32.Floor(math32.Sqrt(target*aspect) + 0.5))
		ch := int(math32.Floor(math32.Sqrt(target/aspect) + 0.5))
		if cw > 0 && cw <= w && ch > 0 && ch <= h {
			top := rng.IntN(h - ch + 1)
			left := rng.IntN(w - cw + 1)
			origin := bounds.Min.Add(image.Pt(left, top))
			return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(cw, ch))}
		}
	}

	inRatio := float32(w) / float32(h)
	cw, ch := w, h
	switch {
	case inRatio < p.Ratio[0]:
		ch = int(math32.Floor(float32(cw)/p.Ratio[0] + 0.5))
	case inRatio > p.Ratio[1]:
		cw = int(math32.Floor(float32(ch)*p.Ratio[1] + 0.5))
	}
	left, top := (w-cw)/2, (h-ch)/2
	origin := bounds.Min.Add(image.Pt(left, top))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(cw, ch))}
}

func cropImage(img image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}

// rotate turns img by angle degrees about its center. Uncovered corners stay black.
func rotate(img image.Image, angle float64) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dc := gg.NewContext(w, h)
	dc.RotateAbout(gg.Radians(angle), float64(w)/2, float64(h)/2)
	dc.DrawImage(img, 0, 0)
	return dc.Image()
}

// ToTensor converts img into a 3xHxW tensor with values in [0, 1].
func ToTensor(img image.Image, flip bool) *tensor.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(3, h, w)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			dx := x
			if flip {
				dx = w - 1 - x
			}
			i := y*w + dx
			t.Data[i] = float32(r>>8) / 255
			t.Data[plane+i] = float32(g>>8) / 255
			t.Data[2*plane+i] = float32(bl>>8) / 255
		}
	}
	return t
}

// FromTensor renders a 3xHxW tensor with values in [0, 1] as an RGBA image, clipping out-of-range values.
func FromTensor(t *tensor.Tensor) (image.Image, error) {
	if t.Dims() != 3 || t.Shape[0] != 3 {
		return nil, errors.NewShapeMismatchError("image", []int{3, -1, -1}, t.Shape)
	}
	h, w := t.Shape[1], t.Shape[2]
	plane := w * h
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < plane; i++ {
		img.Pix[4*i] = toByte(t.Data[i])
		img.Pix[4*i+1] = toByte(t.Data[plane+i])
		img.Pix[4*i+2] = toByte(t.Data[2*plane+i])
		img.Pix[4*i+3] = 0xff
	}
	return img, nil
}

func toByte(v float32) uint8 {
	v = math32.Floor(v*255 + 0.5)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
