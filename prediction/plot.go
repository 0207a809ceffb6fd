package prediction

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Figure size: the image on the left, the probabilities on the right.
const (
	plotWidth  = 12 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// DefaultPlotPath returns "<image path without extension>_prediction.png".
func DefaultPlotPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + "_prediction.png"
}

// PlotPrediction writes the prediction figure as PNG to path.
func PlotPrediction(img image.Image, preds []Prediction, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError("create plot", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.NewIOError("write plot", path, cerr)
		}
	}()
	if err := WritePlot(f, img, preds); err != nil {
		return err
	}
	return nil
}

// WritePlot renders img next to a horizontal bar chart of preds, highest probability on top.
func WritePlot(w io.Writer, img image.Image, preds []Prediction) error {
	if len(preds) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}

	left := plot.New()
	b := img.Bounds()
	left.Add(plotter.NewImage(img, 0, 0, float64(b.Dx()), float64(b.Dy())))
	left.HideAxes()

	// bars are drawn bottom-up, so reverse to put the best match first
	ordered := slices.Clone(preds)
	slices.Reverse(ordered)
	values := make(plotter.Values, len(ordered))
	names := make([]string, len(ordered))
	for i, p := range ordered {
		values[i] = p.Probability
		names[i] = p.Name
	}

	right := plot.New()
	right.Title.Text = preds[0].Name
	right.X.Label.Text = "probability"
	right.X.Min = 0
	right.X.Max = 1
	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return errors.Wrap(err, "building bar chart")
	}
	bars.Horizontal = true
	right.Add(bars)
	right.NominalY(names...)

	canvas := vgimg.New(plotWidth, plotHeight)
	dc := draw.New(canvas)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 6, PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2}
	canvases := plot.Align([][]*plot.Plot{{left, right}}, tiles, dc)
	left.Draw(canvases[0][0])
	right.Draw(canvases[0][1])

	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(w); err != nil {
		return errors.Wrap(err, "encoding plot")
	}
	return nil
}
