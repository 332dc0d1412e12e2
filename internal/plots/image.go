// Package plots renders averaging results: the averaged image as a heat map
// PNG, the aligned localizations as PNG and interactive HTML scatters, and
// per-iteration convergence curves.
package plots

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/particle-average/internal/render"
)

// ErrEmptyImage is returned when an image has no counts to plot.
var ErrEmptyImage = errors.New("image has no counts")

// imageGrid adapts a rendered image to plotter.GridXYZ in data coordinates.
type imageGrid struct {
	img  *render.Image
	min  float64
	step float64
}

func (g imageGrid) Dims() (c, r int)   { return g.img.N, g.img.N }
func (g imageGrid) Z(c, r int) float64 { return g.img.At(r, c) }
func (g imageGrid) X(c int) float64    { return g.min + (float64(c)+0.5)*g.step }
func (g imageGrid) Y(r int) float64    { return g.min + (float64(r)+0.5)*g.step }

// WriteAverageImage saves img, rendered by r, as a heat map PNG.
func WriteAverageImage(path string, r *render.Renderer, img *render.Image, title string) error {
	if img.N != r.Pixels() {
		return fmt.Errorf("image is %dx%d, renderer produces %dx%d", img.N, img.N, r.Pixels(), r.Pixels())
	}
	maxCount := img.Max()
	if maxCount <= 0 {
		return ErrEmptyImage
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	grid := imageGrid{img: img, min: r.Viewport().Min, step: 1 / r.Oversampling()}
	hm := plotter.NewHeatMap(grid, palette.Heat(32, 1))
	hm.Min = 0
	hm.Max = maxCount
	p.Add(hm)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
