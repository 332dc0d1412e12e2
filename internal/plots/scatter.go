package plots

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/particle-average/internal/locs"
)

// MaxScatterPoints caps the points written to an HTML scatter; larger sets
// are strided.
const MaxScatterPoints = 50000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// extent returns the half-width of a square covering every localization,
// with a small pad.
func extent(s *locs.Set) float64 {
	pad := 1.0
	for i := range s.X {
		pad = math.Max(pad, math.Max(math.Abs(s.X[i]), math.Abs(s.Y[i])))
	}
	return math.Ceil(pad * 1.05)
}

// WriteScatterHTML saves an interactive scatter of the localizations,
// coloured by group id.
func WriteScatterHTML(path string, s *locs.Set, title string) error {
	if s.Len() == 0 {
		return locs.ErrEmptySet
	}
	stride := 1
	if s.Len() > MaxScatterPoints {
		stride = (s.Len() + MaxScatterPoints - 1) / MaxScatterPoints
	}

	minGroup, maxGroup := s.Group[0], s.Group[0]
	data := make([]opts.ScatterData, 0, s.Len()/stride+1)
	for i := 0; i < s.Len(); i += stride {
		g := s.Group[i]
		if g < minGroup {
			minGroup = g
		}
		if g > maxGroup {
			maxGroup = g
		}
		data = append(data, opts.ScatterData{Value: []interface{}{s.X[i], s.Y[i], g}})
	}
	pad := extent(s)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("localizations=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minGroup),
			Max:        float32(maxGroup),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("localizations", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteScatterPNG saves the localizations as a PNG scatter with one colour
// per group.
func WriteScatterPNG(path string, s *locs.Set, title string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	gi := locs.NewGroupIndex(s.Group)
	colors := groupColors(gi.Len())

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	pad := extent(s)
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad

	for k := 0; k < gi.Len(); k++ {
		idx := gi.Indices(k)
		pts := make(plotter.XYs, len(idx))
		for j, i := range idx {
			pts[j] = plotter.XY{X: s.X[i], Y: s.Y[i]}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("group %d: %w", gi.ID(k), err)
		}
		sc.GlyphStyle.Color = colors[k]
		sc.GlyphStyle.Radius = vg.Points(1)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
