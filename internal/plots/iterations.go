package plots

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/particle-average/internal/average"
	"github.com/banshee-data/particle-average/internal/locs"
)

// IterationSample is the state recorded for one completed iteration.
type IterationSample struct {
	Iteration int
	Spread    float64
	Warnings  int
	Failures  int
	Elapsed   time.Duration
}

// IterationPlotter records completed iterations of a run and plots how the
// localization spread and iteration time evolve.
type IterationPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	samples   []IterationSample
}

// NewIterationPlotter creates a disabled plotter.
func NewIterationPlotter() *IterationPlotter {
	return &IterationPlotter{}
}

// Start enables sampling into outputDir, creating it if needed.
func (ip *IterationPlotter) Start(outputDir string) error {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	ip.outputDir = outputDir
	ip.enabled = true
	ip.samples = nil
	return nil
}

// Stop disables sampling. Call GeneratePlots to write the output files.
func (ip *IterationPlotter) Stop() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.enabled = false
}

// Observe records the done snapshot carried by ev; other events are ignored.
func (ip *IterationPlotter) Observe(ev average.Event) {
	if ev.Kind != average.EventProgress || ev.Snapshot == nil || !ev.Snapshot.Done {
		return
	}
	s := ev.Snapshot
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if !ip.enabled {
		return
	}
	ip.samples = append(ip.samples, IterationSample{
		Iteration: s.Iteration,
		Spread:    locs.Spread(s.Coordinates),
		Warnings:  s.Warnings,
		Failures:  s.Failures,
		Elapsed:   s.Elapsed,
	})
}

// Samples returns a copy of the recorded samples.
func (ip *IterationPlotter) Samples() []IterationSample {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	out := make([]IterationSample, len(ip.samples))
	copy(out, ip.samples)
	return out
}

// GeneratePlots writes iterations_spread.png and iterations_time.png and
// returns the number of files written.
func (ip *IterationPlotter) GeneratePlots() (int, error) {
	ip.mu.Lock()
	samples := make([]IterationSample, len(ip.samples))
	copy(samples, ip.samples)
	dir := ip.outputDir
	ip.mu.Unlock()

	if len(samples) == 0 {
		return 0, nil
	}

	spread := make(plotter.XYs, len(samples))
	elapsed := make(plotter.XYs, len(samples))
	for i, s := range samples {
		spread[i] = plotter.XY{X: float64(s.Iteration), Y: s.Spread}
		elapsed[i] = plotter.XY{X: float64(s.Iteration), Y: s.Elapsed.Seconds()}
	}

	files := []struct {
		name   string
		title  string
		ylabel string
		pts    plotter.XYs
		color  color.Color
	}{
		{"iterations_spread.png", "Localization spread per iteration", "RMS spread", spread, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"iterations_time.png", "Iteration duration", "Seconds", elapsed, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	}
	count := 0
	for _, f := range files {
		p := plot.New()
		p.Title.Text = f.title
		p.X.Label.Text = "Iteration"
		p.Y.Label.Text = f.ylabel

		line, points, err := plotter.NewLinePoints(f.pts)
		if err != nil {
			return count, fmt.Errorf("%s: %w", f.name, err)
		}
		line.Color = f.color
		line.Width = vg.Points(1)
		points.GlyphStyle.Color = f.color
		p.Add(line, points)

		if err := p.Save(10*vg.Inch, 5*vg.Inch, filepath.Join(dir, f.name)); err != nil {
			return count, fmt.Errorf("failed to save %s: %w", f.name, err)
		}
		count++
	}
	return count, nil
}
